//go:build !darwin

package clipboard

func setClipboardContent(_ string) error {
	// Clipboard integration is only wired up on macOS.
	return nil
}
