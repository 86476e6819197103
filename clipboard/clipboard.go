// Package clipboard places finished dictations on the system clipboard.
package clipboard

// SetText replaces the clipboard contents with text.
func SetText(text string) error {
	return setClipboardContent(text)
}
