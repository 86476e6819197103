//go:build !darwin

package apple

import "errors"

// errUnsupported is reported on platforms without the Speech framework.
var errUnsupported = errors.New("on-device speech recognition requires macOS")

type stubEngine struct{}

func newEngine() recognitionEngine { return stubEngine{} }

func (stubEngine) Authorize() error      { return nil }
func (stubEngine) Available(string) bool { return false }

func (stubEngine) NewTask(string, string, func(string, string), func(string, error)) (recognitionTask, error) {
	return nil, errUnsupported
}
