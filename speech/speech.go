// Package speech defines the realtime speech-to-text contract shared by
// every provider adapter, plus the session machinery they build on: the
// transcript accumulator, the voice-activity auto-stop gate and the
// audio pre-buffer.
package speech

import (
	"context"
	"fmt"
	"sync"

	"go.aural.dev/aural/internal/types"
)

// Recognizer is the unified realtime speech-to-text contract. One
// adapter instance owns at most one live session; StartListening on an
// adapter with a session in progress implicitly stops it first.
type Recognizer interface {
	// SetDelegate registers the single observer for session callbacks.
	// Passing nil detaches the current observer. The adapter never
	// assumes the delegate outlives it.
	SetDelegate(d Delegate)

	// StartListening begins a new listening session. Setup failures
	// (permission, audio device, initial connection) are returned
	// synchronously as a *Error; steady-state failures are delivered
	// through the delegate.
	StartListening(ctx context.Context) error

	// StopListening ends the session, releasing audio and network
	// resources. Safe to call in any state, including when no session
	// is active. Any accumulated text is flushed as exactly one final
	// result before the listening state changes to false.
	StopListening()

	// ProcessAudioBuffer accepts externally sourced audio samples at
	// the given sample rate. It is a no-op unless the adapter is
	// configured for the external audio source and currently listening.
	ProcessAudioBuffer(samples []float32, sampleRate int)

	// IsListening reports whether a session is active.
	IsListening() bool

	// AvailableModels returns the static model catalog for the
	// provider. Exactly one entry is flagged as the default.
	AvailableModels() []ModelInfo

	// Provider identifies the backend this adapter drives.
	Provider() types.Provider
}

// Delegate receives session callbacks. DidChangeListeningState(true)
// precedes any result; DidChangeListeningState(false) is the last
// callback of a session, except that a final result, if any, precedes it.
type Delegate interface {
	DidReceivePartialResult(text string)
	DidReceiveFinalResult(text string)
	DidFailWithError(err error)
	DidChangeListeningState(listening bool)
}

// ModelInfo is one entry in a provider's static model catalog.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	IsDefault   bool   `json:"isDefault"`
}

// Config holds the per-session settings a caller fixes before
// StartListening. Mutating it mid-session is not synchronized.
type Config struct {
	APIKey   string
	Model    string // "" selects the provider default
	Language string // ISO-639-1 code, "" = auto-detect

	AudioInputDeviceUID string            // "" = system default input
	Source              types.AudioSource // microphone or external

	// Auto-stop thresholds for adapters that run the local VAD gate.
	MinimumRecordingTime float64 // seconds, 0 = provider default
	SilenceDuration      float64 // seconds, 0 = provider default
}

// ErrorCode classifies recognizer failures.
type ErrorCode int

const (
	ErrorPermissionDenied ErrorCode = iota
	ErrorServiceUnavailable
	ErrorAudio
	ErrorConnection
	ErrorAPI
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorPermissionDenied:
		return "permissionDenied"
	case ErrorServiceUnavailable:
		return "serviceUnavailable"
	case ErrorAudio:
		return "audioError"
	case ErrorConnection:
		return "connectionError"
	case ErrorAPI:
		return "apiError"
	}
	return "unknown"
}

// Error is the typed failure every adapter reports, both from
// StartListening and through DidFailWithError.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed recognizer error wrapping an optional cause.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Errorf builds a typed recognizer error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// DelegateRef is the single-slot observer relationship adapters embed.
// The zero value is ready to use; all emit helpers are nil-safe and may
// be called concurrently with SetDelegate.
type DelegateRef struct {
	mu sync.RWMutex
	d  Delegate
}

// Set replaces the registered delegate.
func (r *DelegateRef) Set(d Delegate) {
	r.mu.Lock()
	r.d = d
	r.mu.Unlock()
}

func (r *DelegateRef) get() Delegate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d
}

// EmitPartial delivers a partial result if a delegate is registered.
func (r *DelegateRef) EmitPartial(text string) {
	if d := r.get(); d != nil {
		d.DidReceivePartialResult(text)
	}
}

// EmitFinal delivers a final result if a delegate is registered.
func (r *DelegateRef) EmitFinal(text string) {
	if d := r.get(); d != nil {
		d.DidReceiveFinalResult(text)
	}
}

// EmitError delivers a failure if a delegate is registered.
func (r *DelegateRef) EmitError(err error) {
	if d := r.get(); d != nil {
		d.DidFailWithError(err)
	}
}

// EmitListening delivers a listening-state change if a delegate is
// registered.
func (r *DelegateRef) EmitListening(listening bool) {
	if d := r.get(); d != nil {
		d.DidChangeListeningState(listening)
	}
}
