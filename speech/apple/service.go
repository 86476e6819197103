// Package apple implements the on-device speech-to-text adapter backed
// by the macOS Speech framework. Native recognition requests have a
// hard session ceiling of about one minute, so the adapter rotates to a
// fresh request shortly before the ceiling and stitches the transcripts
// together.
package apple

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.aural.dev/aural/audiocapture"
	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/pcm"
	"go.aural.dev/aural/speech"
)

const (
	sampleRate = 16000

	// restartInterval rotates the native request well before the
	// framework's ~60s per-request ceiling.
	restartInterval = 50 * time.Second

	// errorGrace suppresses errors the old request raises while it is
	// being torn down after a rotation.
	errorGrace = time.Second
)

// recognitionTask is one live native recognition request.
type recognitionTask interface {
	Append(samples []float32)
	Finish()
	Cancel()
}

// recognitionEngine abstracts the native framework so the rotation and
// stitching logic stays portable.
type recognitionEngine interface {
	// Authorize requests speech recognition permission. It returns a
	// typed error when the user denied it.
	Authorize() error
	// Available reports whether recognition works for the locale.
	Available(locale string) bool
	// NewTask starts a recognition request. The callbacks carry the tag
	// back so stale deliveries from rotated-out tasks can be dropped.
	NewTask(locale, tag string, onPartial func(tag, text string), onErr func(tag string, err error)) (recognitionTask, error)
}

// Service is the on-device adapter.
type Service struct {
	cfg      speech.Config
	engine   recognitionEngine
	delegate speech.DelegateRef

	mu          sync.Mutex
	active      bool
	listening   bool
	task        recognitionTask
	taskTag     string
	restartedAt time.Time
	restart     *time.Timer
	capture     *audiocapture.Capture

	acc  *speech.Accumulator
	gate *speech.AutoStopGate
}

// New creates the adapter. On platforms without the Speech framework
// StartListening reports the service as unavailable.
func New(cfg speech.Config) *Service {
	s := &Service{
		cfg:    cfg,
		engine: newEngine(),
		acc:    speech.NewAccumulator(),
	}
	s.gate = speech.NewAutoStopGate(
		time.Duration(cfg.MinimumRecordingTime*float64(time.Second)),
		time.Duration(cfg.SilenceDuration*float64(time.Second)),
		nil,
		s.autoStop,
	)
	return s
}

// SetDelegate registers the session observer.
func (s *Service) SetDelegate(d speech.Delegate) { s.delegate.Set(d) }

// Provider identifies this adapter.
func (s *Service) Provider() types.Provider { return types.ProviderMacOS }

// IsListening reports whether a session is active.
func (s *Service) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// AvailableModels returns the static catalog. On-device recognition has
// a single implicit model.
func (s *Service) AvailableModels() []speech.ModelInfo {
	return []speech.ModelInfo{
		{ID: "apple-on-device", DisplayName: "On-Device Recognition", IsDefault: true},
	}
}

// StartListening requests authorization, opens the microphone and
// starts the first recognition request.
func (s *Service) StartListening(ctx context.Context) error {
	s.StopListening()

	if err := s.engine.Authorize(); err != nil {
		return speech.NewError(speech.ErrorPermissionDenied, "speech recognition not authorized", err)
	}
	locale := languageToLocale(s.cfg.Language)
	if !s.engine.Available(locale) {
		return speech.Errorf(speech.ErrorServiceUnavailable,
			"speech recognition unavailable for locale %q", locale)
	}

	s.mu.Lock()
	s.active = true
	s.acc.Reset()
	s.mu.Unlock()

	if s.cfg.Source != types.AudioSourceExternal {
		capture, err := audiocapture.New(audiocapture.Config{
			SampleRate: sampleRate,
			DeviceUID:  s.cfg.AudioInputDeviceUID,
		})
		if err != nil {
			s.resetSession()
			return speech.NewError(speech.ErrorAudio, "create audio capture", err)
		}
		capture.OnAudio(s.handleAudio)
		if err := capture.Start(); err != nil {
			_ = capture.Close()
			s.resetSession()
			return speech.NewError(speech.ErrorAudio, "start audio capture", err)
		}
		s.mu.Lock()
		s.capture = capture
		s.mu.Unlock()
	}

	if err := s.startTask(locale); err != nil {
		s.teardownAudio()
		s.resetSession()
		return err
	}

	s.mu.Lock()
	s.listening = true
	s.restart = time.AfterFunc(restartInterval, s.rotateTask)
	s.mu.Unlock()

	s.gate.Start()
	s.delegate.EmitListening(true)
	slog.Info("on-device session started", "locale", locale)
	return nil
}

func (s *Service) startTask(locale string) error {
	tag := uuid.NewString()
	task, err := s.engine.NewTask(locale, tag, s.handlePartial, s.handleTaskError)
	if err != nil {
		return speech.NewError(speech.ErrorServiceUnavailable, "start recognition request", err)
	}
	s.mu.Lock()
	s.task = task
	s.taskTag = tag
	s.mu.Unlock()
	return nil
}

// rotateTask starts a replacement recognition request before the old
// one hits the framework ceiling. The new request is live before the
// old one is torn down, so no audio gap opens up.
func (s *Service) rotateTask() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	old := s.task
	s.restartedAt = time.Now()
	s.mu.Unlock()

	// Fold the current partial into the committed text; the new request
	// starts transcribing from scratch.
	s.acc.Commit(s.acc.Partial())

	locale := languageToLocale(s.cfg.Language)
	if err := s.startTask(locale); err != nil {
		slog.Warn("recognition request rotation failed", "error", err)
		s.failSession(speech.NewError(speech.ErrorServiceUnavailable, "restart recognition request", err))
		return
	}
	if old != nil {
		old.Finish()
	}

	s.mu.Lock()
	if s.active {
		s.restart = time.AfterFunc(restartInterval, s.rotateTask)
	}
	s.mu.Unlock()
	slog.Debug("rotated recognition request")
}

// handlePartial receives hypothesis updates from the native layer.
// Deliveries from rotated-out requests are dropped.
func (s *Service) handlePartial(tag, text string) {
	s.mu.Lock()
	current := s.active && tag == s.taskTag
	s.mu.Unlock()
	if !current {
		return
	}
	s.acc.SetPartial(strings.TrimSpace(text))
	s.delegate.EmitPartial(s.acc.Combined())
}

// handleTaskError receives failures from the native layer. Errors from
// stale requests, and errors raised within the teardown grace window of
// a rotation, are suppressed.
func (s *Service) handleTaskError(tag string, err error) {
	s.mu.Lock()
	stale := !s.active || tag != s.taskTag
	inGrace := !s.restartedAt.IsZero() && time.Since(s.restartedAt) < errorGrace
	s.mu.Unlock()
	if stale || inGrace {
		slog.Debug("suppressed recognition error", "stale", stale, "error", err)
		return
	}
	s.failSession(speech.NewError(speech.ErrorServiceUnavailable, "recognition failed", err))
}

func (s *Service) failSession(serr *speech.Error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	wasListening := s.listening
	s.listening = false
	task := s.task
	s.task = nil
	restart := s.restart
	s.restart = nil
	s.mu.Unlock()

	s.gate.Stop()
	if restart != nil {
		restart.Stop()
	}
	s.teardownAudio()
	if task != nil {
		task.Cancel()
	}

	if text := s.acc.Flush(); text != "" {
		s.delegate.EmitFinal(text)
	}
	s.delegate.EmitError(serr)
	if wasListening {
		s.delegate.EmitListening(false)
	}
}

// StopListening ends the session, flushing accumulated text as exactly
// one final result. Safe to call in any state.
func (s *Service) StopListening() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	wasListening := s.listening
	s.listening = false
	task := s.task
	s.task = nil
	restart := s.restart
	s.restart = nil
	s.mu.Unlock()

	s.gate.Stop()
	if restart != nil {
		restart.Stop()
	}
	s.teardownAudio()
	if task != nil {
		task.Finish()
	}

	if text := s.acc.Flush(); text != "" {
		s.delegate.EmitFinal(text)
	}
	if wasListening {
		s.delegate.EmitListening(false)
	}
	slog.Info("on-device session stopped")
}

// ProcessAudioBuffer accepts externally sourced audio. No-op unless the
// adapter is configured for the external source and a session is live.
func (s *Service) ProcessAudioBuffer(samples []float32, rate int) {
	if s.cfg.Source != types.AudioSourceExternal {
		return
	}
	s.handleAudio(pcm.ResampleFloat32(samples, rate, sampleRate))
}

func (s *Service) handleAudio(samples []float32) {
	s.mu.Lock()
	active := s.active
	task := s.task
	s.mu.Unlock()
	if !active || task == nil {
		return
	}
	task.Append(samples)
	s.gate.Append(samples)
}

func (s *Service) autoStop() {
	slog.Info("silence detected, stopping session")
	go s.StopListening()
}

func (s *Service) teardownAudio() {
	s.mu.Lock()
	capture := s.capture
	s.capture = nil
	s.mu.Unlock()
	if capture != nil {
		_ = capture.Close()
	}
}

func (s *Service) resetSession() {
	s.mu.Lock()
	s.active = false
	s.listening = false
	s.mu.Unlock()
}

// languageToLocale converts ISO language codes to recognition locale
// identifiers.
func languageToLocale(lang string) string {
	if lang == "" || lang == "auto" {
		return "en-US"
	}

	locales := map[string]string{
		"en": "en-US",
		"zh": "zh-CN",
		"ja": "ja-JP",
		"ko": "ko-KR",
		"fr": "fr-FR",
		"de": "de-DE",
		"es": "es-ES",
		"it": "it-IT",
		"pt": "pt-BR",
		"ru": "ru-RU",
		"ar": "ar-SA",
	}
	if locale, ok := locales[lang]; ok {
		return locale
	}
	if strings.Contains(lang, "-") || strings.Contains(lang, "_") {
		return lang
	}
	return lang + "-" + strings.ToUpper(lang)
}
