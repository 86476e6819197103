// Package app wires configuration, the recognizer factory, history and
// clipboard into one dictation service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.aural.dev/aural/clipboard"
	"go.aural.dev/aural/config"
	"go.aural.dev/aural/history"
	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/langdetect"
	"go.aural.dev/aural/speech"
	"go.aural.dev/aural/stt"
)

// Callbacks receives dictation updates. All fields are optional.
type Callbacks struct {
	OnPartial func(text string)
	OnFinal   func(rec types.TranscriptRecord)
	OnError   func(err error)
	OnState   func(listening bool)
}

// Service orchestrates one dictation session at a time.
type Service struct {
	cfg       *config.Config
	store     *history.Store
	callbacks Callbacks

	mu         sync.Mutex
	recognizer speech.Recognizer
}

// New creates the service. The history store is best effort; dictation
// still works when it cannot be opened.
func New(cfg *config.Config, callbacks Callbacks) *Service {
	store, err := history.Open("")
	if err != nil {
		slog.Warn("open history store", "error", err)
	}
	return &Service{cfg: cfg, store: store, callbacks: callbacks}
}

// Shutdown releases resources.
func (s *Service) Shutdown() {
	s.StopDictation()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("close history store", "error", err)
		}
	}
}

// StartDictation begins a session with the configured provider.
func (s *Service) StartDictation(ctx context.Context) error {
	s.mu.Lock()
	if s.recognizer != nil && s.recognizer.IsListening() {
		s.mu.Unlock()
		return fmt.Errorf("dictation already in progress")
	}
	s.mu.Unlock()

	rec, err := NewRecognizer(s.cfg.Provider, speech.Config{
		APIKey:               s.cfg.APIKey(s.cfg.Provider),
		Model:                s.cfg.Model,
		Language:             s.cfg.Language,
		AudioInputDeviceUID:  s.cfg.AudioInputDeviceUID,
		Source:               s.cfg.Source,
		MinimumRecordingTime: s.cfg.MinimumRecordingTime,
		SilenceDuration:      s.cfg.SilenceDuration,
	})
	if err != nil {
		return err
	}
	rec.SetDelegate(s)

	if err := rec.StartListening(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.recognizer = rec
	s.mu.Unlock()
	return nil
}

// StopDictation ends the current session. Safe to call when idle.
func (s *Service) StopDictation() {
	s.mu.Lock()
	rec := s.recognizer
	s.mu.Unlock()
	if rec != nil {
		rec.StopListening()
	}
}

// IsListening reports whether a session is active.
func (s *Service) IsListening() bool {
	s.mu.Lock()
	rec := s.recognizer
	s.mu.Unlock()
	return rec != nil && rec.IsListening()
}

// Models returns the model catalog for the configured provider.
func (s *Service) Models() ([]speech.ModelInfo, error) {
	rec, err := NewRecognizer(s.cfg.Provider, speech.Config{
		APIKey: s.cfg.APIKey(s.cfg.Provider),
	})
	if err != nil {
		return nil, err
	}
	return rec.AvailableModels(), nil
}

// TranscribeFile runs a complete audio file through the configured
// provider's batch endpoint and records the result in history.
func (s *Service) TranscribeFile(ctx context.Context, path string) (types.TranscriptRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.TranscriptRecord{}, fmt.Errorf("read audio file: %w", err)
	}

	client, err := stt.New(s.cfg.Provider, s.cfg.APIKey(s.cfg.Provider))
	if err != nil {
		return types.TranscriptRecord{}, err
	}

	result, err := client.TranscribeFile(ctx, data, stt.Options{
		Model:    s.cfg.Model,
		Language: s.cfg.Language,
	})
	if err != nil {
		return types.TranscriptRecord{}, err
	}

	return s.record(result.Text, result.Language), nil
}

// History returns the most recent dictations, newest first.
func (s *Service) History(limit int) ([]types.TranscriptRecord, error) {
	if s.store == nil {
		return nil, fmt.Errorf("history store unavailable")
	}
	return s.store.Recent(limit)
}

// record stores a finished transcript and copies it to the clipboard.
func (s *Service) record(text, lang string) types.TranscriptRecord {
	if lang == "" {
		lang = langdetect.Detect(text)
	}

	rec := types.TranscriptRecord{
		Provider: s.cfg.Provider,
		Text:     text,
		Language: lang,
	}
	if s.store != nil {
		stored, err := s.store.Add(s.cfg.Provider, text, lang)
		if err != nil {
			slog.Warn("store transcript", "error", err)
		} else {
			rec = stored
		}
	}

	if err := clipboard.SetText(text); err != nil {
		slog.Warn("copy transcript to clipboard", "error", err)
	}
	return rec
}

// Delegate implementation. Adapters call these from their own
// goroutines.

func (s *Service) DidReceivePartialResult(text string) {
	if s.callbacks.OnPartial != nil {
		s.callbacks.OnPartial(text)
	}
}

func (s *Service) DidReceiveFinalResult(text string) {
	rec := s.record(text, s.cfg.Language)
	if s.callbacks.OnFinal != nil {
		s.callbacks.OnFinal(rec)
	}
}

func (s *Service) DidFailWithError(err error) {
	slog.Error("dictation failed", "error", err)
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
}

func (s *Service) DidChangeListeningState(listening bool) {
	if s.callbacks.OnState != nil {
		s.callbacks.OnState(listening)
	}
}
