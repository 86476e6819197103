package grok

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.aural.dev/aural/audiocapture"
	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/pcm"
	"go.aural.dev/aural/speech"
)

const (
	sampleRate = 16000

	pollInterval   = 2 * time.Second
	minPollSamples = sampleRate // one second
	stuckGuard     = 30 * time.Second
	finalTimeout   = 30 * time.Second
)

// Service is the xAI polling adapter. Like the Gemini adapter it keeps
// the whole session recording and re-transcribes it on an interval, but
// it speaks the OpenAI-compatible multipart protocol instead of JSON
// inline audio.
type Service struct {
	cfg      speech.Config
	client   *client
	delegate speech.DelegateRef

	mu         sync.Mutex
	active     bool
	listening  bool
	inFlight   bool
	inFlightAt time.Time
	lastPolled int
	capture    *audiocapture.Capture
	cancelPoll context.CancelFunc

	buf  *speech.SampleBuffer
	acc  *speech.Accumulator
	gate *speech.AutoStopGate
}

// New creates the adapter.
func New(cfg speech.Config) *Service {
	s := &Service{
		cfg:    cfg,
		client: newClient(cfg.APIKey, cfg.Model),
		buf:    speech.NewSampleBuffer(sampleRate),
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
func (s *Service) Provider() types.Provider { return types.ProviderGrok }

// IsListening reports whether a session is active.
func (s *Service) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// AvailableModels returns the static catalog.
func (s *Service) AvailableModels() []speech.ModelInfo {
	return []speech.ModelInfo{
		{ID: "grok-whisper-1", DisplayName: "Grok Whisper", IsDefault: true},
	}
}

// StartListening begins recording and starts the polling loop.
func (s *Service) StartListening(ctx context.Context) error {
	s.StopListening()

	if s.cfg.APIKey == "" {
		return speech.Errorf(speech.ErrorAPI, "Grok API key is not configured")
	}

	s.mu.Lock()
	s.active = true
	s.inFlight = false
	s.lastPolled = 0
	s.buf.Clear()
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

	pollCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelPoll = cancel
	s.listening = true
	s.mu.Unlock()

	s.gate.Start()
	go s.pollLoop(pollCtx)

	s.delegate.EmitListening(true)
	slog.Info("grok polling session started", "model", s.client.model)
	return nil
}

func (s *Service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		if time.Since(s.inFlightAt) < stuckGuard {
			s.mu.Unlock()
			return
		}
		slog.Warn("transcription request stuck, resuming polling")
	}
	n := s.buf.Len()
	if n < minPollSamples || n == s.lastPolled {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.inFlightAt = time.Now()
	s.mu.Unlock()

	text, err := s.transcribeSnapshot(ctx)

	s.mu.Lock()
	s.inFlight = false
	if err == nil {
		// A failed poll leaves lastPolled alone so the audio it covered
		// is retried by the next tick or the stop-path final pass.
		s.lastPolled = n
	}
	stillActive := s.active
	s.mu.Unlock()

	if err != nil {
		slog.Warn("grok transcription poll failed", "error", err)
		return
	}
	if !stillActive || text == "" {
		return
	}

	s.acc.SetPartial(text)
	s.delegate.EmitPartial(s.acc.Combined())
}

func (s *Service) transcribeSnapshot(ctx context.Context) (string, error) {
	samples := s.buf.Snapshot()
	if len(samples) == 0 {
		return "", nil
	}
	wav := pcm.EncodeWAVFloat32(samples, sampleRate)
	text, err := s.client.Transcribe(ctx, wav, s.cfg.Language)
	return strings.TrimSpace(text), err
}

// StopListening ends the session. The full recording gets one last
// transcription pass, delivered as the single final result.
func (s *Service) StopListening() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	wasListening := s.listening
	s.listening = false
	cancel := s.cancelPoll
	s.cancelPoll = nil
	// No minimum here: even a recording too short for any poll gets its
	// one transcription on the way out.
	hasNewAudio := s.buf.Len() > s.lastPolled
	s.mu.Unlock()

	s.gate.Stop()
	if cancel != nil {
		cancel()
	}
	s.teardownAudio()

	if hasNewAudio {
		ctx, done := context.WithTimeout(context.Background(), finalTimeout)
		text, err := s.transcribeSnapshot(ctx)
		done()
		if err != nil {
			slog.Warn("final transcription failed", "error", err)
		} else if text != "" {
			s.acc.SetPartial(text)
		}
	}

	if text := s.acc.Flush(); text != "" {
		s.delegate.EmitFinal(text)
	}
	if wasListening {
		s.delegate.EmitListening(false)
	}
	slog.Info("grok polling session stopped")
}

// ProcessAudioBuffer accepts externally sourced audio. No-op unless the
// adapter is configured for the external source and a session is live.
func (s *Service) ProcessAudioBuffer(samples []float32, rate int) {
	if s.cfg.Source != types.AudioSourceExternal {
		return
	}
	s.ingest(pcm.ResampleFloat32(samples, rate, sampleRate))
}

func (s *Service) handleAudio(samples []float32) {
	s.ingest(samples)
}

func (s *Service) ingest(samples []float32) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return
	}
	s.buf.Append(samples)
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
