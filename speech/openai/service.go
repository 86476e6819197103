package openai

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go.aural.dev/aural/audiocapture"
	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/pcm"
	"go.aural.dev/aural/speech"
)

const (
	// DefaultURL is the realtime transcription endpoint.
	DefaultURL = "wss://api.openai.com/v1/realtime?intent=transcription"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-transcribe"

	// sampleRate is the PCM rate the realtime API expects.
	sampleRate = 24000

	handshakeTimeout  = 5 * time.Second
	handshakePollStep = 50 * time.Millisecond
	maxReconnects     = 3

	// reconnectingSentinel informs the UI layer that the transport
	// dropped and is being re-established.
	reconnectingSentinel = "[Reconnecting...]"
)

// Service is the OpenAI realtime streaming adapter. One instance owns
// at most one live session.
type Service struct {
	cfg      speech.Config
	url      string
	delegate speech.DelegateRef
	backoff  func(attempt int) time.Duration

	mu                sync.Mutex
	active            bool // session exists (audio may flow to the pre-buffer)
	listening         bool // handshake done, delegate informed
	intentionalStop   bool
	sessionCreated    bool
	reconnecting      bool
	reconnectAttempts int
	conn              *websocket.Conn
	capture           *audiocapture.Capture

	writeMu sync.Mutex

	acc *speech.Accumulator
	pre *speech.PreBuffer
}

// New creates the adapter. The session is not started until
// StartListening.
func New(cfg speech.Config) *Service {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Service{
		cfg: cfg,
		url: DefaultURL,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
		acc: speech.NewAccumulator(),
		pre: speech.NewPreBuffer(0),
	}
}

// SetDelegate registers the session observer.
func (s *Service) SetDelegate(d speech.Delegate) { s.delegate.Set(d) }

// Provider identifies this adapter.
func (s *Service) Provider() types.Provider { return types.ProviderOpenAI }

// IsListening reports whether a session is active.
func (s *Service) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// AvailableModels returns the static catalog for the realtime API.
func (s *Service) AvailableModels() []speech.ModelInfo {
	return []speech.ModelInfo{
		{ID: "gpt-4o-transcribe", DisplayName: "GPT-4o Transcribe", IsDefault: true},
		{ID: "gpt-4o-mini-transcribe", DisplayName: "GPT-4o Mini Transcribe"},
		{ID: "whisper-1", DisplayName: "Whisper"},
	}
}

// StartListening opens the microphone (or the external-buffer intake),
// dials the realtime endpoint, performs the session handshake and
// begins streaming. A session already in progress is stopped first.
func (s *Service) StartListening(ctx context.Context) error {
	s.StopListening()

	if s.cfg.APIKey == "" {
		return speech.Errorf(speech.ErrorAPI, "OpenAI API key is not configured")
	}

	s.mu.Lock()
	s.active = true
	s.intentionalStop = false
	s.sessionCreated = false
	s.reconnecting = false
	s.reconnectAttempts = 0
	s.acc.Reset()
	s.pre = speech.NewPreBuffer(0)
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

	if err := s.connect(ctx); err != nil {
		s.teardownAudio()
		s.resetSession()
		return err
	}

	s.mu.Lock()
	s.listening = true
	s.mu.Unlock()
	s.delegate.EmitListening(true)

	s.flushPreBuffer()
	slog.Info("openai realtime session started", "model", s.cfg.Model)
	return nil
}

// connect dials the endpoint, starts the receive loop, waits for the
// handshake confirmation and sends the session configuration.
func (s *Service) connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return speech.NewError(speech.ErrorConnection, "dial realtime endpoint", err)
	}

	readDone := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.sessionCreated = false
	s.mu.Unlock()

	go s.receiveLoop(conn, readDone)

	if err := s.waitForSession(readDone); err != nil {
		_ = conn.Close()
		return err
	}

	if err := s.sendSessionConfig(conn); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

// waitForSession polls until the handshake confirmation event arrives,
// failing on timeout or if the socket closes during the wait.
func (s *Service) waitForSession(readDone chan struct{}) error {
	deadline := time.Now().Add(handshakeTimeout)
	for {
		s.mu.Lock()
		created := s.sessionCreated
		s.mu.Unlock()
		if created {
			return nil
		}
		select {
		case <-readDone:
			return speech.Errorf(speech.ErrorConnection, "connection closed during session handshake")
		case <-time.After(handshakePollStep):
		}
		if time.Now().After(deadline) {
			return speech.Errorf(speech.ErrorConnection, "timed out waiting for session handshake")
		}
	}
}

// sendSessionConfig sends the one-time configuration message with
// adaptive turn detection.
func (s *Service) sendSessionConfig(conn *websocket.Conn) error {
	update := SessionUpdate{
		Type: "transcription_session.update",
		Session: SessionConfig{
			InputAudioFormat: "pcm16",
			TurnDetection:    s.turnDetection(),
			InputAudioTranscription: &TranscriptionModel{
				Model:    s.cfg.Model,
				Language: s.cfg.Language,
			},
		},
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(update); err != nil {
		return speech.NewError(speech.ErrorConnection, "send session configuration", err)
	}
	return nil
}

// turnDetection derives server-VAD parameters. Microphone input adapts
// the threshold to the measured ambient noise floor; externally sourced
// audio (system or video playback) rarely produces true silence, so it
// gets fixed, more permissive values.
func (s *Service) turnDetection() *TurnDetection {
	if s.cfg.Source == types.AudioSourceExternal {
		return &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.7,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 1000,
		}
	}

	threshold := 0.5
	silenceMs := 500

	s.mu.Lock()
	capture := s.capture
	s.mu.Unlock()
	if capture != nil {
		noise := float64(capture.NoiseFloor())
		// Map the noise floor into the server threshold range, keeping
		// headroom above it so steady background hum is not speech.
		threshold = noise*8 + 0.35
		if threshold > 0.85 {
			threshold = 0.85
		}
		if noise > 0.05 {
			silenceMs = 800
		}
	}

	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         threshold,
		PrefixPaddingMs:   300,
		SilenceDurationMs: silenceMs,
	}
}

// receiveLoop reads server events until the connection fails or the
// session stops. On an unexpected failure it runs the reconnect path
// after the loop has fully stopped reading, so two sockets never serve
// one session concurrently.
func (s *Service) receiveLoop(conn *websocket.Conn, readDone chan struct{}) {
	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		s.handleServerEvent(data)
	}
	close(readDone)

	s.mu.Lock()
	stopping := s.intentionalStop
	current := s.conn == conn
	alreadyReconnecting := s.reconnecting
	established := s.sessionCreated
	s.sessionCreated = false
	if !stopping && current && !alreadyReconnecting && established {
		s.reconnecting = true
	}
	s.mu.Unlock()

	// A connection that never completed the handshake is a setup failure
	// surfaced by StartListening, not a candidate for reconnection.
	if stopping || !current || alreadyReconnecting || !established {
		return
	}
	slog.Warn("openai realtime connection lost", "error", readErr)
	s.reconnect()
}

func (s *Service) handleServerEvent(data []byte) {
	event, err := ParseEvent(data)
	if err != nil {
		slog.Debug("unparseable server event", "error", err)
		return
	}

	switch e := event.(type) {
	case SessionCreatedEvent:
		s.mu.Lock()
		s.sessionCreated = true
		s.mu.Unlock()
	case TranscriptDeltaEvent:
		s.acc.AppendDelta(e.Delta)
		s.delegate.EmitPartial(s.acc.Combined())
	case TranscriptCompletedEvent:
		s.acc.Commit(e.Transcript)
		s.delegate.EmitPartial(s.acc.Combined())
	case ErrorEvent:
		s.delegate.EmitError(speech.Errorf(speech.ErrorAPI, "%s (%s)", e.Error.Message, e.Error.Code))
	default:
		// Unrecognized event types are ignored for forward compatibility.
	}
}

// reconnect re-establishes the transport with exponential backoff,
// preserving accumulated text. Exhausting the attempt budget surfaces
// the accumulated text and a terminal error.
func (s *Service) reconnect() {
	for {
		s.mu.Lock()
		if s.intentionalStop {
			s.reconnecting = false
			s.mu.Unlock()
			return
		}
		attempt := s.reconnectAttempts
		if attempt >= maxReconnects {
			s.reconnecting = false
			s.mu.Unlock()
			s.terminalFailure(speech.Errorf(speech.ErrorConnection,
				"connection lost after %d reconnect attempts", maxReconnects))
			return
		}
		s.reconnectAttempts++
		s.mu.Unlock()

		s.delegate.EmitPartial(reconnectingSentinel)
		time.Sleep(s.backoff(attempt))

		s.mu.Lock()
		stale := s.conn
		stopping := s.intentionalStop
		s.mu.Unlock()
		if stopping {
			return
		}
		if stale != nil {
			_ = stale.Close()
		}

		if err := s.connect(context.Background()); err != nil {
			slog.Warn("openai realtime reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}

		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
		slog.Info("openai realtime reconnected", "attempt", attempt+1)
		s.delegate.EmitPartial(s.acc.Combined())
		s.flushPreBuffer()
		return
	}
}

// terminalFailure flushes accumulated text, reports the error and tears
// the session down. A network drop never silently discards work already
// transcribed.
func (s *Service) terminalFailure(err *speech.Error) {
	text := s.acc.Flush()
	if text != "" {
		s.delegate.EmitFinal(text)
	}
	s.delegate.EmitError(err)

	s.teardownAudio()
	s.mu.Lock()
	wasListening := s.listening
	conn := s.conn
	s.conn = nil
	s.listening = false
	s.active = false
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if wasListening {
		s.delegate.EmitListening(false)
	}
}

// StopListening ends the session, flushing any accumulated text as
// exactly one final result. Safe to call in any state.
func (s *Service) StopListening() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.intentionalStop = true
	s.active = false
	wasListening := s.listening
	s.listening = false
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.teardownAudio()

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
		s.writeMu.Unlock()
		_ = conn.Close()
	}

	if text := s.acc.Flush(); text != "" {
		s.delegate.EmitFinal(text)
	}
	if wasListening {
		s.delegate.EmitListening(false)
	}
	slog.Info("openai realtime session stopped")
}

// ProcessAudioBuffer accepts externally sourced audio. No-op unless the
// adapter is configured for the external source and a session is live.
func (s *Service) ProcessAudioBuffer(samples []float32, rate int) {
	if s.cfg.Source != types.AudioSourceExternal {
		return
	}
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return
	}
	s.enqueueAudio(pcm.ResampleFloat32(samples, rate, sampleRate))
}

// handleAudio receives microphone samples on the capture callback. It
// only encodes and enqueues; anything heavier runs elsewhere.
func (s *Service) handleAudio(samples []float32) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return
	}
	s.enqueueAudio(samples)
}

func (s *Service) enqueueAudio(samples []float32) {
	payload := pcm.Float32ToPCM16(samples)

	s.mu.Lock()
	ready := s.sessionCreated
	conn := s.conn
	s.mu.Unlock()

	// Audio captured before the handshake completes (or while the
	// transport reconnects) is held in the bounded pre-buffer.
	if !ready || conn == nil {
		s.pre.Push(payload)
		return
	}
	s.sendAudio(conn, payload)
}

func (s *Service) sendAudio(conn *websocket.Conn, payload []byte) {
	event := AppendAudio(base64.StdEncoding.EncodeToString(payload))
	s.writeMu.Lock()
	err := conn.WriteJSON(event)
	s.writeMu.Unlock()
	if err != nil {
		slog.Debug("send audio failed", "error", err)
	}
}

func (s *Service) flushPreBuffer() {
	chunks := s.pre.Drain()
	if len(chunks) == 0 {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	for _, chunk := range chunks {
		s.sendAudio(conn, chunk)
	}
	slog.Debug("flushed pre-buffered audio", "chunks", len(chunks))
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
