package elevenlabs

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go.aural.dev/aural/audiocapture"
	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/pcm"
	"go.aural.dev/aural/speech"
)

const (
	// DefaultBaseURL is the streaming transcription endpoint.
	DefaultBaseURL = "wss://api.elevenlabs.io/v1/speech-to-text/realtime"
	// DefaultModel is used when no model is configured.
	DefaultModel = "scribe_v1"

	// sampleRate is the PCM rate the streaming API expects.
	sampleRate = 16000

	handshakeTimeout  = 5 * time.Second
	handshakePollStep = 50 * time.Millisecond
	maxReconnects     = 3

	reconnectingSentinel = "[Reconnecting...]"
)

// Service is the ElevenLabs streaming adapter. Audio frames travel
// through a dedicated write loop so the capture callback never blocks
// on the socket.
type Service struct {
	cfg      speech.Config
	baseURL  string
	delegate speech.DelegateRef

	mu                sync.Mutex
	active            bool
	listening         bool
	intentionalStop   bool
	sessionStarted    bool
	reconnecting      bool
	reconnectAttempts int
	conn              *websocket.Conn
	capture           *audiocapture.Capture
	audioCh           chan []byte
	quit              chan struct{}

	writeMu sync.Mutex

	acc *speech.Accumulator
	pre *speech.PreBuffer
}

// New creates the adapter.
func New(cfg speech.Config) *Service {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Service{
		cfg:     cfg,
		baseURL: DefaultBaseURL,
		acc:     speech.NewAccumulator(),
		pre:     speech.NewPreBuffer(0),
	}
}

// SetDelegate registers the session observer.
func (s *Service) SetDelegate(d speech.Delegate) { s.delegate.Set(d) }

// Provider identifies this adapter.
func (s *Service) Provider() types.Provider { return types.ProviderElevenLabs }

// IsListening reports whether a session is active.
func (s *Service) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// AvailableModels returns the static catalog.
func (s *Service) AvailableModels() []speech.ModelInfo {
	return []speech.ModelInfo{
		{ID: "scribe_v1", DisplayName: "Scribe v1", IsDefault: true},
		{ID: "scribe_v1_experimental", DisplayName: "Scribe v1 Experimental"},
	}
}

// endpointURL builds the connect URL. Session parameters travel as
// query parameters; authentication is the xi-api-key header.
func (s *Service) endpointURL() (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("model_id", s.cfg.Model)
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	q.Set("encoding", "pcm_s16le")
	if s.cfg.Language != "" {
		q.Set("language_code", s.cfg.Language)
	} else {
		q.Set("detect_language", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// StartListening opens the audio intake, dials the endpoint and waits
// for the session_started confirmation before streaming begins.
func (s *Service) StartListening(ctx context.Context) error {
	s.StopListening()

	if s.cfg.APIKey == "" {
		return speech.Errorf(speech.ErrorAPI, "ElevenLabs API key is not configured")
	}

	s.mu.Lock()
	s.active = true
	s.intentionalStop = false
	s.sessionStarted = false
	s.reconnecting = false
	s.reconnectAttempts = 0
	s.audioCh = make(chan []byte, 64)
	s.quit = make(chan struct{})
	s.acc.Reset()
	s.pre = speech.NewPreBuffer(0)
	audioCh := s.audioCh
	quit := s.quit
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

	go s.writeLoop(audioCh, quit)

	s.mu.Lock()
	s.listening = true
	s.mu.Unlock()
	s.delegate.EmitListening(true)

	s.flushPreBuffer()
	slog.Info("elevenlabs streaming session started", "model", s.cfg.Model)
	return nil
}

func (s *Service) connect(ctx context.Context) error {
	endpoint, err := s.endpointURL()
	if err != nil {
		return speech.NewError(speech.ErrorConnection, "build endpoint url", err)
	}

	header := http.Header{}
	header.Set("xi-api-key", s.cfg.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return speech.NewError(speech.ErrorConnection, "dial streaming endpoint", err)
	}

	readDone := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.sessionStarted = false
	s.mu.Unlock()

	go s.readLoop(conn, readDone)

	if err := s.waitForSession(readDone); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

func (s *Service) waitForSession(readDone chan struct{}) error {
	deadline := time.Now().Add(handshakeTimeout)
	for {
		s.mu.Lock()
		started := s.sessionStarted
		s.mu.Unlock()
		if started {
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

// writeLoop serializes audio frames onto the socket for the lifetime of
// the session, surviving reconnects by re-reading the current conn. The
// quit channel is the only shutdown signal; audioCh is never closed, so
// a producer racing the stop path cannot send on a closed channel.
func (s *Service) writeLoop(audioCh chan []byte, quit chan struct{}) {
	for {
		var payload []byte
		select {
		case <-quit:
			return
		case payload = <-audioCh:
		}

		s.mu.Lock()
		conn := s.conn
		ready := s.sessionStarted
		s.mu.Unlock()

		if conn == nil || !ready {
			s.pre.Push(payload)
			continue
		}

		chunk := newAudioChunk(base64.StdEncoding.EncodeToString(payload))
		s.writeMu.Lock()
		err := conn.WriteJSON(chunk)
		s.writeMu.Unlock()
		if err != nil {
			slog.Debug("send audio failed", "error", err)
			s.pre.Push(payload)
		}
	}
}

// readLoop parses inbound messages until the connection fails. The
// reconnect path runs only after the loop has stopped reading.
func (s *Service) readLoop(conn *websocket.Conn, readDone chan struct{}) {
	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		s.handleMessage(data)
	}
	close(readDone)

	s.mu.Lock()
	stopping := s.intentionalStop
	current := s.conn == conn
	alreadyReconnecting := s.reconnecting
	established := s.sessionStarted
	s.sessionStarted = false
	if !stopping && current && !alreadyReconnecting && established {
		s.reconnecting = true
	}
	s.mu.Unlock()

	// A connection that never completed the handshake is a setup failure
	// surfaced by StartListening, not a candidate for reconnection.
	if stopping || !current || alreadyReconnecting || !established {
		return
	}
	slog.Warn("elevenlabs connection lost", "error", readErr)
	s.reconnect()
}

func (s *Service) handleMessage(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		slog.Debug("unparseable server message", "error", err)
		return
	}

	switch msg.MessageType {
	case MessageSessionStarted:
		s.mu.Lock()
		s.sessionStarted = true
		s.mu.Unlock()
		slog.Debug("session started", "session_id", msg.SessionID)
	case MessageTentativeTranscript:
		s.acc.SetPartial(msg.Text)
		s.delegate.EmitPartial(s.acc.Combined())
	case MessageCommittedTranscript:
		s.acc.Commit(msg.Text)
		s.delegate.EmitPartial(s.acc.Combined())
	case MessageError:
		s.delegate.EmitError(speech.Errorf(speech.ErrorAPI, "%s (%s)", msg.Message, msg.Code))
	default:
		// Ignored for forward compatibility.
	}
}

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
		time.Sleep(time.Duration(1<<attempt) * time.Second)

		s.mu.Lock()
		stale := s.conn
		stopping := s.intentionalStop
		s.mu.Unlock()
		if stopping {
			s.mu.Lock()
			s.reconnecting = false
			s.mu.Unlock()
			return
		}
		if stale != nil {
			_ = stale.Close()
		}

		if err := s.connect(context.Background()); err != nil {
			slog.Warn("elevenlabs reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}

		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
		slog.Info("elevenlabs reconnected", "attempt", attempt+1)
		s.delegate.EmitPartial(s.acc.Combined())
		s.flushPreBuffer()
		return
	}
}

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
	s.stopWriteLoop()
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
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
	s.intentionalStop = true
	s.active = false
	wasListening := s.listening
	s.listening = false
	conn := s.conn
	s.conn = nil
	s.stopWriteLoop()
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
	slog.Info("elevenlabs streaming session stopped")
}

// ProcessAudioBuffer accepts externally sourced audio. No-op unless the
// adapter is configured for the external source and a session is live.
func (s *Service) ProcessAudioBuffer(samples []float32, rate int) {
	if s.cfg.Source != types.AudioSourceExternal {
		return
	}
	s.enqueue(pcm.ResampleFloat32(samples, rate, sampleRate))
}

func (s *Service) handleAudio(samples []float32) {
	s.enqueue(samples)
}

// enqueue hands PCM to the write loop without ever blocking the audio
// callback; if the channel is full the frame goes to the pre-buffer.
func (s *Service) enqueue(samples []float32) {
	s.mu.Lock()
	active := s.active
	audioCh := s.audioCh
	s.mu.Unlock()
	if !active || audioCh == nil {
		return
	}

	payload := pcm.Float32ToPCM16(samples)
	select {
	case audioCh <- payload:
	default:
		s.pre.Push(payload)
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
	for _, payload := range chunks {
		chunk := newAudioChunk(base64.StdEncoding.EncodeToString(payload))
		s.writeMu.Lock()
		err := conn.WriteJSON(chunk)
		s.writeMu.Unlock()
		if err != nil {
			slog.Debug("flush pre-buffer failed", "error", err)
			return
		}
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
	s.stopWriteLoop()
	s.mu.Unlock()
}

// stopWriteLoop signals the write loop to exit. Callers hold s.mu. The
// audio channel is dropped without closing it so late producers only
// ever send into an abandoned buffer.
func (s *Service) stopWriteLoop() {
	if s.quit != nil {
		close(s.quit)
		s.quit = nil
	}
	s.audioCh = nil
}
