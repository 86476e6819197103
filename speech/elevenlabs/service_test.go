package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/speech"
)

type recordingDelegate struct {
	mu     sync.Mutex
	events []string
}

func (d *recordingDelegate) DidReceivePartialResult(text string) { d.add("partial:" + text) }
func (d *recordingDelegate) DidReceiveFinalResult(text string)   { d.add("final:" + text) }
func (d *recordingDelegate) DidFailWithError(err error)          { d.add("error:" + err.Error()) }
func (d *recordingDelegate) DidChangeListeningState(l bool)      { d.add(fmt.Sprintf("listening:%v", l)) }

func (d *recordingDelegate) add(event string) {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
}

func (d *recordingDelegate) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func (d *recordingDelegate) waitFor(t *testing.T, timeout time.Duration, pred func([]string) bool) []string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		events := d.snapshot()
		if pred(events) {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for delegate events, got %v", events)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func contains(events []string, exact string) bool {
	for _, e := range events {
		if e == exact {
			return true
		}
	}
	return false
}

func TestEndpointURL(t *testing.T) {
	t.Run("explicit language", func(t *testing.T) {
		s := New(speech.Config{APIKey: "k", Language: "de"})
		endpoint, err := s.endpointURL()
		if err != nil {
			t.Fatalf("endpointURL: %v", err)
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		q := u.Query()
		if q.Get("model_id") != DefaultModel {
			t.Errorf("model_id = %q, want %q", q.Get("model_id"), DefaultModel)
		}
		if q.Get("sample_rate") != "16000" {
			t.Errorf("sample_rate = %q, want 16000", q.Get("sample_rate"))
		}
		if q.Get("encoding") != "pcm_s16le" {
			t.Errorf("encoding = %q, want pcm_s16le", q.Get("encoding"))
		}
		if q.Get("language_code") != "de" {
			t.Errorf("language_code = %q, want de", q.Get("language_code"))
		}
		if q.Get("detect_language") != "" {
			t.Errorf("detect_language = %q, want unset with an explicit language", q.Get("detect_language"))
		}
	})

	t.Run("auto-detect", func(t *testing.T) {
		s := New(speech.Config{APIKey: "k"})
		endpoint, err := s.endpointURL()
		if err != nil {
			t.Fatalf("endpointURL: %v", err)
		}
		u, _ := url.Parse(endpoint)
		q := u.Query()
		if q.Get("detect_language") != "true" {
			t.Errorf("detect_language = %q, want true", q.Get("detect_language"))
		}
		if q.Get("language_code") != "" {
			t.Errorf("language_code = %q, want unset", q.Get("language_code"))
		}
	})
}

func TestService_SessionLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %q, want test-key", got)
		}
		if got := r.URL.Query().Get("encoding"); got != "pcm_s16le" {
			t.Errorf("encoding query = %q, want pcm_s16le", got)
		}

		var upgrader websocket.Upgrader
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{"message_type": MessageSessionStarted, "session_id": "sess_1"})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var chunk struct {
				MessageType string `json:"message_type"`
			}
			if json.Unmarshal(data, &chunk) != nil || chunk.MessageType != "input_audio" {
				continue
			}
			_ = conn.WriteJSON(map[string]any{"message_type": MessageTentativeTranscript, "text": "hello wor"})
			_ = conn.WriteJSON(map[string]any{"message_type": MessageCommittedTranscript, "text": "hello world"})
		}
	}))
	t.Cleanup(srv.Close)

	svc := New(speech.Config{APIKey: "test-key", Source: types.AudioSourceExternal})
	svc.baseURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	delegate := &recordingDelegate{}
	svc.SetDelegate(delegate)

	if err := svc.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if !svc.IsListening() {
		t.Error("IsListening() = false after StartListening")
	}

	svc.ProcessAudioBuffer(make([]float32, 1600), 16000)

	delegate.waitFor(t, 2*time.Second, func(events []string) bool {
		return contains(events, "partial:hello world")
	})

	svc.StopListening()

	events := delegate.snapshot()
	if events[0] != "listening:true" {
		t.Errorf("first event = %q, want listening:true", events[0])
	}
	if events[len(events)-1] != "listening:false" {
		t.Errorf("last event = %q, want listening:false", events[len(events)-1])
	}
	if !contains(events, "final:hello world") {
		t.Errorf("no final result in %v", events)
	}
	if svc.IsListening() {
		t.Error("IsListening() = true after StopListening")
	}
}

// Audio producers and the stop path run on different goroutines, so
// stopping mid-stream must never touch a channel a producer could still
// be sending on.
func TestService_StopWhileStreamingAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var upgrader websocket.Upgrader
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"message_type": MessageSessionStarted, "session_id": "sess_1"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	svc := New(speech.Config{APIKey: "test-key", Source: types.AudioSourceExternal})
	svc.baseURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	delegate := &recordingDelegate{}
	svc.SetDelegate(delegate)

	if err := svc.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame := make([]float32, 160)
			for {
				select {
				case <-done:
					return
				default:
					svc.ProcessAudioBuffer(frame, 16000)
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	svc.StopListening()
	close(done)
	wg.Wait()

	if svc.IsListening() {
		t.Error("IsListening() = true after StopListening")
	}
	events := delegate.snapshot()
	if events[len(events)-1] != "listening:false" {
		t.Errorf("last event = %q, want listening:false", events[len(events)-1])
	}
}

func TestService_HandshakeFailsFastOnClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var upgrader websocket.Upgrader
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	t.Cleanup(srv.Close)

	svc := New(speech.Config{APIKey: "test-key", Source: types.AudioSourceExternal})
	svc.baseURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	err := svc.StartListening(context.Background())
	if err == nil {
		t.Fatal("StartListening succeeded without a session_started confirmation")
	}
	var serr *speech.Error
	if !errors.As(err, &serr) || serr.Code != speech.ErrorConnection {
		t.Errorf("error = %v, want *speech.Error with connectionError code", err)
	}
	if svc.IsListening() {
		t.Error("IsListening() = true after failed start")
	}
}

func TestService_MissingAPIKey(t *testing.T) {
	svc := New(speech.Config{Source: types.AudioSourceExternal})
	err := svc.StartListening(context.Background())
	var serr *speech.Error
	if !errors.As(err, &serr) || serr.Code != speech.ErrorAPI {
		t.Errorf("error = %v, want apiError for a missing key", err)
	}
}
