package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

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

func newTranscribeServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("path = %q, want a :generateContent call", r.URL.Path)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("request shape = %+v, want one content with prompt and audio parts", req.Contents)
		} else if req.Contents[0].Parts[1].InlineData.MimeType != "audio/wav" {
			t.Errorf("mime = %q, want audio/wav", req.Contents[0].Parts[1].InlineData.MimeType)
		}

		resp := geminiResponse{Candidates: []geminiCandidate{{
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestService_StopDeliversFinalTranscription(t *testing.T) {
	srv := newTranscribeServer(t, " hello from the recording \n")

	svc := New(speech.Config{APIKey: "test-key", Source: types.AudioSourceExternal})
	svc.client.baseURL = srv.URL
	delegate := &recordingDelegate{}
	svc.SetDelegate(delegate)

	if err := svc.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if !svc.IsListening() {
		t.Error("IsListening() = false after start")
	}

	// A bit over the one-second minimum, then an immediate stop: the
	// final transcription pass covers audio no poll has seen yet.
	svc.ProcessAudioBuffer(make([]float32, sampleRate+4000), sampleRate)
	svc.StopListening()

	events := delegate.snapshot()
	if events[0] != "listening:true" {
		t.Errorf("first event = %q, want listening:true", events[0])
	}
	if events[len(events)-1] != "listening:false" {
		t.Errorf("last event = %q, want listening:false", events[len(events)-1])
	}
	foundFinal := false
	for _, e := range events {
		if e == "final:hello from the recording" {
			foundFinal = true
		}
	}
	if !foundFinal {
		t.Errorf("no final with the transcribed text in %v", events)
	}
	if svc.IsListening() {
		t.Error("IsListening() = true after stop")
	}
}

func TestService_StopTranscribesShortRecording(t *testing.T) {
	srv := newTranscribeServer(t, "yes")

	svc := New(speech.Config{APIKey: "test-key", Source: types.AudioSourceExternal})
	svc.client.baseURL = srv.URL
	delegate := &recordingDelegate{}
	svc.SetDelegate(delegate)

	if err := svc.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	// Far below the one-second polling minimum; the stop path still
	// transcribes what was recorded.
	svc.ProcessAudioBuffer(make([]float32, 2000), sampleRate)
	svc.StopListening()

	events := delegate.snapshot()
	found := false
	for _, e := range events {
		if e == "final:yes" {
			found = true
		}
	}
	if !found {
		t.Errorf("short recording produced no final result: %v", events)
	}
}

func TestService_FailedPollRetriedOnStop(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_ = json.NewEncoder(w).Encode(geminiResponse{
				Error: &geminiError{Code: 503, Message: "model overloaded"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(geminiResponse{Candidates: []geminiCandidate{{
			Content: geminiContent{Parts: []geminiPart{{Text: "recovered words"}}},
		}}})
	}))
	t.Cleanup(srv.Close)

	svc := New(speech.Config{APIKey: "test-key", Source: types.AudioSourceExternal})
	svc.client.baseURL = srv.URL
	delegate := &recordingDelegate{}
	svc.SetDelegate(delegate)

	if err := svc.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	svc.ProcessAudioBuffer(make([]float32, sampleRate+4000), sampleRate)

	// The poll fails; its audio must stay unaccounted so the stop path
	// transcribes it instead of dropping it.
	svc.pollOnce(context.Background())
	svc.StopListening()

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("transcription calls = %d, want a retry on stop", got)
	}
	events := delegate.snapshot()
	found := false
	for _, e := range events {
		if e == "final:recovered words" {
			found = true
		}
	}
	if !found {
		t.Errorf("audio from the failed poll was dropped: %v", events)
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

func TestClient_TranscribeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiResponse{
			Error: &geminiError{Code: 403, Message: "key not valid"},
		})
	}))
	t.Cleanup(srv.Close)

	c := newClient("bad-key", "")
	c.baseURL = srv.URL
	_, err := c.Transcribe(context.Background(), []byte("RIFFfake"), "")
	if err == nil || !strings.Contains(err.Error(), "key not valid") {
		t.Errorf("err = %v, want api error", err)
	}
}

func TestClient_BuildRequestLanguageHint(t *testing.T) {
	c := newClient("k", "")
	req := c.buildRequest([]byte("audio"), "ja")
	prompt := req.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, `"ja"`) {
		t.Errorf("prompt %q missing the language hint", prompt)
	}
	if c.model != DefaultModel {
		t.Errorf("model = %q, want default %q", c.model, DefaultModel)
	}
}
