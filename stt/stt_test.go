package stt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/pcm"
)

func TestNew(t *testing.T) {
	t.Run("file-capable providers", func(t *testing.T) {
		for _, p := range []types.Provider{
			types.ProviderOpenAI,
			types.ProviderGemini,
			types.ProviderElevenLabs,
			types.ProviderGrok,
		} {
			client, err := New(p, "key")
			if err != nil {
				t.Errorf("New(%s): %v", p, err)
				continue
			}
			if client.Provider() != p {
				t.Errorf("Provider() = %s, want %s", client.Provider(), p)
			}
		}
	})

	t.Run("on-device provider has no file path", func(t *testing.T) {
		if _, err := New(types.ProviderMacOS, "key"); err == nil {
			t.Error("New(macOS) succeeded, want error")
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := New(types.ProviderOpenAI, ""); err == nil {
			t.Error("New with empty key succeeded, want error")
		}
	})
}

func TestValidate(t *testing.T) {
	wav := pcm.EncodeWAV(make([]byte, 320), 16000)

	t.Run("wav accepted", func(t *testing.T) {
		format, err := validate(types.ProviderOpenAI, wav)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if format != pcm.FormatWAV {
			t.Errorf("format = %q, want wav", format)
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		if _, err := validate(types.ProviderOpenAI, nil); err == nil {
			t.Error("validate accepted an empty payload")
		}
	})

	t.Run("oversized payload", func(t *testing.T) {
		big := make([]byte, 21*1024*1024)
		copy(big, wav)
		_, err := validate(types.ProviderGemini, big) // 20MB limit
		if err == nil || !strings.Contains(err.Error(), "exceeds") {
			t.Errorf("validate = %v, want size limit error", err)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		webm := append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, 64)...)
		_, err := validate(types.ProviderGrok, webm) // wav/mp3/m4a only
		if err == nil || !strings.Contains(err.Error(), "not supported") {
			t.Errorf("validate = %v, want format error", err)
		}
	})

	t.Run("unknown format rejected", func(t *testing.T) {
		if _, err := validate(types.ProviderOpenAI, []byte("garbage bytes here....")); err == nil {
			t.Error("validate accepted an unrecognized payload")
		}
	})
}

func TestFilename(t *testing.T) {
	if got := filename(Options{Filename: "take1.mp3"}, pcm.FormatWAV); got != "take1.mp3" {
		t.Errorf("filename = %q, want explicit name preserved", got)
	}
	if got := filename(Options{}, pcm.FormatMP3); got != "audio.mp3" {
		t.Errorf("filename = %q, want audio.mp3", got)
	}
}

func TestTransientStatus(t *testing.T) {
	transient := []int{429, 500, 502, 503, 504}
	for _, code := range transient {
		if !transientStatus(code) {
			t.Errorf("transientStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 413} {
		if transientStatus(code) {
			t.Errorf("transientStatus(%d) = true, want false", code)
		}
	}
}

func TestDoWithRetry_RecoversFromTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	body, err := doWithRetry(context.Background(), srv.Client(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	if err != nil {
		t.Fatalf("doWithRetry: %v", err)
	}
	if string(body) != `{"text":"ok"}` {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestDoWithRetry_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	_, err := doWithRetry(context.Background(), srv.Client(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	if err == nil || !strings.Contains(err.Error(), "api error 400") {
		t.Fatalf("err = %v, want api error 400", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestDoWithRetry_ContextCancelStopsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := doWithRetry(ctx, srv.Client(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, want prompt return", elapsed)
	}
}

func TestDoWithRetry_BuildErrorIsFatal(t *testing.T) {
	_, err := doWithRetry(context.Background(), http.DefaultClient, func() (*http.Request, error) {
		return nil, errors.New("cannot build request")
	})
	if err == nil || !strings.Contains(err.Error(), "cannot build request") {
		t.Errorf("err = %v, want build error", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate([]byte("short"), 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate([]byte("0123456789abcdef"), 10); got != "0123456789..." {
		t.Errorf("truncate = %q", got)
	}
}
