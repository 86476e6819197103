package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"go.aural.dev/aural/internal/types"
)

const (
	grokEndpoint = "https://api.x.ai/v1/audio/transcriptions"

	// DefaultGrokModel is used when no model is requested.
	DefaultGrokModel = "grok-whisper-1"
)

// grokClient transcribes files through the xAI OpenAI-compatible
// multipart endpoint.
type grokClient struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

func newGrok(apiKey string) *grokClient {
	return &grokClient{
		apiKey:   apiKey,
		endpoint: grokEndpoint,
		http:     &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *grokClient) Provider() types.Provider { return types.ProviderGrok }

type grokResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

func (c *grokClient) TranscribeFile(ctx context.Context, audio []byte, opts Options) (*Result, error) {
	format, err := validate(types.ProviderGrok, audio)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = DefaultGrokModel
	}

	body, err := doWithRetry(ctx, c.http, func() (*http.Request, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		part, err := writer.CreateFormFile("file", filename(opts, format))
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(audio); err != nil {
			return nil, fmt.Errorf("write audio data: %w", err)
		}
		if err := writer.WriteField("model", model); err != nil {
			return nil, fmt.Errorf("write model field: %w", err)
		}
		if opts.Language != "" {
			if err := writer.WriteField("language", opts.Language); err != nil {
				return nil, fmt.Errorf("write language field: %w", err)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("close multipart writer: %w", err)
		}

		req, err := http.NewRequest("POST", c.endpoint, &buf)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp grokResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &Result{Text: resp.Text, Language: resp.Language}, nil
}
