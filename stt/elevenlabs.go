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
	elevenLabsEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

	// DefaultElevenLabsModel is used when no model is requested.
	DefaultElevenLabsModel = "scribe_v1"
)

// elevenLabsClient transcribes files through the ElevenLabs STT API.
type elevenLabsClient struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

func newElevenLabs(apiKey string) *elevenLabsClient {
	return &elevenLabsClient{
		apiKey:   apiKey,
		endpoint: elevenLabsEndpoint,
		http:     &http.Client{Timeout: 300 * time.Second},
	}
}

func (c *elevenLabsClient) Provider() types.Provider { return types.ProviderElevenLabs }

type elevenLabsResponse struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
}

func (c *elevenLabsClient) TranscribeFile(ctx context.Context, audio []byte, opts Options) (*Result, error) {
	format, err := validate(types.ProviderElevenLabs, audio)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = DefaultElevenLabsModel
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
		if err := writer.WriteField("model_id", model); err != nil {
			return nil, fmt.Errorf("write model field: %w", err)
		}
		if opts.Language != "" {
			if err := writer.WriteField("language_code", opts.Language); err != nil {
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
		req.Header.Set("xi-api-key", c.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp elevenLabsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &Result{Text: resp.Text, Language: resp.LanguageCode}, nil
}
