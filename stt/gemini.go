package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/pcm"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

	// DefaultGeminiModel is used when no model is requested.
	DefaultGeminiModel = "gemini-2.5-flash"
)

const geminiPrompt = "Transcribe the spoken audio verbatim. " +
	"Return only the transcription text with no commentary or formatting."

// geminiClient transcribes files via generateContent with inline audio.
type geminiClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func newGemini(apiKey string) *geminiClient {
	return &geminiClient{
		apiKey:  apiKey,
		baseURL: geminiBaseURL,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *geminiClient) Provider() types.Provider { return types.ProviderGemini }

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *geminiClient) TranscribeFile(ctx context.Context, audio []byte, opts Options) (*Result, error) {
	format, err := validate(types.ProviderGemini, audio)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	prompt := geminiPrompt
	if opts.Language != "" {
		prompt += fmt.Sprintf(" The audio is in language %q.", opts.Language)
	}

	reqBody := geminiGenerateRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{
					MimeType: mimeType(format),
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)

	body, err := doWithRetry(ctx, c.http, func() (*http.Request, error) {
		req, err := http.NewRequest("POST", url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp geminiGenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("api error: %d - %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no candidates returned")
	}

	return &Result{
		Text:     strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text),
		Language: opts.Language,
	}, nil
}

// mimeType maps a detected format to its content type for uploads.
func mimeType(format pcm.Format) string {
	switch format {
	case pcm.FormatWAV:
		return "audio/wav"
	case pcm.FormatMP3:
		return "audio/mpeg"
	case pcm.FormatM4A:
		return "audio/mp4"
	case pcm.FormatOGG:
		return "audio/ogg"
	case pcm.FormatFLAC:
		return "audio/flac"
	case pcm.FormatWebM:
		return "audio/webm"
	}
	return "application/octet-stream"
}
