// Package gemini implements the polling speech-to-text adapter for the
// Gemini generateContent API with inline audio.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"
)

const transcribePrompt = "Transcribe the spoken audio verbatim. " +
	"Return only the transcription text with no commentary or formatting."

// Gemini request/response types.
type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiConfig    `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// client issues generateContent calls with inline WAV audio.
type client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func newClient(apiKey, model string) *client {
	if model == "" {
		model = DefaultModel
	}
	return &client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *client) buildRequest(wav []byte, language string) geminiRequest {
	prompt := transcribePrompt
	if language != "" {
		prompt += fmt.Sprintf(" The audio is in language %q.", language)
	}
	return geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &inlineData{
					MimeType: "audio/wav",
					Data:     base64.StdEncoding.EncodeToString(wav),
				}},
			},
		}},
		GenerationConfig: geminiConfig{Temperature: 0},
	}
}

// Transcribe sends WAV audio for transcription and returns the text.
func (c *client) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	jsonBody, err := json.Marshal(c.buildRequest(wav, language))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if geminiResp.Error != nil {
		return "", fmt.Errorf("api error: %d - %s", geminiResp.Error.Code, geminiResp.Error.Message)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}

	return strings.TrimSpace(geminiResp.Candidates[0].Content.Parts[0].Text), nil
}
