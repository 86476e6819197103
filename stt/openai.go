package stt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aural.dev/aural/internal/types"
)

// DefaultOpenAIModel is used when no model is requested.
const DefaultOpenAIModel = "gpt-4o-transcribe"

// openAIClient transcribes files through the OpenAI audio API.
type openAIClient struct {
	client openai.Client
}

func newOpenAI(apiKey string) *openAIClient {
	return &openAIClient{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(maxRetries),
		),
	}
}

func (c *openAIClient) Provider() types.Provider { return types.ProviderOpenAI }

func (c *openAIClient) TranscribeFile(ctx context.Context, audio []byte, opts Options) (*Result, error) {
	format, err := validate(types.ProviderOpenAI, audio)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), filename(opts, format), mimeType(format)),
		Model: openai.AudioModel(model),
	}
	if opts.Language != "" {
		params.Language = openai.String(opts.Language)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcribe file: %w", err)
	}

	return &Result{Text: resp.Text, Language: opts.Language}, nil
}
