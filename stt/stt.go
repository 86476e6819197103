// Package stt provides batch file transcription clients for the cloud
// providers. Unlike the realtime adapters in speech/, these take a
// complete audio file and return the full transcript in one call.
package stt

import (
	"context"
	"fmt"

	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/pcm"
)

// Result is a finished file transcription.
type Result struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"` // detected language when the API reports it
}

// Options tunes one transcription call.
type Options struct {
	Model    string // "" selects the provider default
	Language string // ISO-639-1 code, "" = auto-detect
	Filename string // "" synthesizes one from the detected format
}

// FileTranscriber transcribes complete audio files.
type FileTranscriber interface {
	// TranscribeFile sends the audio and returns the transcript. The
	// audio format is detected from the payload; unsupported formats
	// and oversized payloads fail before any network traffic.
	TranscribeFile(ctx context.Context, audio []byte, opts Options) (*Result, error)

	// Provider identifies the backend.
	Provider() types.Provider
}

// New returns the file transcription client for the given provider.
func New(provider types.Provider, apiKey string) (FileTranscriber, error) {
	if !provider.Info().SupportsFileTranscribe {
		return nil, fmt.Errorf("provider %s does not support file transcription", provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s requires an API key", provider)
	}

	switch provider {
	case types.ProviderOpenAI:
		return newOpenAI(apiKey), nil
	case types.ProviderGemini:
		return newGemini(apiKey), nil
	case types.ProviderElevenLabs:
		return newElevenLabs(apiKey), nil
	case types.ProviderGrok:
		return newGrok(apiKey), nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

// validate checks payload size and format against the provider's static
// capabilities, returning the detected format.
func validate(provider types.Provider, audio []byte) (pcm.Format, error) {
	info := provider.Info()

	if len(audio) == 0 {
		return pcm.FormatUnknown, fmt.Errorf("empty audio payload")
	}
	if max := info.MaxFileSizeMB * 1024 * 1024; max > 0 && len(audio) > max {
		return pcm.FormatUnknown, fmt.Errorf("audio payload %d bytes exceeds the %dMB limit for %s",
			len(audio), info.MaxFileSizeMB, provider)
	}

	format := pcm.DetectFormat(audio)
	for _, supported := range info.SupportedAudioFormats {
		if string(format) == supported {
			return format, nil
		}
	}
	return format, fmt.Errorf("audio format %q is not supported by %s", format, provider)
}

// filename returns the provided name or synthesizes one from the format.
func filename(opts Options, format pcm.Format) string {
	if opts.Filename != "" {
		return opts.Filename
	}
	return "audio." + format.Extension()
}
