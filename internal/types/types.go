// Package types provides shared type definitions for the application.
package types

// Provider identifies a speech-to-text backend. The raw string value is
// what gets persisted in the configuration file.
type Provider string

const (
	ProviderMacOS      Provider = "macOS"
	ProviderOpenAI     Provider = "OpenAI"
	ProviderGemini     Provider = "Gemini"
	ProviderElevenLabs Provider = "ElevenLabs"
	ProviderGrok       Provider = "Grok"
)

// Providers lists every known provider in display order.
func Providers() []Provider {
	return []Provider{
		ProviderMacOS,
		ProviderOpenAI,
		ProviderGemini,
		ProviderElevenLabs,
		ProviderGrok,
	}
}

// ProviderInfo describes the static capabilities of a provider.
type ProviderInfo struct {
	Name                   Provider `json:"name"`
	DisplayName            string   `json:"displayName"`
	Description            string   `json:"description"`
	EnvVar                 string   `json:"envVar"` // development-time API key source
	RequiresAPIKey         bool     `json:"requiresApiKey"`
	SupportsFileTranscribe bool     `json:"supportsFileTranscription"`
	MaxFileSizeMB          int      `json:"maxFileSizeMB"`
	SupportedAudioFormats  []string `json:"supportedAudioFormats"`
}

var providerInfos = map[Provider]ProviderInfo{
	ProviderMacOS: {
		Name:        ProviderMacOS,
		DisplayName: "macOS Speech",
		Description: "On-device recognition, low latency, no API key",
	},
	ProviderOpenAI: {
		Name:                   ProviderOpenAI,
		DisplayName:            "OpenAI",
		Description:            "Realtime streaming transcription with server-side turn detection",
		EnvVar:                 "OPENAI_API_KEY",
		RequiresAPIKey:         true,
		SupportsFileTranscribe: true,
		MaxFileSizeMB:          25,
		SupportedAudioFormats:  []string{"wav", "mp3", "m4a", "ogg", "flac", "webm"},
	},
	ProviderGemini: {
		Name:                   ProviderGemini,
		DisplayName:            "Gemini",
		Description:            "Periodic re-transcription over the rolling recording buffer",
		EnvVar:                 "GEMINI_API_KEY",
		RequiresAPIKey:         true,
		SupportsFileTranscribe: true,
		MaxFileSizeMB:          20,
		SupportedAudioFormats:  []string{"wav", "mp3", "ogg", "flac"},
	},
	ProviderElevenLabs: {
		Name:                   ProviderElevenLabs,
		DisplayName:            "ElevenLabs",
		Description:            "Low-latency websocket streaming transcription",
		EnvVar:                 "ELEVENLABS_API_KEY",
		RequiresAPIKey:         true,
		SupportsFileTranscribe: true,
		MaxFileSizeMB:          1024,
		SupportedAudioFormats:  []string{"wav", "mp3", "m4a", "ogg", "flac", "webm"},
	},
	ProviderGrok: {
		Name:                   ProviderGrok,
		DisplayName:            "Grok",
		Description:            "Batch re-transcription via the xAI audio endpoint",
		EnvVar:                 "GROK_API_KEY",
		RequiresAPIKey:         true,
		SupportsFileTranscribe: true,
		MaxFileSizeMB:          25,
		SupportedAudioFormats:  []string{"wav", "mp3", "m4a"},
	},
}

// Info returns the static capability record for p. Unknown providers
// yield a zero record with only the name set.
func (p Provider) Info() ProviderInfo {
	if info, ok := providerInfos[p]; ok {
		return info
	}
	return ProviderInfo{Name: p}
}

// AudioSource selects where a listening session's audio comes from.
type AudioSource string

const (
	// AudioSourceMicrophone captures from an input device owned by the adapter.
	AudioSourceMicrophone AudioSource = "microphone"
	// AudioSourceExternal accepts buffers pushed in via ProcessAudioBuffer,
	// e.g. system or application audio captured elsewhere.
	AudioSourceExternal AudioSource = "external"
)

// TranscriptRecord is a finished dictation stored in history.
type TranscriptRecord struct {
	ID        string   `json:"id"`
	Provider  Provider `json:"provider"`
	Text      string   `json:"text"`
	Language  string   `json:"language,omitempty"` // detected or configured ISO-639-1 code
	CreatedAt int64    `json:"createdAt"`          // unix milliseconds
}
