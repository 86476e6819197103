package app

import (
	"fmt"

	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/speech"
	"go.aural.dev/aural/speech/apple"
	"go.aural.dev/aural/speech/elevenlabs"
	"go.aural.dev/aural/speech/gemini"
	"go.aural.dev/aural/speech/grok"
	"go.aural.dev/aural/speech/openai"
)

// NewRecognizer builds the realtime adapter for a provider. The
// provider set is closed; anything else is a configuration error.
func NewRecognizer(provider types.Provider, cfg speech.Config) (speech.Recognizer, error) {
	if provider.Info().RequiresAPIKey && cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s requires an API key (set %s or store a credential)",
			provider, provider.Info().EnvVar)
	}

	switch provider {
	case types.ProviderMacOS:
		return apple.New(cfg), nil
	case types.ProviderOpenAI:
		return openai.New(cfg), nil
	case types.ProviderGemini:
		return gemini.New(cfg), nil
	case types.ProviderElevenLabs:
		return elevenlabs.New(cfg), nil
	case types.ProviderGrok:
		return grok.New(cfg), nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}
