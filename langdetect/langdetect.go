// Package langdetect identifies the language of finished transcripts so
// history records carry an ISO code even when the provider does not
// report one.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// minLength is the shortest text worth classifying; shorter snippets
// produce unreliable guesses.
const minLength = 12

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Common dictation languages. A constrained candidate set is both
// faster and more accurate than the full catalog.
var candidates = []lingua.Language{
	lingua.English,
	lingua.Chinese,
	lingua.Japanese,
	lingua.Korean,
	lingua.French,
	lingua.German,
	lingua.Spanish,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Russian,
	lingua.Arabic,
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(candidates...).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}

// Detect returns the ISO-639-1 code of the text's language, or "" when
// the text is too short or classification fails.
func Detect(text string) string {
	text = strings.TrimSpace(text)
	if len(text) < minLength {
		return ""
	}

	lang, ok := getDetector().DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

// DisplayName renders an ISO-639-1 code as a human-readable English
// language name, falling back to the code itself.
func DisplayName(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return display.English.Languages().Name(tag)
}
