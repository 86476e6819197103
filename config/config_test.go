package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.aural.dev/aural/internal/types"
)

// useTempConfigDir points the user config directory at a throwaway
// location for the duration of the test.
func useTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("AppData", dir)
	return dir
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	useTempConfigDir(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != types.ProviderMacOS {
		t.Errorf("Provider = %s, want macOS", cfg.Provider)
	}
	if cfg.Source != types.AudioSourceMicrophone {
		t.Errorf("Source = %s, want microphone", cfg.Source)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	useTempConfigDir(t)

	cfg := &Config{
		Provider:             types.ProviderOpenAI,
		Model:                "whisper-1",
		Language:             "de",
		Source:               types.AudioSourceExternal,
		MinimumRecordingTime: 8,
		SilenceDuration:      2.5,
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Provider != types.ProviderOpenAI || loaded.Model != "whisper-1" || loaded.Language != "de" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.MinimumRecordingTime != 8 || loaded.SilenceDuration != 2.5 {
		t.Errorf("thresholds = %v/%v, want 8/2.5", loaded.MinimumRecordingTime, loaded.SilenceDuration)
	}
}

func TestSetProvider(t *testing.T) {
	useTempConfigDir(t)
	cfg := defaultConfig()

	if err := cfg.SetProvider(types.ProviderGemini); err != nil {
		t.Fatalf("SetProvider: %v", err)
	}
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Provider != types.ProviderGemini {
		t.Errorf("Provider = %s, want Gemini", loaded.Provider)
	}

	if err := cfg.SetProvider("Whisper"); err == nil {
		t.Error("SetProvider accepted an unknown provider")
	}
}

func TestAPIKey_CredentialBeforeEnvironment(t *testing.T) {
	useTempConfigDir(t)
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg := defaultConfig()
	if got := cfg.APIKey(types.ProviderGemini); got != "env-key" {
		t.Errorf("APIKey = %q, want env fallback", got)
	}

	if err := cfg.SetCredential(types.ProviderGemini, "stored-key"); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if got := cfg.APIKey(types.ProviderGemini); got != "stored-key" {
		t.Errorf("APIKey = %q, want stored credential to win", got)
	}

	// No credential, no env var.
	t.Setenv("GROK_API_KEY", "")
	if got := cfg.APIKey(types.ProviderGrok); got != "" {
		t.Errorf("APIKey = %q, want empty", got)
	}
}

func TestSetCredential(t *testing.T) {
	useTempConfigDir(t)
	cfg := defaultConfig()

	if err := cfg.SetCredential(types.ProviderOpenAI, "first"); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if len(cfg.Credentials) != 1 || cfg.Credentials[0].ID == "" {
		t.Fatalf("Credentials = %+v, want one entry with an id", cfg.Credentials)
	}
	originalID := cfg.Credentials[0].ID

	// Replacing updates in place rather than appending.
	if err := cfg.SetCredential(types.ProviderOpenAI, "second"); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if len(cfg.Credentials) != 1 {
		t.Errorf("Credentials = %d entries after replace, want 1", len(cfg.Credentials))
	}
	if cfg.Credentials[0].APIKey != "second" || cfg.Credentials[0].ID != originalID {
		t.Errorf("replaced credential = %+v", cfg.Credentials[0])
	}

	if err := cfg.SetCredential(types.ProviderOpenAI, ""); err == nil {
		t.Error("SetCredential accepted an empty key")
	}
	if err := cfg.SetCredential("Whisper", "key"); err == nil {
		t.Error("SetCredential accepted an unknown provider")
	}
}

func TestRemoveCredential(t *testing.T) {
	useTempConfigDir(t)
	cfg := defaultConfig()

	if err := cfg.SetCredential(types.ProviderGrok, "key"); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if err := cfg.RemoveCredential(types.ProviderGrok); err != nil {
		t.Fatalf("RemoveCredential: %v", err)
	}
	if len(cfg.Credentials) != 0 {
		t.Errorf("Credentials = %+v after removal, want empty", cfg.Credentials)
	}

	if err := cfg.RemoveCredential(types.ProviderGrok); err == nil {
		t.Error("RemoveCredential succeeded for a missing credential")
	}
}

func TestLoad_MigratesLegacyAPIKeys(t *testing.T) {
	dir := useTempConfigDir(t)

	path, err := configPath()
	if err != nil {
		t.Fatalf("configPath: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Fatalf("config path %q escaped the temp dir %q", path, dir)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	legacy := `{
  "provider": "OpenAI",
  "api_keys": {"OpenAI": "legacy-openai", "Gemini": "legacy-gemini", "macOS": ""}
}`
	if err := os.WriteFile(path, []byte(legacy), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKeys != nil {
		t.Errorf("legacy map not cleared: %v", cfg.APIKeys)
	}
	if len(cfg.Credentials) != 2 {
		t.Fatalf("Credentials = %+v, want 2 migrated entries", cfg.Credentials)
	}
	if got := cfg.APIKey(types.ProviderOpenAI); got != "legacy-openai" {
		t.Errorf("APIKey(OpenAI) = %q, want legacy-openai", got)
	}
	if got := cfg.APIKey(types.ProviderGemini); got != "legacy-gemini" {
		t.Errorf("APIKey(Gemini) = %q, want legacy-gemini", got)
	}

	// Migration rewrites the file without the legacy field.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]json.RawMessage
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if _, ok := onDisk["api_keys"]; ok {
		t.Error("persisted config still carries the legacy api_keys field")
	}
	if _, ok := onDisk["credentials"]; !ok {
		t.Error("persisted config is missing the migrated credentials")
	}
}
