// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"go.aural.dev/aural/internal/types"
)

const (
	appName        = "aural"
	configFileName = "config.json"
)

// Credential stores one provider API key.
type Credential struct {
	ID       string         `json:"id"`
	Provider types.Provider `json:"provider"`
	APIKey   string         `json:"api_key"`
}

// Config represents the application configuration.
type Config struct {
	// Legacy field (deprecated, kept for migration)
	APIKeys map[string]string `json:"api_keys,omitempty"`

	Provider            types.Provider    `json:"provider"`
	Model               string            `json:"model,omitempty"`
	Language            string            `json:"language,omitempty"`
	AudioInputDeviceUID string            `json:"audio_input_device_uid,omitempty"`
	Source              types.AudioSource `json:"source,omitempty"`

	// Auto-stop thresholds in seconds. Zero selects the defaults.
	MinimumRecordingTime float64 `json:"minimum_recording_time,omitempty"`
	SilenceDuration      float64 `json:"silence_duration,omitempty"`

	Credentials []Credential `json:"credentials,omitempty"`
}

// Load loads configuration from the config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Provider == "" {
		cfg.Provider = types.ProviderMacOS
	}
	if cfg.Source == "" {
		cfg.Source = types.AudioSourceMicrophone
	}

	if err := cfg.migrateAPIKeys(); err != nil {
		return nil, fmt.Errorf("migrate api keys: %w", err)
	}

	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SetProvider selects the active provider.
func (c *Config) SetProvider(p types.Provider) error {
	if !slices.Contains(types.Providers(), p) {
		return fmt.Errorf("unknown provider: %s", p)
	}
	c.Provider = p
	return c.Save()
}

// APIKey resolves the key for a provider: a stored credential first,
// then the provider's environment variable.
func (c *Config) APIKey(p types.Provider) string {
	for _, cred := range c.Credentials {
		if cred.Provider == p && cred.APIKey != "" {
			return cred.APIKey
		}
	}
	if env := p.Info().EnvVar; env != "" {
		return os.Getenv(env)
	}
	return ""
}

// SetCredential stores or replaces the API key for a provider.
func (c *Config) SetCredential(p types.Provider, apiKey string) error {
	if !slices.Contains(types.Providers(), p) {
		return fmt.Errorf("unknown provider: %s", p)
	}
	if apiKey == "" {
		return fmt.Errorf("api key required")
	}

	idx := slices.IndexFunc(c.Credentials, func(x Credential) bool {
		return x.Provider == p
	})
	if idx >= 0 {
		c.Credentials[idx].APIKey = apiKey
		return c.Save()
	}

	c.Credentials = append(c.Credentials, Credential{
		ID:       uuid.New().String(),
		Provider: p,
		APIKey:   apiKey,
	})
	return c.Save()
}

// RemoveCredential deletes the stored key for a provider.
func (c *Config) RemoveCredential(p types.Provider) error {
	idx := slices.IndexFunc(c.Credentials, func(x Credential) bool {
		return x.Provider == p
	})
	if idx == -1 {
		return fmt.Errorf("no credential for provider: %s", p)
	}
	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

func defaultConfig() *Config {
	return &Config{
		Provider: types.ProviderMacOS,
		Source:   types.AudioSourceMicrophone,
	}
}

// migrateAPIKeys converts the legacy flat api_keys map into credential
// records. The legacy field is cleared after migration.
func (c *Config) migrateAPIKeys() error {
	if len(c.APIKeys) == 0 {
		return nil
	}
	if len(c.Credentials) > 0 {
		c.APIKeys = nil
		return c.Save()
	}

	for _, p := range types.Providers() {
		key, ok := c.APIKeys[string(p)]
		if !ok || key == "" {
			continue
		}
		c.Credentials = append(c.Credentials, Credential{
			ID:       uuid.New().String(),
			Provider: p,
			APIKey:   key,
		})
	}

	c.APIKeys = nil
	return c.Save()
}
