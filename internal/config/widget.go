package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WidgetConfig configures the terminal chat widget.
type WidgetConfig struct {
	ServerURL    string        `yaml:"server_url"`
	CachePath    string        `yaml:"cache_path"`
	GuestDomain  string        `yaml:"guest_domain"`
	Language     string        `yaml:"language"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	LogLevel     string        `yaml:"log_level"`
}

// DefaultWidgetConfig returns the widget defaults.
func DefaultWidgetConfig() *WidgetConfig {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return &WidgetConfig{
		ServerURL:    "http://localhost:8080",
		CachePath:    filepath.Join(cacheDir, "fin-advisor", "cache.json"),
		GuestDomain:  DefaultGuestDomain,
		Language:     "en",
		WriteTimeout: 10 * time.Second,
		LogLevel:     "warn",
	}
}

// LoadWidget reads a YAML file over the defaults. A missing file yields the
// defaults. ADVISOR_SERVER_URL and GUEST_EMAIL_DOMAIN override the file.
func LoadWidget(path string) (*WidgetConfig, error) {
	cfg := DefaultWidgetConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read widget config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse widget config: %w", err)
			}
		}
	}

	cfg.ServerURL = getEnvOrDefault("ADVISOR_SERVER_URL", cfg.ServerURL)
	cfg.GuestDomain = getEnvOrDefault("GUEST_EMAIL_DOMAIN", cfg.GuestDomain)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *WidgetConfig) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("server_url is required")
	}
	if strings.TrimSpace(c.CachePath) == "" {
		return errors.New("cache_path is required")
	}
	if strings.TrimSpace(c.GuestDomain) == "" || strings.ContainsAny(c.GuestDomain, "@ ") {
		return fmt.Errorf("invalid guest_domain %q", c.GuestDomain)
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write_timeout must be positive")
	}
	return nil
}

// Save writes the config as YAML.
func (c *WidgetConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode widget config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
