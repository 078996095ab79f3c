package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GitHubConfig holds API access configuration for GitHub.
type GitHubConfig struct {
	Token string `toml:"token" yaml:"token"`
	URL   string `toml:"url" yaml:"url"`
}

// GitLabConfig holds API access configuration for GitLab.
type GitLabConfig struct {
	Token string `toml:"token" yaml:"token"`
	URL   string `toml:"url" yaml:"url"`
}

// Config holds all pipemetrics configuration.
type Config struct {
	Provider string       `toml:"provider" yaml:"provider"`
	Endpoint string       `toml:"endpoint" yaml:"endpoint"`
	APIKey   string       `toml:"api_key" yaml:"api_key"`
	Timeout  string       `toml:"timeout" yaml:"timeout"`
	Debug    bool         `toml:"debug" yaml:"debug"`
	GitHub   GitHubConfig `toml:"github" yaml:"github"`
	GitLab   GitLabConfig `toml:"gitlab" yaml:"gitlab"`
}

const (
	defaultProvider = "github"
	defaultTimeout  = 10 * time.Second
)

// ProviderOrDefault returns Provider if set, otherwise "github".
func (c Config) ProviderOrDefault() string {
	if c.Provider != "" {
		return c.Provider
	}
	return defaultProvider
}

// TimeoutOrDefault parses Timeout as a Go duration, falling back to 10s when unset.
func (c Config) TimeoutOrDefault() (time.Duration, error) {
	if c.Timeout == "" {
		return defaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return d, nil
}

// LoadFrom reads configuration from the given file path. Files ending in .yaml or .yml are
// decoded as YAML, anything else as TOML.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - GITHUB_TOKEN         overrides github.token
//   - GITHUB_API_URL       overrides github.url
//   - GITLAB_TOKEN         overrides gitlab.token
//   - GITLAB_URL           overrides gitlab.url
//   - PIPEMETRICS_ENDPOINT overrides endpoint
//   - PIPEMETRICS_API_KEY  overrides api_key
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.DecodeFile(path, cfg)
		return err
	}
}

// DefaultConfigPath returns the default path for the pipemetrics config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return home + "/.config/pipemetrics/config.toml"
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process environment.
// Variables that are already set are left untouched. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_API_URL"); v != "" {
		cfg.GitHub.URL = v
	}
	if v := os.Getenv("GITLAB_TOKEN"); v != "" {
		cfg.GitLab.Token = v
	}
	if v := os.Getenv("GITLAB_URL"); v != "" {
		cfg.GitLab.URL = v
	}
	if v := os.Getenv("PIPEMETRICS_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("PIPEMETRICS_API_KEY"); v != "" {
		cfg.APIKey = v
	}
}
