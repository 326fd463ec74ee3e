// Package config provides configuration loading and structs for the kaiwa server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Index   IndexConfig   `yaml:"index"`
	Chat    ChatConfig    `yaml:"chat"`
	Storage StorageConfig `yaml:"storage"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OpenAIConfig holds gateway settings. The credential itself is read from
// the environment variable named by APIKeyEnv, never from the file.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	EmbedModel     string `yaml:"embed_model"`
	ChatModel      string `yaml:"chat_model"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries"`
	EmbedMaxTokens int    `yaml:"embed_max_tokens"`
}

// APIKey resolves the credential from the environment. A missing key is a
// fatal configuration error; callers should fail fast at startup.
func (c *OpenAIConfig) APIKey() (string, error) {
	key := os.Getenv(c.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("missing API key: environment variable %s is not set", c.APIKeyEnv)
	}
	return key, nil
}

// IndexConfig holds index build settings and file locations.
type IndexConfig struct {
	Path        string `yaml:"path"`
	SourcePath  string `yaml:"source_path"`
	BlockSize   int    `yaml:"block_size"`
	Concurrency int    `yaml:"concurrency"`
	CacheSize   int    `yaml:"cache_size"`
}

// ChatConfig holds prompt budget settings.
type ChatConfig struct {
	Template             string `yaml:"template"`
	MaxPromptTokens      int    `yaml:"max_prompt_tokens"`
	ReservedOutputTokens int    `yaml:"reserved_output_tokens"`
}

// StorageConfig holds the documents database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig controls reindexing when the page export changes.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Index.Path = expandPath(cfg.Index.Path, configDir)
	cfg.Index.SourcePath = expandPath(cfg.Index.SourcePath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
