package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: 0.0.0.0
  port: 9090
openai:
  embed_model: text-embedding-3-small
  chat_model: gpt-4o
index:
  path: ./idx/pages.index.json
  block_size: 300
chat:
  max_prompt_tokens: 2048
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("server: %+v", cfg.Server)
	}
	if cfg.OpenAI.EmbedModel != "text-embedding-3-small" {
		t.Errorf("embed model: %q", cfg.OpenAI.EmbedModel)
	}
	if cfg.Index.BlockSize != 300 {
		t.Errorf("block size: %d", cfg.Index.BlockSize)
	}
	if cfg.Chat.MaxPromptTokens != 2048 {
		t.Errorf("max prompt tokens: %d", cfg.Chat.MaxPromptTokens)
	}
	// "./" paths are resolved relative to the config directory.
	if cfg.Index.Path != filepath.Join(dir, "idx/pages.index.json") {
		t.Errorf("index path not expanded: %q", cfg.Index.Path)
	}
	// Defaults fill the unset fields.
	if cfg.OpenAI.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("api key env default: %q", cfg.OpenAI.APIKeyEnv)
	}
	if cfg.Chat.ReservedOutputTokens != 250 {
		t.Errorf("reserved output default: %d", cfg.Chat.ReservedOutputTokens)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Server.Port != 8080 {
		t.Errorf("port default: %d", cfg.Server.Port)
	}
	if cfg.OpenAI.EmbedModel != "text-embedding-ada-002" {
		t.Errorf("embed model default: %q", cfg.OpenAI.EmbedModel)
	}
	if cfg.OpenAI.EmbedMaxTokens != 8150 {
		t.Errorf("embed max tokens default: %d", cfg.OpenAI.EmbedMaxTokens)
	}
	if cfg.Index.BlockSize != 500 {
		t.Errorf("block size default: %d", cfg.Index.BlockSize)
	}
	if cfg.Index.Concurrency != 4 {
		t.Errorf("concurrency default: %d", cfg.Index.Concurrency)
	}
	if cfg.Chat.MaxPromptTokens != 4096 || cfg.Chat.ReservedOutputTokens != 250 {
		t.Errorf("chat defaults: %+v", cfg.Chat)
	}
}

func TestOpenAIConfig_APIKey(t *testing.T) {
	c := OpenAIConfig{APIKeyEnv: "KAIWA_TEST_KEY"}
	t.Setenv("KAIWA_TEST_KEY", "")
	if _, err := c.APIKey(); err == nil {
		t.Error("expected error for unset key")
	} else if !strings.Contains(err.Error(), "KAIWA_TEST_KEY") {
		t.Errorf("error should name the variable: %v", err)
	}
	t.Setenv("KAIWA_TEST_KEY", "sk-test")
	key, err := c.APIKey()
	if err != nil || key != "sk-test" {
		t.Errorf("got %q, %v", key, err)
	}
}
