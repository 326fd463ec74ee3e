package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.OpenAI.EmbedModel == "" {
		cfg.OpenAI.EmbedModel = "text-embedding-ada-002"
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 30
	}
	if cfg.OpenAI.MaxRetries == 0 {
		cfg.OpenAI.MaxRetries = 3
	}
	if cfg.OpenAI.EmbedMaxTokens == 0 {
		cfg.OpenAI.EmbedMaxTokens = 8150
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "./data/pages.index.json"
	}
	if cfg.Index.SourcePath == "" {
		cfg.Index.SourcePath = "./data/pages.json"
	}
	if cfg.Index.BlockSize == 0 {
		cfg.Index.BlockSize = 500
	}
	if cfg.Index.Concurrency == 0 {
		cfg.Index.Concurrency = 4
	}
	if cfg.Index.CacheSize == 0 {
		cfg.Index.CacheSize = 1000
	}
	if cfg.Chat.MaxPromptTokens == 0 {
		cfg.Chat.MaxPromptTokens = 4096
	}
	if cfg.Chat.ReservedOutputTokens == 0 {
		cfg.Chat.ReservedOutputTokens = 250
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/documents.db"
	}
}
