// Package config loads bot configuration from defaults, a TOML file, and
// SENTINEL_* environment variables, in that order (env wins).
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Discord   DiscordConfig   `toml:"discord"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Database  DatabaseConfig  `toml:"database"`
	Calendar  CalendarConfig  `toml:"calendar"`
	Search    SearchConfig    `toml:"search"`
	Session   SessionConfig   `toml:"session"`
	Observer  ObserverConfig  `toml:"observer"`
}

type DiscordConfig struct {
	Token string `toml:"token"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

type DatabaseConfig struct {
	// Driver selects the store backend: "sqlite" or "postgres".
	Driver      string `toml:"driver"`
	Path        string `toml:"path"`         // sqlite file path
	PostgresURL string `toml:"postgres_url"` // pgx connection string
}

type CalendarConfig struct {
	CredentialsPath string `toml:"credentials_path"`
	CalendarID      string `toml:"calendar_id"`
	Timezone        string `toml:"timezone"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
}

type SessionConfig struct {
	// IdleMinutes is how long a user's conversation thread stays active
	// without new messages.
	IdleMinutes int `toml:"idle_minutes"`
	MaxHistory  int `toml:"max_history"`
}

type ObserverConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM:       LLMConfig{Provider: "gemini", Model: "gemini-2.5-flash"},
		Embedding: EmbeddingConfig{Provider: "gemini", Model: "gemini-embedding-001", Dimensions: 768},
		Database:  DatabaseConfig{Driver: "sqlite", Path: "sentinel.db"},
		Calendar:  CalendarConfig{CredentialsPath: "service_account.json", Timezone: "America/New_York"},
		Session:   SessionConfig{IdleMinutes: 30, MaxHistory: 20},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "sentinel.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("SENTINEL_DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("SENTINEL_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SENTINEL_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("SENTINEL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SENTINEL_POSTGRES_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("SENTINEL_CALENDAR_ID"); v != "" {
		cfg.Calendar.CalendarID = v
	}
	if v := os.Getenv("SENTINEL_CALENDAR_CREDENTIALS"); v != "" {
		cfg.Calendar.CredentialsPath = v
	}
	if v := os.Getenv("SENTINEL_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("SENTINEL_SESSION_IDLE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Session.IdleMinutes = n
		}
	}
	if v := os.Getenv("SENTINEL_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
	if v := os.Getenv("SENTINEL_OBSERVER_ENDPOINT"); v != "" {
		cfg.Observer.Endpoint = v
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	return cfg
}
