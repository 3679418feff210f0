package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config stores all configuration for the agent.
type Config struct {
	Profile           string `mapstructure:"PROFILE"`
	ProfileDir        string `mapstructure:"PROFILE_DIR"`
	StoreBackend      string `mapstructure:"STORE_BACKEND"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int    `mapstructure:"REDIS_DB"`
	PostgresURL       string `mapstructure:"POSTGRES_URL"`
	APIBaseURL        string `mapstructure:"API_BASE_URL"`
	APIToken          string `mapstructure:"API_TOKEN"`
	AgentPort         string `mapstructure:"AGENT_PORT"`
	UndoWindowSeconds int    `mapstructure:"UNDO_WINDOW_SECONDS"`
	TickIntervalMs    int    `mapstructure:"TICK_INTERVAL_MS"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	// This allows configuration purely through environment variables
	_ = viper.ReadInConfig()

	viper.SetDefault("PROFILE", "default")
	viper.SetDefault("STORE_BACKEND", "file")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("API_BASE_URL", "http://127.0.0.1:8080")
	viper.SetDefault("AGENT_PORT", "8377")
	viper.SetDefault("UNDO_WINDOW_SECONDS", 5)
	viper.SetDefault("TICK_INTERVAL_MS", 250)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.ProfileDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = "."
		}
		cfg.ProfileDir = filepath.Join(base, "classdesk", cfg.Profile)
	}
	return &cfg, nil
}
