package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"classdesk/internal/config"
)

// New builds the configured backend. The file backend is the default;
// redis and postgres let several machines share one profile.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "", "file":
		return NewFileStore(cfg.ProfileDir, logger)
	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Profile, logger), nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires POSTGRES_URL")
		}
		return NewPostgresStore(ctx, cfg.PostgresURL, cfg.Profile, logger)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
