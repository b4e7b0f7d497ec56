package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/memory"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/pg"
)

type Config struct {
	Driver   string
	DSN      string
	Postgres struct {
		MaxOpenConns, MinIdleConns int
		ConnMaxLifetime            string
	}
}

// Open devuelve el core.Repository según el driver configurado.
// "memory" existe para dev/tests; producción usa postgres.
func Open(ctx context.Context, cfg Config) (core.Repository, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "pg", "postgresql":
		return pg.New(ctx, cfg.DSN, pg.Tuning{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MinIdleConns:    cfg.Postgres.MinIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
	case "memory", "mem":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}
