// Package store persists finished session records. Two backends implement
// schemas.SessionStore: flat JSON files (the default) and PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound reports a session ID with no stored record. Both backends wrap
// it so callers can errors.Is regardless of the configured store.
var ErrNotFound = errors.New("session not found")

// New builds the session store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (schemas.SessionStore, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Backend)); backend {
	case "", "file":
		return NewFileStore(cfg.DataDir, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("creating postgres pool: %w", err)
		}
		return NewPostgresStore(ctx, pool, logger)
	default:
		return nil, fmt.Errorf("unknown store backend: %q. Supported: [file, postgres]", cfg.Backend)
	}
}

func summaryOf(rec *schemas.SessionRecord) schemas.SessionSummary {
	return schemas.SessionSummary{
		ID:         rec.ID,
		Goal:       rec.Goal,
		StartURL:   rec.StartURL,
		Status:     rec.Status,
		Steps:      rec.Steps,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
}
