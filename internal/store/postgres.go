package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// DBPool abstracts the pgxpool.Pool surface the store needs, so tests can
// substitute a pgxmock pool.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

const sqlCreateSessions = `
    CREATE TABLE IF NOT EXISTS sessions (
        id          TEXT PRIMARY KEY,
        goal        TEXT NOT NULL,
        start_url   TEXT NOT NULL,
        status      TEXT NOT NULL,
        steps       INTEGER NOT NULL,
        record      JSONB NOT NULL,
        started_at  TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ NOT NULL
    );`

const sqlUpsertSession = `
    INSERT INTO sessions (id, goal, start_url, status, steps, record, started_at, finished_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    ON CONFLICT (id) DO UPDATE SET
        goal = EXCLUDED.goal,
        start_url = EXCLUDED.start_url,
        status = EXCLUDED.status,
        steps = EXCLUDED.steps,
        record = EXCLUDED.record,
        started_at = EXCLUDED.started_at,
        finished_at = EXCLUDED.finished_at;`

const sqlSelectSession = `SELECT record FROM sessions WHERE id = $1;`

const sqlListSessions = `
    SELECT id, goal, start_url, status, steps, started_at, finished_at
    FROM sessions
    ORDER BY started_at DESC`

// PostgresStore keeps the full record as JSONB next to the columns the
// listing projection needs.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresStore verifies the connection and ensures the sessions table
// exists.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateSessions); err != nil {
		return nil, fmt.Errorf("creating sessions table: %w", err)
	}

	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, rec *schemas.SessionRecord) error {
	if rec == nil {
		return fmt.Errorf("nil session record")
	}
	if rec.ID == "" {
		return fmt.Errorf("session record has no id")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", rec.ID, err)
	}

	_, err = s.pool.Exec(ctx, sqlUpsertSession,
		rec.ID, rec.Goal, rec.StartURL, string(rec.Status), rec.Steps,
		payload, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", rec.ID, err)
	}

	s.log.Debug("Session record written.", zap.String("session_id", rec.ID))
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*schemas.SessionRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectSession, id)
	if err != nil {
		return nil, fmt.Errorf("querying session %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying session %s: %w", id, err)
		}
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	var payload []byte
	if err := rows.Scan(&payload); err != nil {
		return nil, fmt.Errorf("scanning session %s: %w", id, err)
	}

	var rec schemas.SessionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]schemas.SessionSummary, error) {
	query := sqlListSessions
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var summaries []schemas.SessionSummary
	for rows.Next() {
		var sum schemas.SessionSummary
		var status string
		if err := rows.Scan(&sum.ID, &sum.Goal, &sum.StartURL, &status, &sum.Steps, &sum.StartedAt, &sum.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sum.Status = schemas.SessionStatus(status)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return summaries, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
