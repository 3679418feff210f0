package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"classdesk/internal/domain"
)

const pgNotifyChannel = "classdesk_pending_delete"

// PostgresStore keeps the record in a per-profile row and uses
// LISTEN/NOTIFY for change notifications. The pg_notify runs inside the
// same transaction as the write, so a notification is only seen for
// committed state.
type PostgresStore struct {
	pool    *pgxpool.Pool
	profile string
	logger  *zap.Logger
}

type pgNotification struct {
	Profile string                `json:"profile"`
	Record  *domain.PendingDelete `json:"record"`
}

func NewPostgresStore(ctx context.Context, connStr, profile string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	s := &PostgresStore{pool: pool, profile: profile, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS pending_deletes (
		   profile    text PRIMARY KEY,
		   record     jsonb NOT NULL,
		   updated_at timestamptz NOT NULL DEFAULT now()
		 )`)
	return err
}

func (s *PostgresStore) Load(ctx context.Context) (*domain.PendingDelete, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM pending_deletes WHERE profile = $1`, s.profile,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeRecord(data)
}

func (s *PostgresStore) Save(ctx context.Context, rec domain.PendingDelete) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	recCopy := rec
	return s.withNotify(ctx, pgNotification{Profile: s.profile, Record: &recCopy}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO pending_deletes (profile, record, updated_at)
			 VALUES ($1, $2, now())
			 ON CONFLICT (profile) DO UPDATE SET
			   record = EXCLUDED.record, updated_at = now()`,
			s.profile, data)
		return err
	})
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	return s.withNotify(ctx, pgNotification{Profile: s.profile}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM pending_deletes WHERE profile = $1`, s.profile)
		return err
	})
}

func (s *PostgresStore) withNotify(ctx context.Context, note pgNotification, write func(tx pgx.Tx) error) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := write(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgNotifyChannel, string(payload)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Watch holds one pooled connection in LISTEN mode for the lifetime of
// ctx. Notifications for other profiles on the shared channel are
// filtered out.
func (s *PostgresStore) Watch(ctx context.Context) (<-chan Event, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, `LISTEN `+pgNotifyChannel); err != nil {
		conn.Release()
		return nil, err
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		defer conn.Release()
		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("postgres notification wait failed", zap.Error(err))
				}
				return
			}
			var note pgNotification
			if err := json.Unmarshal([]byte(notification.Payload), &note); err != nil {
				s.logger.Warn("ignoring malformed notification payload", zap.Error(err))
				continue
			}
			if note.Profile != s.profile {
				continue
			}
			if note.Record == nil || !note.Record.Valid() {
				events <- Event{}
				continue
			}
			events <- Event{Record: note.Record}
		}
	}()
	return events, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
