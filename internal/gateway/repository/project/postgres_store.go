package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

// OpenPostgres opens dsn with the pgx driver and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureLoaded(ctx context.Context) error {
	return s.ensureSchema(ctx)
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreNil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sketch_projects (
    name TEXT PRIMARY KEY,
    state JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Get(ctx context.Context, name string) (State, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return State{}, false, err
	}
	return scanState(s.db.QueryRowContext(ctx, `SELECT state FROM sketch_projects WHERE name=$1`, name))
}

func (s *PostgresStore) Put(ctx context.Context, state State) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sketch_projects (name, state, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (name)
DO UPDATE SET state=EXCLUDED.state, updated_at=EXCLUDED.updated_at
`, state.ProjectName, raw, state.UpdatedAt)
	return err
}

func (s *PostgresStore) Update(ctx context.Context, name string, update func(*State) error) (State, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return State{}, false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return State{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	state, ok, err := scanState(tx.QueryRowContext(ctx, `SELECT state FROM sketch_projects WHERE name=$1 FOR UPDATE`, name))
	if err != nil || !ok {
		return State{}, ok, err
	}
	if err := update(&state); err != nil {
		return State{}, true, err
	}
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return State{}, true, fmt.Errorf("marshal project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sketch_projects SET state=$2, updated_at=$3 WHERE name=$1`, name, raw, state.UpdatedAt); err != nil {
		return State{}, true, err
	}
	if err := tx.Commit(); err != nil {
		return State{}, true, err
	}
	return state, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) (bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sketch_projects WHERE name=$1`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sketch_projects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func scanState(row *sql.Row) (State, bool, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, false, fmt.Errorf("unmarshal project: %w", err)
	}
	return state, true, nil
}
