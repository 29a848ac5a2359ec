// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/demeterhq/demeter/pkg/react"
)

// SQLiteStore persists query traces in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed trace store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureTraceSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Open opens (or creates) the trace database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save stores a single trace record.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	tools, err := json.Marshal(rec.ToolsUsed)
	if err != nil {
		return err
	}
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_traces (
			run_id, session_id, query, mode, final_answer, success, iterations, tools_json, steps_json, execution_time, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		rec.SessionID,
		rec.Query,
		rec.Mode,
		rec.FinalAnswer,
		rec.Success,
		rec.Iterations,
		string(tools),
		string(steps),
		rec.ExecutionTime,
		created,
	)
	return err
}

// List returns trace records matching the filter.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := `
		SELECT run_id, session_id, query, mode, final_answer, success, iterations, tools_json, steps_json, execution_time, created_at
		FROM query_traces
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.SessionID != "" {
		addFilter("session_id = ?", filter.SessionID)
	}
	if filter.Mode != "" {
		addFilter("mode = ?", filter.Mode)
	}
	query += where + " ORDER BY created_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			toolsJSON string
			stepsJSON string
			created   sql.NullTime
		)
		if err := rows.Scan(
			&rec.RunID,
			&rec.SessionID,
			&rec.Query,
			&rec.Mode,
			&rec.FinalAnswer,
			&rec.Success,
			&rec.Iterations,
			&toolsJSON,
			&stepsJSON,
			&rec.ExecutionTime,
			&created,
		); err != nil {
			return nil, err
		}
		if toolsJSON != "" {
			if err := json.Unmarshal([]byte(toolsJSON), &rec.ToolsUsed); err != nil {
				return nil, err
			}
		}
		if stepsJSON != "" {
			var steps []react.Step
			if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
				return nil, err
			}
			rec.Steps = steps
		}
		if created.Valid {
			rec.CreatedAt = created.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func ensureTraceSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS query_traces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			session_id TEXT,
			query TEXT NOT NULL,
			mode TEXT NOT NULL,
			final_answer TEXT,
			success BOOLEAN NOT NULL,
			iterations INTEGER NOT NULL,
			tools_json TEXT,
			steps_json TEXT,
			execution_time REAL,
			created_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_query_traces_run ON query_traces(run_id);
		CREATE INDEX IF NOT EXISTS idx_query_traces_session ON query_traces(session_id);
		CREATE INDEX IF NOT EXISTS idx_query_traces_mode ON query_traces(mode);
	`)
	return err
}
