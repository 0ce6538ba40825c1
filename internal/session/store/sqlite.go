// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webpdtool/webpdtool/internal/persistence/sqlite"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/result"
	"github.com/webpdtool/webpdtool/internal/session"
	"github.com/webpdtool/webpdtool/internal/session/lifecycle"
)

const schemaVersion = 1

// SqliteStore persists sessions, results, and plans in one SQLite file.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the station database.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error { return s.DB.Close() }

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS test_sessions (
		session_id TEXT PRIMARY KEY,
		plan_ref TEXT NOT NULL,
		project TEXT NOT NULL,
		station TEXT NOT NULL,
		serial TEXT NOT NULL,
		state TEXT NOT NULL,
		outcome TEXT,
		error TEXT,
		report_path TEXT,
		total_items INTEGER NOT NULL,
		completed_items INTEGER NOT NULL DEFAULT 0,
		current_item_no INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL,
		started_at_ms INTEGER NOT NULL DEFAULT 0,
		finished_at_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_test_sessions_created ON test_sessions(created_at_ms);
	CREATE INDEX IF NOT EXISTS idx_test_sessions_state ON test_sessions(state);

	CREATE TABLE IF NOT EXISTS test_results (
		session_id TEXT NOT NULL,
		item_no INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		measured_value REAL,
		measured_text TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		execution_ms INTEGER NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		PRIMARY KEY (session_id, item_no)
	);

	CREATE TABLE IF NOT EXISTS test_plans (
		ref TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		station TEXT NOT NULL,
		name TEXT NOT NULL,
		items_json TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// --- session.Repository ---

func (s *SqliteStore) PutSession(ctx context.Context, sess session.Session) error {
	query := `
	INSERT INTO test_sessions (
		session_id, plan_ref, project, station, serial, state, outcome, error,
		report_path, total_items, completed_items, current_item_no,
		created_at_ms, started_at_ms, finished_at_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		state = excluded.state,
		outcome = excluded.outcome,
		error = excluded.error,
		report_path = excluded.report_path,
		completed_items = excluded.completed_items,
		current_item_no = excluded.current_item_no,
		started_at_ms = excluded.started_at_ms,
		finished_at_ms = excluded.finished_at_ms`
	_, err := s.DB.ExecContext(ctx, query,
		sess.ID, sess.PlanRef, sess.Project, sess.Station, sess.Serial,
		string(sess.State), string(sess.Outcome), sess.Error, sess.ReportPath,
		sess.TotalItems, sess.CompletedItems, sess.CurrentItemNo,
		toMillis(sess.CreatedAt), toMillis(sess.StartedAt), toMillis(sess.FinishedAt))
	return err
}

func (s *SqliteStore) UpdateSession(ctx context.Context, sess session.Session) error {
	query := `
	UPDATE test_sessions SET
		state = ?, outcome = ?, error = ?, report_path = ?,
		completed_items = ?, current_item_no = ?,
		started_at_ms = ?, finished_at_ms = ?
	WHERE session_id = ?`
	res, err := s.DB.ExecContext(ctx, query,
		string(sess.State), string(sess.Outcome), sess.Error, sess.ReportPath,
		sess.CompletedItems, sess.CurrentItemNo,
		toMillis(sess.StartedAt), toMillis(sess.FinishedAt), sess.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *SqliteStore) GetSession(ctx context.Context, id string) (session.Session, error) {
	query := `
	SELECT session_id, plan_ref, project, station, serial, state, outcome, error,
		report_path, total_items, completed_items, current_item_no,
		created_at_ms, started_at_ms, finished_at_ms
	FROM test_sessions WHERE session_id = ?`
	return scanSession(s.DB.QueryRowContext(ctx, query, id))
}

func (s *SqliteStore) ListSessions(ctx context.Context, limit int) ([]session.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
	SELECT session_id, plan_ref, project, station, serial, state, outcome, error,
		report_path, total_items, completed_items, current_item_no,
		created_at_ms, started_at_ms, finished_at_ms
	FROM test_sessions ORDER BY created_at_ms DESC, session_id LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SqliteStore) AppendResult(ctx context.Context, sessionID string, rec result.Record) error {
	query := `
	INSERT INTO test_results (
		session_id, item_no, item_name, outcome, measured_value, measured_text,
		error_message, execution_ms, timestamp_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, item_no) DO NOTHING`
	var measured sql.NullFloat64
	if rec.MeasuredValue != nil {
		measured = sql.NullFloat64{Float64: *rec.MeasuredValue, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, query,
		sessionID, rec.ItemNo, rec.ItemName, string(rec.Outcome), measured,
		rec.MeasuredText, rec.ErrorMessage, rec.ExecutionMS, toMillis(rec.Timestamp))
	return err
}

func (s *SqliteStore) ResultsFor(ctx context.Context, sessionID string) ([]result.Record, error) {
	query := `
	SELECT item_no, item_name, outcome, measured_value, measured_text,
		error_message, execution_ms, timestamp_ms
	FROM test_results WHERE session_id = ? ORDER BY item_no`
	rows, err := s.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []result.Record
	for rows.Next() {
		var rec result.Record
		var outcome string
		var measured sql.NullFloat64
		var ts int64
		if err := rows.Scan(&rec.ItemNo, &rec.ItemName, &outcome, &measured,
			&rec.MeasuredText, &rec.ErrorMessage, &rec.ExecutionMS, &ts); err != nil {
			return nil, err
		}
		rec.Outcome = result.Outcome(outcome)
		if measured.Valid {
			f := measured.Float64
			rec.MeasuredValue = &f
		}
		rec.Timestamp = fromMillis(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- plan.Repository ---

func (s *SqliteStore) PutPlan(ctx context.Context, p *plan.Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO test_plans (ref, project, station, name, items_json, updated_at_ms)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(ref) DO UPDATE SET
		items_json = excluded.items_json,
		updated_at_ms = excluded.updated_at_ms`
	_, err = s.DB.ExecContext(ctx, query,
		p.Ref(), p.Project, p.Station, p.Name, string(items), time.Now().UnixMilli())
	return err
}

func (s *SqliteStore) GetPlan(ctx context.Context, ref string) (*plan.Plan, error) {
	query := `SELECT project, station, name, items_json FROM test_plans WHERE ref = ?`
	var p plan.Plan
	var items string
	err := s.DB.QueryRowContext(ctx, query, ref).Scan(&p.Project, &p.Station, &p.Name, &items)
	if err == sql.ErrNoRows {
		return nil, plan.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &p.Items); err != nil {
		return nil, fmt.Errorf("plan %s: corrupt items: %w", ref, err)
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (session.Session, error) {
	var sess session.Session
	var state, outcome string
	var created, started, finished int64
	err := row.Scan(&sess.ID, &sess.PlanRef, &sess.Project, &sess.Station, &sess.Serial,
		&state, &outcome, &sess.Error, &sess.ReportPath,
		&sess.TotalItems, &sess.CompletedItems, &sess.CurrentItemNo,
		&created, &started, &finished)
	if err == sql.ErrNoRows {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	sess.State = lifecycle.State(state)
	sess.Outcome = result.Outcome(outcome)
	sess.CreatedAt = fromMillis(created)
	sess.StartedAt = fromMillis(started)
	sess.FinishedAt = fromMillis(finished)
	return sess, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
