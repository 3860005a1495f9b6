package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run operations

// StartRun inserts run with status running. An empty ID is replaced by a
// fresh UUID and a zero StartedAt by the current time.
func (s *Store) StartRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = StatusRunning

	query := `
		INSERT INTO runs (id, started_at, status, os_version)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.Status,
		run.OSVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, notInitialized(err))
	}
	return nil
}

// FinishRun records the outcome of run.
func (s *Store) FinishRun(run *Run) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}

	query := `
		UPDATE runs
		SET finished_at = ?, status = ?, exit_code = ?, error = ?, compiler_path = ?, build_tool_path = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query,
		run.FinishedAt.UTC().Format(time.RFC3339),
		run.Status,
		run.ExitCode,
		run.Error,
		run.CompilerPath,
		run.BuildToolPath,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, notInitialized(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, exit_code, error, os_version, compiler_path, build_tool_path`

// GetRun retrieves a run by its full ID.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, notInitialized(err))
	}
	return run, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (*Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs journaled: %w", ErrNotFound)
	}
	return runs[0], nil
}

// LatestRunWithPending returns the most recently started run that recorded
// an event of action for some tool and manager with no matching undo
// event. It returns ErrNotFound when every such event has been undone.
func (s *Store) LatestRunWithPending(action, undo string) (*Run, error) {
	query := `
		SELECT ` + runColumns + ` FROM runs r
		WHERE EXISTS (
			SELECT 1 FROM events e
			WHERE e.run_id = r.id AND e.action = ?
			AND NOT EXISTS (
				SELECT 1 FROM events u
				WHERE u.run_id = r.id AND u.action = ? AND u.tool = e.tool AND u.manager = e.manager
			)
		)
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT 1
	`
	run, err := scanRun(s.db.QueryRow(query, action, undo))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no run with pending %s events: %w", action, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run with pending %s events: %w", action, notInitialized(err))
	}
	return run, nil
}

// FindRun resolves ref, which is "latest", a full run ID, or a unique
// prefix of one.
func (s *Store) FindRun(ref string) (*Run, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "latest" {
		return s.LatestRun()
	}

	rows, err := s.db.Query(`SELECT id FROM runs WHERE substr(id, 1, ?) = ? ORDER BY started_at DESC`, len(ref), ref)
	if err != nil {
		return nil, fmt.Errorf("failed to look up run %s: %w", ref, notInitialized(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("run %s: %w", ref, ErrNotFound)
	case 1:
		return s.GetRun(ids[0])
	default:
		return nil, fmt.Errorf("run prefix %s is ambiguous (%d matches)", ref, len(ids))
	}
}

// ListRuns returns runs newest first. limit <= 0 returns all of them.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", notInitialized(err))
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt, errMsg, osVersion, compilerPath, buildToolPath sql.NullString

	if err := row.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&run.Status,
		&run.ExitCode,
		&errMsg,
		&osVersion,
		&compilerPath,
		&buildToolPath,
	); err != nil {
		return nil, err
	}

	var err error
	run.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at for %s: %w", run.ID, err)
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for %s: %w", run.ID, err)
		}
		run.FinishedAt = &t
	}
	run.Error = errMsg.String
	run.OSVersion = osVersion.String
	run.CompilerPath = compilerPath.String
	run.BuildToolPath = buildToolPath.String
	return &run, nil
}

// Event operations

// InsertEvent records an installer decision.
func (s *Store) InsertEvent(event *Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO events (run_id, action, tool, manager, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.Exec(query,
		event.RunID,
		event.Action,
		event.Tool,
		event.Manager,
		event.Detail,
		event.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s event for %s: %w", event.Action, event.Tool, notInitialized(err))
	}
	event.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}
	return nil
}

// GetEvents returns the events of a run in the order they were recorded.
// A non-empty action filters to that action.
func (s *Store) GetEvents(runID, action string) ([]*Event, error) {
	query := `
		SELECT id, run_id, action, tool, manager, detail, created_at
		FROM events
		WHERE run_id = ?
	`
	args := []any{runID}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for run %s: %w", runID, notInitialized(err))
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Action, &e.Tool, &e.Manager, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Detail = detail.String
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// CountEvents returns how many events of action a run recorded.
func (s *Store) CountEvents(runID, action string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE run_id = ? AND action = ?`, runID, action).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", notInitialized(err))
	}
	return count, nil
}

// RunRecorder journals installer decisions against one run.
type RunRecorder struct {
	store *Store
	runID string
}

// Recorder returns a recorder bound to runID.
func (s *Store) Recorder(runID string) *RunRecorder {
	return &RunRecorder{store: s, runID: runID}
}

// RecordEvent inserts an event for the bound run.
func (r *RunRecorder) RecordEvent(action, tool, manager, detail string) error {
	return r.store.InsertEvent(&Event{
		RunID:   r.runID,
		Action:  action,
		Tool:    tool,
		Manager: manager,
		Detail:  detail,
	})
}
