package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = "id, task, collection_system, cruise_id, status, progress_percent, progress_message, stop_requested, parts_json, new_count, updated_count, removed_count, error_message, started_at, updated_at, finished_at"

// Start inserts a running row and returns a handle bound to it.
func (s *Store) Start(ctx context.Context, task, collectionSystem, cruiseID string) (*Run, error) {
	ts := timestamp()
	id := uuid.NewString()

	if _, err := s.execWithRetry(ctx,
		`INSERT INTO runs (
            id, task, collection_system, cruise_id, status,
            progress_percent, progress_message, started_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		task,
		nullableString(collectionSystem),
		nullableString(cruiseID),
		StatusRunning,
		0,
		nil,
		ts,
		ts,
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{store: s, ID: id}, nil
}

// UpdateProgress records the latest progress report of a running run.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent int, message string) error {
	ts := timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE runs SET progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		percent, nullableString(message), ts, id, StatusRunning,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Finish records the terminal outcome of run id.
func (s *Store) Finish(ctx context.Context, id string, outcome Outcome) error {
	if outcome.Status == "" || outcome.Status == StatusRunning {
		return fmt.Errorf("finish run %s: terminal status required", id)
	}
	ts := timestamp()
	var parts any
	if len(outcome.Parts) > 0 {
		parts = string(outcome.Parts)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, parts_json = ?, new_count = ?, updated_count = ?,
            removed_count = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE id = ?`,
		outcome.Status, parts, outcome.New, outcome.Updated, outcome.Removed,
		nullableString(outcome.Error), ts, ts, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: not found", id)
	}
	return nil
}

// RequestStop flags a running run for cooperative cancellation. It reports
// whether a running row was flagged.
func (s *Store) RequestStop(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		"UPDATE runs SET stop_requested = 1, updated_at = ? WHERE id = ? AND status = ?",
		timestamp(), id, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("request stop: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RequestStopAll flags every running run and returns how many were flagged.
func (s *Store) RequestStopAll(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"UPDATE runs SET stop_requested = 1, updated_at = ? WHERE status = ? AND stop_requested = 0",
		timestamp(), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("request stop all: %w", err)
	}
	return res.RowsAffected()
}

// StopRequested reports whether run id has been asked to stop.
func (s *Store) StopRequested(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	var flag int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT stop_requested FROM runs WHERE id = ?", id).Scan(&flag)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read stop flag: %w", err)
	}
	return flag != 0, nil
}

// MarkInterrupted fails running rows last updated before cutoff. A process
// that crashes mid-run leaves its row running forever otherwise.
func (s *Store) MarkInterrupted(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE status = ? AND updated_at < ?`,
		StatusFailed, InterruptedReason, ts, ts, StatusRunning, cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

// Get returns run id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return record, nil
}

// List returns the most recent runs first, optionally filtered by status.
// A non-positive limit returns every row.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Record, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + runColumns + " FROM runs"
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// ClearFinished deletes every terminal run.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM runs WHERE status != ?", StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("clear finished runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id               string
		task             string
		collectionSystem sql.NullString
		cruiseID         sql.NullString
		status           string
		percent          sql.NullInt64
		message          sql.NullString
		stopRequested    sql.NullInt64
		parts            sql.NullString
		newCount         sql.NullInt64
		updatedCount     sql.NullInt64
		removedCount     sql.NullInt64
		errorMessage     sql.NullString
		startedRaw       sql.NullString
		updatedRaw       sql.NullString
		finishedRaw      sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&task,
		&collectionSystem,
		&cruiseID,
		&status,
		&percent,
		&message,
		&stopRequested,
		&parts,
		&newCount,
		&updatedCount,
		&removedCount,
		&errorMessage,
		&startedRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ID:               id,
		Task:             task,
		CollectionSystem: collectionSystem.String,
		CruiseID:         cruiseID.String,
		Status:           Status(status),
		ProgressPercent:  int(percent.Int64),
		ProgressMessage:  message.String,
		StopRequested:    stopRequested.Int64 != 0,
		NewCount:         int(newCount.Int64),
		UpdatedCount:     int(updatedCount.Int64),
		RemovedCount:     int(removedCount.Int64),
		ErrorMessage:     errorMessage.String,
	}
	if parts.Valid && parts.String != "" {
		record.Parts = []byte(parts.String)
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		record.StartedAt = started
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			record.FinishedAt = &finished
		}
	}
	return record, nil
}

func timestamp() string {
	return time.Now().UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
