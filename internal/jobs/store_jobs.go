package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Create inserts a new pending job and returns the stored record.
func (s *Store) Create(ctx context.Context, sourceFileID, sourceFormat, targetFormat string, options map[string]string) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	var optionsJSON any
	if len(options) > 0 {
		raw, err := json.Marshal(options)
		if err != nil {
			return nil, fmt.Errorf("marshal options: %w", err)
		}
		optionsJSON = string(raw)
	}

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, source_file_id, source_format, target_format, status,
            progress, options_json, created_at, updated_at, expires_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		sourceFileID,
		sourceFormat,
		targetFormat,
		StatusPending,
		0.0,
		optionsJSON,
		timestamp,
		timestamp,
		now.Add(s.ttl).Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.Get(ctx, id)
}

// Get fetches a job by identifier. Expired jobs are treated as absent even
// when the sweeper has not removed them yet.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ? AND expires_at > ?`,
		id,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateStatus transitions a job to a new status, clamping progress so it
// never regresses and refreshing the retention deadline. Absent jobs are a
// no-op; jobs already in a terminal status never change.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, progress float64, resultFileID, errorMessage string) error {
	now := time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?,
             progress = MAX(progress, ?),
             result_file_id = COALESCE(?, result_file_id),
             error_message = ?,
             updated_at = ?,
             expires_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		status,
		clampProgress(progress),
		nullableString(resultFileID),
		nullableString(errorMessage),
		now.Format(time.RFC3339Nano),
		now.Add(s.ttl).Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
	); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// UpdateProgress records forward progress on an active job. Values below the
// stored progress are ignored so retried attempts never appear to move
// backwards.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress float64) error {
	now := time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET progress = MAX(progress, ?),
             updated_at = ?,
             expires_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		clampProgress(progress),
		now.Format(time.RFC3339Nano),
		now.Add(s.ttl).Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
	); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// Delete removes a job by identifier.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// SweepExpired removes jobs past their retention deadline and returns how
// many were dropped.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE expires_at <= ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Stats returns a count of jobs per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

func clampProgress(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
