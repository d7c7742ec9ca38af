package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// leaseCandidateRounds bounds how many CAS rounds a single Lease call makes
// when racing other executors over the same candidates.
const leaseCandidateRounds = 5

// Enqueue admits a task for a job. Returns false without error when a task
// for the job already exists, regardless of its state.
func (s *Store) Enqueue(ctx context.Context, jobID string, payload Payload) (bool, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (job_id, state, payload_json, attempts, not_before, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?, ?)
         ON CONFLICT(job_id) DO NOTHING`,
		jobID,
		StatePending,
		string(payloadJSON),
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Lease claims the oldest deliverable task for an owner. It returns nil when
// nothing is deliverable. The claim is a compare-and-swap on the pending
// state, so concurrent executors never receive the same task. Tasks that
// already spent their attempt budget are skipped; the janitor buries them.
func (s *Store) Lease(ctx context.Context, ownerID string) (*Task, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	for round := 0; round < leaseCandidateRounds; round++ {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM tasks WHERE state = ? AND not_before <= ? AND attempts < ? ORDER BY created_at, id LIMIT 1`,
			StatePending,
			nowStr,
			s.attemptCap,
		)
		var id int64
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select lease candidate: %w", err)
		}

		res, err := s.execWithRetry(
			ctx,
			`UPDATE tasks
             SET state = ?, owner_id = ?, attempts = attempts + 1,
                 lease_expires_at = ?, updated_at = ?
             WHERE id = ? AND state = ? AND attempts < ?`,
			StateLeased,
			ownerID,
			now.Add(s.leaseTTL).Format(time.RFC3339Nano),
			nowStr,
			id,
			StatePending,
			s.attemptCap,
		)
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race; pick another candidate.
			continue
		}
		return s.GetByID(ctx, id)
	}
	return nil, nil
}

// RenewLease extends the lease on a task still owned by ownerID. Returns
// false when the lease was already lost.
func (s *Store) RenewLease(ctx context.Context, taskID int64, ownerID string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET lease_expires_at = ?, updated_at = ?
         WHERE id = ? AND state = ? AND owner_id = ?`,
		now.Add(s.leaseTTL).Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		taskID,
		StateLeased,
		ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Complete marks a leased task as successfully delivered.
func (s *Store) Complete(ctx context.Context, taskID int64, ownerID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET state = ?, owner_id = NULL, lease_expires_at = NULL,
             finished_at = ?, updated_at = ?
         WHERE id = ? AND state = ? AND owner_id = ?`,
		StateCompleted,
		now,
		now,
		taskID,
		StateLeased,
		ownerID,
	); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Fail records a failed attempt. Retryable failures under the attempt cap go
// back to pending with exponential backoff; everything else lands in the
// dead state. The resulting state is returned so callers can finalize the
// job when delivery is exhausted.
func (s *Store) Fail(ctx context.Context, taskID int64, ownerID, reason string, retryable bool) (State, error) {
	task, err := s.GetByID(ctx, taskID)
	if err != nil {
		return "", err
	}
	if task == nil {
		return "", fmt.Errorf("fail task: task %d not found", taskID)
	}

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	if retryable && task.Attempts < s.attemptCap {
		shift := task.Attempts - 1
		if shift < 0 {
			shift = 0
		}
		delay := s.backoffBase << shift
		res, err := s.execWithRetry(
			ctx,
			`UPDATE tasks
             SET state = ?, owner_id = NULL, lease_expires_at = NULL,
                 last_error = ?, not_before = ?, updated_at = ?
             WHERE id = ? AND state = ? AND owner_id = ?`,
			StatePending,
			reason,
			now.Add(delay).Format(time.RFC3339Nano),
			nowStr,
			taskID,
			StateLeased,
			ownerID,
		)
		if err != nil {
			return "", fmt.Errorf("requeue task: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return "", fmt.Errorf("rows affected: %w", err)
		} else if affected == 0 {
			return task.State, nil
		}
		return StatePending, nil
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET state = ?, owner_id = NULL, lease_expires_at = NULL,
             last_error = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND state = ? AND owner_id = ?`,
		StateDead,
		reason,
		nowStr,
		nowStr,
		taskID,
		StateLeased,
		ownerID,
	)
	if err != nil {
		return "", fmt.Errorf("bury task: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	} else if affected == 0 {
		return task.State, nil
	}
	return StateDead, nil
}

// ReclaimExpired returns leased tasks whose lease has lapsed back to
// pending so another executor can claim them. The attempt already counted
// at lease time stays counted.
func (s *Store) ReclaimExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET state = ?, owner_id = NULL, lease_expires_at = NULL,
             last_error = 'lease expired', not_before = ?, updated_at = ?
         WHERE state = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		StatePending,
		now,
		now,
		StateLeased,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimToDead moves reclaimed tasks that have exhausted their attempts to
// the dead state, returning the affected job ids so the caller can finalize
// their jobs.
func (s *Store) ReclaimToDead(ctx context.Context) ([]string, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id FROM tasks WHERE state = ? AND attempts >= ?`,
		StatePending,
		s.attemptCap,
	)
	if err != nil {
		return nil, fmt.Errorf("select exhausted tasks: %w", err)
	}
	defer rows.Close()

	var (
		ids    []int64
		jobIDs []string
	)
	for rows.Next() {
		var (
			id    int64
			jobID string
		)
		if err := rows.Scan(&id, &jobID); err != nil {
			return nil, err
		}
		ids = append(ids, id)
		jobIDs = append(jobIDs, jobID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := s.execWithRetry(
			ctx,
			`UPDATE tasks SET state = ?, finished_at = ?, updated_at = ? WHERE id = ? AND state = ?`,
			StateDead,
			now,
			now,
			id,
			StatePending,
		); err != nil {
			return nil, fmt.Errorf("bury exhausted task: %w", err)
		}
	}
	return jobIDs, nil
}

// PruneFinished removes completed and dead tasks past their retention
// windows and returns how many rows were dropped.
func (s *Store) PruneFinished(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	var total int64

	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM tasks WHERE state = ? AND finished_at IS NOT NULL AND finished_at < ?`,
		StateCompleted,
		now.Add(-s.completedRetention).Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune completed tasks: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil {
		total += affected
	}

	res, err = s.execWithRetry(
		ctx,
		`DELETE FROM tasks WHERE state = ? AND finished_at IS NOT NULL AND finished_at < ?`,
		StateDead,
		now.Add(-s.deadRetention).Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune dead tasks: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil {
		total += affected
	}
	return total, nil
}

// Retry moves dead tasks back to pending. With no job ids it retries every
// dead task.
func (s *Store) Retry(ctx context.Context, jobIDs ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(jobIDs) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE tasks
             SET state = ?, attempts = 0, last_error = NULL, finished_at = NULL,
                 not_before = ?, updated_at = ?
             WHERE state = ?`,
			StatePending,
			now,
			now,
			StateDead,
		)
		if err != nil {
			return 0, fmt.Errorf("retry dead tasks: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(jobIDs))
	args := make([]any, 0, len(jobIDs)+3)
	args = append(args, StatePending, now, now)
	for _, jobID := range jobIDs {
		args = append(args, jobID)
	}
	query := `UPDATE tasks
        SET state = ?, attempts = 0, last_error = NULL, finished_at = NULL,
            not_before = ?, updated_at = ?
        WHERE job_id IN (` + placeholders + `) AND state = '` + string(StateDead) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected tasks: %w", err)
	}
	return res.RowsAffected()
}

// GetByID fetches a task by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// GetByJobID fetches the task bound to a job.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE job_id = ?`, jobID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task by job: %w", err)
	}
	return task, nil
}

// List returns tasks filtered by state set (or all tasks when no state is
// provided), oldest first.
func (s *Store) List(ctx context.Context, states ...State) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at, id`

	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		query := baseQuery + ` WHERE state IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// Clear removes all tasks.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of tasks grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM tasks GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var (
			state State
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}
