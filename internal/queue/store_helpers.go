package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const taskColumns = "id, job_id, state, payload_json, attempts, owner_id, last_error, not_before, lease_expires_at, finished_at, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id          int64
		jobID       string
		stateStr    string
		payloadJSON string
		attempts    int
		ownerID     sql.NullString
		lastError   sql.NullString
		notBefore   sql.NullString
		leaseRaw    sql.NullString
		finishedRaw sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&stateStr,
		&payloadJSON,
		&attempts,
		&ownerID,
		&lastError,
		&notBefore,
		&leaseRaw,
		&finishedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:        id,
		JobID:     jobID,
		State:     State(stateStr),
		Attempts:  attempts,
		OwnerID:   ownerID.String,
		LastError: lastError.String,
	}

	if err := json.Unmarshal([]byte(payloadJSON), &task.Payload); err != nil {
		return nil, err
	}

	if parsed, err := parseTimeString(notBefore.String); err == nil {
		task.NotBefore = parsed
	}
	if leaseRaw.Valid {
		if parsed, err := parseTimeString(leaseRaw.String); err == nil {
			task.LeaseExpiresAt = &parsed
		}
	}
	if finishedRaw.Valid {
		if parsed, err := parseTimeString(finishedRaw.String); err == nil {
			task.FinishedAt = &parsed
		}
	}
	if parsed, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = parsed
	}
	if parsed, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = parsed
	}
	return task, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
