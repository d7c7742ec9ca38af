package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const jobColumns = "id, source_file_id, source_format, target_format, status, progress, result_file_id, error_message, options_json, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		sourceFileID string
		sourceFormat string
		targetFormat string
		statusStr    string
		progress     sql.NullFloat64
		resultFileID sql.NullString
		errorMessage sql.NullString
		optionsJSON  sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceFileID,
		&sourceFormat,
		&targetFormat,
		&statusStr,
		&progress,
		&resultFileID,
		&errorMessage,
		&optionsJSON,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		SourceFileID: sourceFileID,
		SourceFormat: sourceFormat,
		TargetFormat: targetFormat,
		Status:       Status(statusStr),
		Progress:     progress.Float64,
		ResultFileID: resultFileID.String,
		Error:        errorMessage.String,
	}

	if optionsJSON.Valid && optionsJSON.String != "" {
		options := make(map[string]string)
		if err := json.Unmarshal([]byte(optionsJSON.String), &options); err == nil {
			job.Options = options
		}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
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
