package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// CreateJob inserts a queued sync job
func (db *DB) CreateJob(j *models.SyncJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = models.JobStatusQueued
	}
	params, err := json.Marshal(j.Params)
	if err != nil {
		return fmt.Errorf("failed to encode job params: %w", err)
	}

	query := `
		INSERT INTO sync_jobs (id, user_id, job_type, status, ticker, params, progress, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	now := time.Now()
	_, err = db.conn.Exec(query,
		j.ID, nullString(j.UserID), j.JobType, j.Status, j.Ticker, params, j.Progress, nullString(j.Message), now,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	j.CreatedAt = now
	return nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(id string) (*models.SyncJob, error) {
	query := `
		SELECT id, user_id, job_type, status, ticker, params, progress, message,
		       result, error, created_at, started_at, completed_at
		FROM sync_jobs
		WHERE id = $1
	`
	var j models.SyncJob
	var userID, message, errMsg sql.NullString
	var params, result []byte
	var startedAt, completedAt sql.NullTime

	err := db.conn.QueryRow(query, id).Scan(
		&j.ID, &userID, &j.JobType, &j.Status, &j.Ticker, &params, &j.Progress, &message,
		&result, &errMsg, &j.CreatedAt, &startedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &j.Params); err != nil {
			return nil, fmt.Errorf("failed to decode job params: %w", err)
		}
	}
	if len(result) > 0 {
		j.Result = json.RawMessage(result)
	}
	j.UserID = userID.String
	j.Message = message.String
	j.Error = errMsg.String
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return &j, nil
}

// MarkJobProcessing moves a queued job to processing. It reports false when the
// job was not queued, so a redelivered job is run at most once.
func (db *DB) MarkJobProcessing(id string) (bool, error) {
	query := `
		UPDATE sync_jobs
		SET status = $2, started_at = NOW(), progress = 10, message = 'sync started'
		WHERE id = $1 AND status = $3
	`
	result, err := db.conn.Exec(query, id, models.JobStatusProcessing, models.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark job processing: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return rowsAffected == 1, nil
}

// UpdateJobProgress records progress on a running job
func (db *DB) UpdateJobProgress(id string, progress int, message string) error {
	query := `UPDATE sync_jobs SET progress = $2, message = $3 WHERE id = $1`
	if _, err := db.conn.Exec(query, id, progress, message); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// CompleteJob stores the result of a finished job
func (db *DB) CompleteJob(id string, result models.SyncJobResult, message string) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}
	query := `
		UPDATE sync_jobs
		SET status = $2, progress = 100, message = $3, result = $4, completed_at = NOW()
		WHERE id = $1
	`
	if _, err := db.conn.Exec(query, id, models.JobStatusComplete, message, payload); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// FailJob marks a job failed with an error message
func (db *DB) FailJob(id string, errMsg string) error {
	query := `
		UPDATE sync_jobs
		SET status = $2, error = $3, completed_at = NOW()
		WHERE id = $1
	`
	if _, err := db.conn.Exec(query, id, models.JobStatusFailed, errMsg); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}
