package models

import (
	"encoding/json"
	"time"
)

// Job status constants
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// JobTypeSync is a Form 4 sync for one subject
const JobTypeSync = "sync"

// SyncJobParams are the inputs of a sync job
type SyncJobParams struct {
	Count       int  `json:"count"`
	Days        int  `json:"days"`
	HidePlanned bool `json:"hide_planned"`
}

// SyncJobResult is the outcome stored on a completed job
type SyncJobResult struct {
	Transactions    int    `json:"transactions"`
	NewTransactions int    `json:"new_transactions"`
	Stored          int    `json:"stored"`
	Mode            string `json:"mode"`
	FailedFilings   int    `json:"failed_filings"`
}

// SyncJob is a persisted asynchronous sync request
type SyncJob struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	JobType     string          `json:"job_type"`
	Status      string          `json:"status"`
	Ticker      string          `json:"ticker"`
	Params      SyncJobParams   `json:"params"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal reports complete or failed
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusFailed
}
