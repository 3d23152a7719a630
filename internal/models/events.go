package models

import "time"

// Event type constants
const (
	EventJobQueued     = "FORM4_JOB_QUEUED"
	EventSyncCompleted = "FORM4_SYNC_COMPLETED"
)

// EventSchemaVersion is stamped on every published event
const EventSchemaVersion = "1"

// Form4Event is the envelope for every Kafka message this service produces
type Form4Event struct {
	EventType     string         `json:"event_type"`
	Source        string         `json:"source"`
	SchemaVersion string         `json:"schema_version"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          Form4EventData `json:"data"`
}

// Form4EventData carries the job or sync details
type Form4EventData struct {
	JobID           string `json:"job_id,omitempty"`
	Subject         string `json:"subject"`
	Mode            string `json:"mode,omitempty"`
	Transactions    int    `json:"transactions,omitempty"`
	NewTransactions int    `json:"new_transactions,omitempty"`
}
