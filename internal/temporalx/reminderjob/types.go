package reminderjob

import (
	"encoding/json"
	"time"
)

const (
	WorkflowName    = "reminder_job"
	ActivityDeliver = "reminder_job_deliver"
	// MemoKey holds the Envelope on the workflow memo so the queue can list pending jobs.
	MemoKey = "job"
)

// Envelope is the workflow input: one delayed queue job.
type Envelope struct {
	JobID       string          `json:"job_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	CreatedAt   time.Time       `json:"created_at"`
}
