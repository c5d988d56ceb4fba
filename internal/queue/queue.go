// Package queue defines the delayed job queue the reminder scheduler talks to. Backends live in
// clients/redis (sorted sets) and temporalx (delayed workflows); Memory serves tests and single-process runs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type State string

const (
	StateDelayed   State = "delayed"
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// DefaultStaleRunning is how long an active job may go without an ack or nack before a consumer
// claims it again.
const DefaultStaleRunning = 15 * time.Minute

// PendingStates are the states of a job that has not started running.
var PendingStates = []State{StateDelayed, StateWaiting}

type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	State       State           `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	CreatedAt   time.Time       `json:"created_at"`
	ClaimedAt   time.Time       `json:"claimed_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`

	RemoveOnComplete bool `json:"remove_on_complete"`
	RemoveOnFail     bool `json:"remove_on_fail"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if j == nil || len(j.Payload) == 0 {
		return errors.New("queue: empty payload")
	}
	return json.Unmarshal(j.Payload, v)
}

// Exhausted reports whether the job has used every attempt.
func (j *Job) Exhausted() bool {
	if j == nil {
		return true
	}
	max := j.MaxAttempts
	if max <= 0 {
		max = 1
	}
	return j.Attempts >= max
}

// Stale reports whether an active job's claim is older than lease. A lease <= 0 never expires.
func (j *Job) Stale(now time.Time, lease time.Duration) bool {
	if j == nil || j.State != StateActive || j.ClaimedAt.IsZero() || lease <= 0 {
		return false
	}
	return now.Sub(j.ClaimedAt) >= lease
}

type EnqueueOptions struct {
	Delay            time.Duration
	MaxAttempts      int
	RemoveOnComplete bool
	RemoveOnFail     bool
}

// Queue is the producer-side contract.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts EnqueueOptions) (*Job, error)
	// ListPending returns jobs in any of states (PendingStates when empty), soonest first.
	ListPending(ctx context.Context, states ...State) ([]*Job, error)
	// Remove drops a job. Removing an unknown id is not an error.
	Remove(ctx context.Context, jobID string) error
}

// Consumer is implemented by backends that are drained by jobs/worker.
type Consumer interface {
	// Claim moves up to limit due jobs to active and counts the attempt. Active jobs claimed at least
	// staleRunning ago are claimed again first; staleRunning <= 0 disables that.
	Claim(ctx context.Context, now time.Time, limit int, staleRunning time.Duration) ([]*Job, error)
	Ack(ctx context.Context, job *Job) error
	// Nack records a failed attempt. The job is retried at retryAt unless it is exhausted.
	Nack(ctx context.Context, job *Job, cause error, retryAt time.Time) error
}

// Handler runs one job type.
type Handler interface {
	Type() string
	Run(ctx context.Context, job *Job) error
}

// StateAt derives the pending state of a job that runs at runAt.
func StateAt(runAt, now time.Time) State {
	if runAt.After(now) {
		return StateDelayed
	}
	return StateWaiting
}

func normalizeStates(states []State) map[State]bool {
	if len(states) == 0 {
		states = PendingStates
	}
	out := make(map[State]bool, len(states))
	for _, s := range states {
		out[s] = true
	}
	return out
}

// Matches reports whether state is selected by states (PendingStates when empty).
func Matches(state State, states []State) bool {
	return normalizeStates(states)[state]
}
