package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Queue and Consumer. Jobs do not survive a restart.
type Memory struct {
	mu   sync.Mutex
	now  func() time.Time
	jobs map[string]*Job
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, jobs: map[string]*Job{}}
}

func (m *Memory) Enqueue(ctx context.Context, jobType string, payload any, opts EnqueueOptions) (*Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("queue: job type required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal payload: %w", err)
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	now := m.now()
	job := &Job{
		ID:               uuid.NewString(),
		Type:             jobType,
		Payload:          raw,
		MaxAttempts:      opts.MaxAttempts,
		RunAt:            now.Add(opts.Delay),
		CreatedAt:        now,
		RemoveOnComplete: opts.RemoveOnComplete,
		RemoveOnFail:     opts.RemoveOnFail,
	}
	job.State = StateAt(job.RunAt, now)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return cloneJob(job), nil
}

func (m *Memory) ListPending(ctx context.Context, states ...State) ([]*Job, error) {
	now := m.now()
	m.mu.Lock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State == StateDelayed || j.State == StateWaiting {
			j.State = StateAt(j.RunAt, now)
		}
		if Matches(j.State, states) {
			out = append(out, cloneJob(j))
		}
	}
	m.mu.Unlock()
	sortJobs(out)
	return out, nil
}

func (m *Memory) Remove(ctx context.Context, jobID string) error {
	m.mu.Lock()
	delete(m.jobs, jobID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Claim(ctx context.Context, now time.Time, limit int, staleRunning time.Duration) ([]*Job, error) {
	if limit <= 0 {
		limit = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stale := make([]*Job, 0)
	due := make([]*Job, 0)
	for _, j := range m.jobs {
		switch {
		case j.Stale(now, staleRunning):
			stale = append(stale, j)
		case (j.State == StateDelayed || j.State == StateWaiting) && !j.RunAt.After(now):
			due = append(due, j)
		}
	}
	sortJobs(stale)
	sortJobs(due)
	due = append(stale, due...)
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*Job, 0, len(due))
	for _, j := range due {
		j.State = StateActive
		j.ClaimedAt = now
		j.Attempts++
		out = append(out, cloneJob(j))
	}
	return out, nil
}

func (m *Memory) Ack(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[job.ID]
	if !ok {
		return nil
	}
	if cur.RemoveOnComplete {
		delete(m.jobs, job.ID)
		return nil
	}
	cur.State = StateCompleted
	return nil
}

func (m *Memory) Nack(ctx context.Context, job *Job, cause error, retryAt time.Time) error {
	if job == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[job.ID]
	if !ok {
		return nil
	}
	if cause != nil {
		cur.LastError = cause.Error()
	}
	if cur.Exhausted() {
		if cur.RemoveOnFail {
			delete(m.jobs, job.ID)
			return nil
		}
		cur.State = StateFailed
		return nil
	}
	cur.RunAt = retryAt
	cur.State = StateDelayed
	return nil
}

// Get returns a copy of a job in any state.
func (m *Memory) Get(jobID string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, false
	}
	return cloneJob(j), true
}

func cloneJob(j *Job) *Job {
	cp := *j
	cp.Payload = append([]byte(nil), j.Payload...)
	return &cp
}

func sortJobs(jobs []*Job) {
	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].RunAt.Equal(jobs[b].RunAt) {
			return jobs[a].ID < jobs[b].ID
		}
		return jobs[a].RunAt.Before(jobs[b].RunAt)
	})
}
