package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/processing-backend/internal/queue"
)

// Registry maps job types to handlers. It is shared by the Redis poller and the Temporal activity.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]queue.Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]queue.Handler)}
}

func (r *Registry) Register(h queue.Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for job_type=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(jobType string) (queue.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Dispatch runs the handler for job.Type, converting a panic into an error.
func (r *Registry) Dispatch(ctx context.Context, job *queue.Job) (err error) {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	h, ok := r.Get(job.Type)
	if !ok {
		return &MissingHandlerError{JobType: job.Type}
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Val: rec}
		}
	}()
	return h.Run(ctx, job)
}

type MissingHandlerError struct{ JobType string }

func (e *MissingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

type PanicError struct{ Val any }

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }

// HandlerFunc adapts a function to queue.Handler.
type HandlerFunc struct {
	JobType string
	Fn      func(ctx context.Context, job *queue.Job) error
}

func (h HandlerFunc) Type() string { return h.JobType }

func (h HandlerFunc) Run(ctx context.Context, job *queue.Job) error { return h.Fn(ctx, job) }
