package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/processing-backend/internal/queue"
)

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()
	called := 0
	if err := r.Register(HandlerFunc{JobType: "a", Fn: func(ctx context.Context, job *queue.Job) error {
		called++
		return nil
	}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(HandlerFunc{JobType: "a"}); err == nil {
		t.Fatalf("duplicate Register: expected error")
	}
	if err := r.Dispatch(context.Background(), &queue.Job{Type: "a"}); err != nil || called != 1 {
		t.Fatalf("Dispatch: called=%d err=%v", called, err)
	}

	var missing *MissingHandlerError
	if err := r.Dispatch(context.Background(), &queue.Job{Type: "b"}); !errors.As(err, &missing) {
		t.Fatalf("missing handler: got=%v", err)
	}
}

func TestRegistryDispatchRecoversPanic(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(HandlerFunc{JobType: "p", Fn: func(ctx context.Context, job *queue.Job) error { panic("bad") }})
	var pe *PanicError
	if err := r.Dispatch(context.Background(), &queue.Job{Type: "p"}); !errors.As(err, &pe) {
		t.Fatalf("panic: want PanicError got=%v", err)
	}
}
