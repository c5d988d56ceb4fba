package reminderjob

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/yungbote/processing-backend/internal/jobs/runtime"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/queue"
)

func newEnv(t *testing.T, reg *runtime.Registry) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	acts := &Activities{Log: logger.Nop(), Registry: reg}
	env.RegisterActivityWithOptions(acts.Deliver, activity.RegisterOptions{Name: ActivityDeliver})
	return env
}

func TestWorkflowDispatchesPayload(t *testing.T) {
	reg := runtime.NewRegistry()
	var got map[string]string
	_ = reg.Register(runtime.HandlerFunc{JobType: "reminder.hrd", Fn: func(ctx context.Context, job *queue.Job) error {
		return job.Decode(&got)
	}})
	env := newEnv(t, reg)

	env.ExecuteWorkflow(Workflow, Envelope{
		JobID:       "job-1",
		Type:        "reminder.hrd",
		Payload:     json.RawMessage(`{"reminderId":"r1"}`),
		MaxAttempts: 3,
	})
	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow not completed")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	if got["reminderId"] != "r1" {
		t.Fatalf("payload: want=r1 got=%v", got)
	}
}

func TestWorkflowRetriesUpToMaxAttempts(t *testing.T) {
	reg := runtime.NewRegistry()
	calls := 0
	_ = reg.Register(runtime.HandlerFunc{JobType: "reminder.hrd", Fn: func(ctx context.Context, job *queue.Job) error {
		calls++
		return errors.New("notifier down")
	}})
	env := newEnv(t, reg)

	env.ExecuteWorkflow(Workflow, Envelope{JobID: "job-2", Type: "reminder.hrd", Payload: json.RawMessage(`{}`), MaxAttempts: 3})
	if err := env.GetWorkflowError(); err == nil {
		t.Fatalf("expected workflow error")
	}
	if calls != 3 {
		t.Fatalf("attempts: want=3 got=%d", calls)
	}
}

func TestWorkflowMissingHandlerIsNotRetried(t *testing.T) {
	env := newEnv(t, runtime.NewRegistry())
	env.ExecuteWorkflow(Workflow, Envelope{JobID: "job-3", Type: "unknown", Payload: json.RawMessage(`{}`), MaxAttempts: 5})
	if err := env.GetWorkflowError(); err == nil {
		t.Fatalf("expected workflow error")
	}
}
