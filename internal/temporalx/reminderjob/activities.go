package reminderjob

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/processing-backend/internal/jobs/runtime"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/queue"
)

type Activities struct {
	Log      *logger.Logger
	Registry *runtime.Registry
}

func (a *Activities) Deliver(ctx context.Context, env Envelope) error {
	if a == nil || a.Registry == nil {
		return fmt.Errorf("reminderjob: activity not configured")
	}
	info := activity.GetInfo(ctx)
	job := &queue.Job{
		ID:          env.JobID,
		Type:        env.Type,
		Payload:     env.Payload,
		State:       queue.StateActive,
		Attempts:    int(info.Attempt),
		MaxAttempts: env.MaxAttempts,
		RunAt:       env.RunAt,
		CreatedAt:   env.CreatedAt,
	}
	err := a.Registry.Dispatch(ctx, job)
	if err == nil {
		return nil
	}
	if a.Log != nil {
		a.Log.Warn("Reminder job attempt failed", "job_id", env.JobID, "job_type", env.Type, "attempt", info.Attempt, "error", err)
	}
	var missing *runtime.MissingHandlerError
	if errors.As(err, &missing) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "missing_handler", err)
	}
	return err
}
