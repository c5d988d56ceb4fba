package reminderjob

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow runs one delivery. The delay is applied by the client through StartDelay, so the
// workflow body only executes the activity with the job's attempt budget.
func Workflow(ctx workflow.Context, env Envelope) error {
	if strings.TrimSpace(env.Type) == "" {
		return fmt.Errorf("reminderjob: missing job type")
	}
	attempts := env.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Hour,
			MaximumAttempts:    int32(attempts),
		},
	})
	return workflow.ExecuteActivity(ctx, ActivityDeliver, env).Get(ctx, nil)
}
