package temporalx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/queue"
	"github.com/yungbote/processing-backend/internal/temporalx/reminderjob"
)

// Queue runs each job as a reminder_job workflow started with StartDelay. Closed executions are
// kept until namespace retention expires, so RemoveOnComplete and RemoveOnFail have no effect here.
type Queue struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	namespace string
	taskQueue string
	now       func() time.Time
}

var _ queue.Queue = (*Queue)(nil)

func NewQueue(log *logger.Logger, tc temporalsdkclient.Client, cfg Config) (*Queue, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Queue{
		log:       log.With("client", "TemporalQueue"),
		tc:        tc,
		namespace: cfg.Namespace,
		taskQueue: cfg.TaskQueue,
		now:       time.Now,
	}, nil
}

func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, opts queue.EnqueueOptions) (*queue.Job, error) {
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return nil, fmt.Errorf("temporal queue: job type required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("temporal queue: marshal payload: %w", err)
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	now := q.now()
	env := reminderjob.Envelope{
		JobID:       "reminder-job-" + uuid.NewString(),
		Type:        jobType,
		Payload:     raw,
		MaxAttempts: opts.MaxAttempts,
		RunAt:       now.Add(opts.Delay),
		CreatedAt:   now,
	}
	_, err = q.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:         env.JobID,
		TaskQueue:  q.taskQueue,
		StartDelay: opts.Delay,
		Memo:       map[string]interface{}{reminderjob.MemoKey: env},
	}, reminderjob.WorkflowName, env)
	if err != nil {
		return nil, fmt.Errorf("temporal queue: start workflow: %w", err)
	}
	return envelopeJob(env, queue.StateAt(env.RunAt, now)), nil
}

func (q *Queue) ListPending(ctx context.Context, states ...queue.State) ([]*queue.Job, error) {
	query := fmt.Sprintf("WorkflowType = '%s' AND ExecutionStatus = 'Running'", reminderjob.WorkflowName)
	if queue.Matches(queue.StateFailed, states) {
		query = fmt.Sprintf("WorkflowType = '%s' AND (ExecutionStatus = 'Running' OR ExecutionStatus = 'Failed')", reminderjob.WorkflowName)
	}

	now := q.now()
	dc := converter.GetDefaultDataConverter()
	out := make([]*queue.Job, 0)
	var token []byte
	for {
		resp, err := q.tc.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
			Namespace:     q.namespace,
			PageSize:      200,
			NextPageToken: token,
			Query:         query,
		})
		if err != nil {
			return nil, fmt.Errorf("temporal queue: list workflows: %w", err)
		}
		for _, info := range resp.GetExecutions() {
			p, ok := info.GetMemo().GetFields()[reminderjob.MemoKey]
			if !ok {
				continue
			}
			var env reminderjob.Envelope
			if err := dc.FromPayload(p, &env); err != nil {
				q.log.Warn("Skipping reminder workflow with unreadable memo", "workflow_id", info.GetExecution().GetWorkflowId(), "error", err)
				continue
			}
			state := queue.StateAt(env.RunAt, now)
			if info.GetStatus() == enumspb.WORKFLOW_EXECUTION_STATUS_FAILED {
				state = queue.StateFailed
			}
			if queue.Matches(state, states) {
				out = append(out, envelopeJob(env, state))
			}
		}
		token = resp.GetNextPageToken()
		if len(token) == 0 {
			return out, nil
		}
	}
}

func (q *Queue) Remove(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil
	}
	err := q.tc.TerminateWorkflow(ctx, jobID, "", "reminder job removed")
	var nf *serviceerror.NotFound
	if err == nil || errors.As(err, &nf) {
		return nil
	}
	return fmt.Errorf("temporal queue: terminate %s: %w", jobID, err)
}

func envelopeJob(env reminderjob.Envelope, state queue.State) *queue.Job {
	return &queue.Job{
		ID:          env.JobID,
		Type:        env.Type,
		Payload:     env.Payload,
		State:       state,
		MaxAttempts: env.MaxAttempts,
		RunAt:       env.RunAt,
		CreatedAt:   env.CreatedAt,
	}
}
