package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/queue"
)

// DelayedQueue stores jobs as hashes and keeps three sorted sets of job ids:
// scheduled (score = run-at millis), active (score = claim millis) and failed.
type DelayedQueue struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ queue.Queue = (*DelayedQueue)(nil)
var _ queue.Consumer = (*DelayedQueue)(nil)

// Reclaims active ids claimed at or before ARGV[4] (0 disables), then moves due ids from scheduled to
// active, up to ARGV[2] in total. Every claim stamps claimed_at and counts the attempt.
var claimScript = goredis.NewScript(`
local limit = tonumber(ARGV[2])
local ids = {}
if tonumber(ARGV[4]) > 0 then
  ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[4], 'LIMIT', 0, limit)
end
if #ids < limit then
  local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, limit - #ids)
  for _, id in ipairs(due) do
    redis.call('ZREM', KEYS[1], id)
    table.insert(ids, id)
  end
end
for _, id in ipairs(ids) do
  redis.call('ZADD', KEYS[2], ARGV[1], id)
  local k = ARGV[3] .. id
  redis.call('HSET', k, 'state', 'active', 'claimed_at', ARGV[1])
  redis.call('HINCRBY', k, 'attempts', 1)
end
return ids
`)

func NewDelayedQueue(log *logger.Logger, rdb goredis.UniversalClient, prefix string) (*DelayedQueue, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "processing:reminders"
	}
	return &DelayedQueue{
		log:    log.With("client", "RedisDelayedQueue"),
		rdb:    rdb,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

func (q *DelayedQueue) key(name string) string { return q.prefix + ":" + name }
func (q *DelayedQueue) jobKey(id string) string { return q.prefix + ":job:" + id }
func (q *DelayedQueue) jobKeyPrefix() string { return q.prefix + ":job:" }

func (q *DelayedQueue) Enqueue(ctx context.Context, jobType string, payload any, opts queue.EnqueueOptions) (*queue.Job, error) {
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return nil, fmt.Errorf("redis queue: job type required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("redis queue: marshal payload: %w", err)
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	now := q.now()
	job := &queue.Job{
		ID:               uuid.NewString(),
		Type:             jobType,
		Payload:          raw,
		MaxAttempts:      opts.MaxAttempts,
		RunAt:            now.Add(opts.Delay),
		CreatedAt:        now,
		RemoveOnComplete: opts.RemoveOnComplete,
		RemoveOnFail:     opts.RemoveOnFail,
	}
	job.State = queue.StateAt(job.RunAt, now)

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(job.ID), encodeJob(job))
	pipe.ZAdd(ctx, q.key("scheduled"), goredis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis queue: enqueue: %w", err)
	}
	return job, nil
}

func (q *DelayedQueue) ListPending(ctx context.Context, states ...queue.State) ([]*queue.Job, error) {
	sets := []string{q.key("scheduled")}
	if queue.Matches(queue.StateActive, states) {
		sets = append(sets, q.key("active"))
	}
	if queue.Matches(queue.StateFailed, states) {
		sets = append(sets, q.key("failed"))
	}

	ids := make([]string, 0)
	for _, set := range sets {
		members, err := q.rdb.ZRange(ctx, set, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("redis queue: list %s: %w", set, err)
		}
		ids = append(ids, members...)
	}
	jobs, err := q.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := q.now()
	out := make([]*queue.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.State == queue.StateDelayed || j.State == queue.StateWaiting {
			j.State = queue.StateAt(j.RunAt, now)
		}
		if queue.Matches(j.State, states) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (q *DelayedQueue) Remove(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil
	}
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.key("scheduled"), jobID)
	pipe.ZRem(ctx, q.key("active"), jobID)
	pipe.ZRem(ctx, q.key("failed"), jobID)
	pipe.Del(ctx, q.jobKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis queue: remove %s: %w", jobID, err)
	}
	return nil
}

func (q *DelayedQueue) Claim(ctx context.Context, now time.Time, limit int, staleRunning time.Duration) ([]*queue.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	var staleBefore int64
	if staleRunning > 0 {
		staleBefore = now.Add(-staleRunning).UnixMilli()
	}
	ids, err := claimScript.Run(ctx, q.rdb,
		[]string{q.key("scheduled"), q.key("active")},
		now.UnixMilli(), limit, q.jobKeyPrefix(), staleBefore,
	).StringSlice()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis queue: claim: %w", err)
	}
	return q.load(ctx, ids)
}

func (q *DelayedQueue) Ack(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return nil
	}
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.key("active"), job.ID)
	if job.RemoveOnComplete {
		pipe.Del(ctx, q.jobKey(job.ID))
	} else {
		pipe.HSet(ctx, q.jobKey(job.ID), "state", string(queue.StateCompleted))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis queue: ack %s: %w", job.ID, err)
	}
	return nil
}

func (q *DelayedQueue) Nack(ctx context.Context, job *queue.Job, cause error, retryAt time.Time) error {
	if job == nil {
		return nil
	}
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.key("active"), job.ID)
	switch {
	case job.Exhausted() && job.RemoveOnFail:
		pipe.Del(ctx, q.jobKey(job.ID))
	case job.Exhausted():
		pipe.HSet(ctx, q.jobKey(job.ID), "state", string(queue.StateFailed), "last_error", lastErr)
		pipe.ZAdd(ctx, q.key("failed"), goredis.Z{Score: float64(q.now().UnixMilli()), Member: job.ID})
	default:
		pipe.HSet(ctx, q.jobKey(job.ID),
			"state", string(queue.StateDelayed),
			"run_at", strconv.FormatInt(retryAt.UnixMilli(), 10),
			"last_error", lastErr,
		)
		pipe.ZAdd(ctx, q.key("scheduled"), goredis.Z{Score: float64(retryAt.UnixMilli()), Member: job.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis queue: nack %s: %w", job.ID, err)
	}
	if job.Exhausted() {
		q.log.Warn("Reminder job exhausted attempts", "job_id", job.ID, "job_type", job.Type, "attempts", job.Attempts, "error", lastErr)
	}
	return nil
}

func (q *DelayedQueue) load(ctx context.Context, ids []string) ([]*queue.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := q.rdb.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, q.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("redis queue: load jobs: %w", err)
	}
	out := make([]*queue.Job, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			// The hash was removed between the index read and the load.
			continue
		}
		out = append(out, decodeJob(ids[i], fields))
	}
	return out, nil
}

func encodeJob(j *queue.Job) map[string]any {
	return map[string]any{
		"type":               j.Type,
		"payload":            string(j.Payload),
		"state":              string(j.State),
		"attempts":           j.Attempts,
		"max_attempts":       j.MaxAttempts,
		"run_at":             strconv.FormatInt(j.RunAt.UnixMilli(), 10),
		"created_at":         strconv.FormatInt(j.CreatedAt.UnixMilli(), 10),
		"last_error":         j.LastError,
		"remove_on_complete": boolField(j.RemoveOnComplete),
		"remove_on_fail":     boolField(j.RemoveOnFail),
	}
}

func decodeJob(id string, f map[string]string) *queue.Job {
	return &queue.Job{
		ID:               id,
		Type:             f["type"],
		Payload:          json.RawMessage(f["payload"]),
		State:            queue.State(f["state"]),
		Attempts:         atoi(f["attempts"]),
		MaxAttempts:      atoi(f["max_attempts"]),
		RunAt:            millis(f["run_at"]),
		CreatedAt:        millis(f["created_at"]),
		ClaimedAt:        millis(f["claimed_at"]),
		LastError:        f["last_error"],
		RemoveOnComplete: f["remove_on_complete"] == "1",
		RemoveOnFail:     f["remove_on_fail"] == "1",
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func millis(s string) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}
