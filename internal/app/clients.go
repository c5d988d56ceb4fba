package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	redisclient "github.com/yungbote/processing-backend/internal/clients/redis"
	httpH "github.com/yungbote/processing-backend/internal/http/handlers"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/queue"
	"github.com/yungbote/processing-backend/internal/temporalx"
)

type Clients struct {
	Redis    *goredis.Client
	Temporal temporalsdkclient.Client

	// Queue is where reminder jobs are scheduled. Consumer is non-nil only for backends polled by
	// the in-process worker (redis, memory); Temporal delivers through its own worker.
	Queue    queue.Queue
	Consumer queue.Consumer
	Backend  string
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...", "queue_backend", cfg.QueueBackend)
	var out Clients

	useRedis := cfg.QueueBackend == QueueBackendRedis || (cfg.QueueBackend == QueueBackendAuto && cfg.Redis.Addr != "")
	useTemporal := cfg.QueueBackend == QueueBackendTemporal || (cfg.QueueBackend == QueueBackendAuto && !useRedis && cfg.Temporal.Address != "")

	switch {
	case useRedis:
		rdb, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		dq, err := redisclient.NewDelayedQueue(log, rdb, cfg.Redis.Prefix)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis delayed queue: %w", err)
		}
		out.Redis, out.Queue, out.Consumer, out.Backend = rdb, dq, dq, QueueBackendRedis

	case useTemporal:
		tc, err := temporalx.NewClient(log, cfg.Temporal)
		if err != nil {
			return Clients{}, fmt.Errorf("init temporal: %w", err)
		}
		if tc == nil {
			return Clients{}, fmt.Errorf("REMINDER_QUEUE_BACKEND=temporal requires TEMPORAL_ADDRESS")
		}
		tq, err := temporalx.NewQueue(log, tc, cfg.Temporal)
		if err != nil {
			tc.Close()
			return Clients{}, fmt.Errorf("init temporal queue: %w", err)
		}
		out.Temporal, out.Queue, out.Backend = tc, tq, QueueBackendTemporal

	default:
		log.Warn("No REDIS_ADDR or TEMPORAL_ADDRESS configured; reminder jobs live in process memory")
		mem := queue.NewMemory(nil)
		out.Queue, out.Consumer, out.Backend = mem, mem, "memory"
	}
	return out, nil
}

// Checks returns readiness checks for whichever backends were wired.
func (c *Clients) Checks() []httpH.DependencyCheck {
	var out []httpH.DependencyCheck
	if c.Redis != nil {
		rdb := c.Redis
		out = append(out, httpH.DependencyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if c.Temporal != nil {
		tc := c.Temporal
		out = append(out, httpH.DependencyCheck{Name: "temporal", Check: func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &temporalsdkclient.CheckHealthRequest{})
			return err
		}})
	}
	return out
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
