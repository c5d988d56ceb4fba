package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/processing-backend/internal/platform/envutil"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/queue"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	aggregateOps       *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec
	transitions        *CounterVec

	reminderEvents *CounterVec
	jobRuns        *HistogramVec
	queueDepth     *GaugeVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	n := envutil.Int("METRICS_SCRAPE_INTERVAL_SECONDS", 10)
	if n <= 0 {
		n = 10
	}
	return time.Duration(n) * time.Second
}

// Init builds the process-wide registry when METRICS_ENABLED is set; otherwise it returns nil and
// every recording method becomes a no-op.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	secs := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	return &Metrics{
		apiRequests: NewCounterVec("pb_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("pb_api_request_duration_seconds", "API request latency in seconds.", []string{"method", "route", "status"}, secs),
		apiInflight: NewGauge("pb_api_inflight_requests", "In-flight API requests."),

		aggregateOps:       NewHistogramVec("pb_aggregate_operation_duration_seconds", "Transactional aggregate operation latency.", []string{"operation", "status"}, secs),
		aggregateConflicts: NewCounterVec("pb_aggregate_conflicts_total", "Aggregate writes rejected by a status guard.", []string{"operation"}),
		aggregateRetries:   NewCounterVec("pb_aggregate_retries_total", "Aggregate transactions retried after a retryable store error.", []string{"operation"}),
		transitions:        NewCounterVec("pb_processing_transitions_total", "Committed step and candidate status transitions.", []string{"entity", "status"}),

		reminderEvents: NewCounterVec("pb_reminder_events_total", "Reminder lifecycle events by family.", []string{"family", "event"}),
		jobRuns:        NewHistogramVec("pb_queue_job_duration_seconds", "Delayed job handler latency.", []string{"job_type", "status"}, secs),
		queueDepth:     NewGaugeVec("pb_queue_depth", "Delayed queue jobs by state.", []string{"state"}),

		pgStats:   NewGaugeVec("pb_postgres_pool", "database/sql pool statistics.", []string{"stat"}),
		redisUp:   NewGauge("pb_redis_up", "1 when the last Redis ping succeeded."),
		redisPing: NewGauge("pb_redis_ping_seconds", "Latency of the last Redis ping."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aggregateOps, m.aggregateConflicts, m.aggregateRetries, m.transitions,
		m.reminderEvents, m.jobRuns, m.queueDepth,
		m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Observe(dur.Seconds(), operation, status)
}

func (m *Metrics) IncAggregateConflict(operation string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(operation)
}

func (m *Metrics) IncAggregateRetry(operation string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(operation)
}

// IncStepTransition counts a status change; entity is "step" or "candidate".
func (m *Metrics) IncStepTransition(entity, status string) {
	if m == nil {
		return
	}
	m.transitions.Inc(entity, status)
}

// Reminder lifecycle events.
const (
	ReminderScheduled   = "scheduled"
	ReminderRescheduled = "rescheduled"
	ReminderCancelled   = "cancelled"
	ReminderDelivered   = "delivered"
	ReminderEscalated   = "escalated"
	ReminderFailed      = "failed"
)

func (m *Metrics) IncReminderEvent(family, event string) {
	if m == nil {
		return
	}
	if family == "" {
		family = "none"
	}
	m.reminderEvents.Inc(family, event)
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.Observe(dur.Seconds(), jobType, status)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartQueueDepthCollector samples pending, active and failed jobs of q.
func (m *Metrics) StartQueueDepthCollector(ctx context.Context, log *logger.Logger, q queue.Queue) {
	if m == nil || q == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.SampleQueueDepth(ctx, q); err != nil && log != nil {
					log.Warn("metrics: queue depth sample failed", "error", err)
				}
			}
		}
	}()
}

func (m *Metrics) SampleQueueDepth(ctx context.Context, q queue.Queue) error {
	if m == nil || q == nil {
		return nil
	}
	states := []queue.State{queue.StateDelayed, queue.StateWaiting, queue.StateActive, queue.StateFailed}
	jobs, err := q.ListPending(ctx, states...)
	if err != nil {
		return err
	}
	counts := make(map[queue.State]int, len(states))
	for _, j := range jobs {
		counts[j.State]++
	}
	for _, s := range states {
		m.queueDepth.Set(float64(counts[s]), string(s))
	}
	return nil
}
