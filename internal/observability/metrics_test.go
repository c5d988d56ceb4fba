package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/processing-backend/internal/queue"
)

func TestMetricsNilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.IncStepTransition("step", "completed")
	m.IncReminderEvent("hrd", ReminderScheduled)
	m.ObserveJob("reminder.hrd", "succeeded", time.Second)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus on nil: %v", err)
	}
}

func TestMetricsExposition(t *testing.T) {
	m := newMetrics()
	m.IncStepTransition("step", "completed")
	m.IncStepTransition("step", "completed")
	m.IncStepTransition("candidate", "cancelled")
	m.IncReminderEvent("", ReminderCancelled)
	m.ObserveAggregateOperation("processing.complete_step", "success", 30*time.Millisecond)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`pb_processing_transitions_total{entity="step",status="completed"} 2.000000`,
		`pb_processing_transitions_total{entity="candidate",status="cancelled"} 1.000000`,
		`pb_reminder_events_total{family="none",event="cancelled"} 1.000000`,
		`pb_aggregate_operation_duration_seconds_bucket{operation="processing.complete_step",status="success",le="0.05"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q\n%s", want, out)
		}
	}
	// Label sets are written in sorted order.
	if strings.Index(out, `entity="candidate"`) > strings.Index(out, `entity="step"`) {
		t.Fatalf("label sets not sorted")
	}
}

func TestSampleQueueDepth(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := queue.NewMemory(func() time.Time { return now })
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, "t", 1, queue.EnqueueOptions{Delay: time.Hour})
	_, _ = q.Enqueue(ctx, "t", 1, queue.EnqueueOptions{Delay: time.Hour})
	_, _ = q.Enqueue(ctx, "t", 1, queue.EnqueueOptions{})

	m := newMetrics()
	if err := m.SampleQueueDepth(ctx, q); err != nil {
		t.Fatalf("SampleQueueDepth: %v", err)
	}
	var buf bytes.Buffer
	_ = m.queueDepth.WritePrometheus(&buf)
	if !strings.Contains(buf.String(), `pb_queue_depth{state="delayed"} 2.000000`) ||
		!strings.Contains(buf.String(), `pb_queue_depth{state="waiting"} 1.000000`) {
		t.Fatalf("queue depth: %s", buf.String())
	}
}
