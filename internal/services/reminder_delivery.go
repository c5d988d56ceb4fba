package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	processingrepo "github.com/yungbote/processing-backend/internal/data/repos/processing"
	reminderrepo "github.com/yungbote/processing-backend/internal/data/repos/reminders"
	types "github.com/yungbote/processing-backend/internal/domain"
	reminderdomain "github.com/yungbote/processing-backend/internal/domain/reminders"
	"github.com/yungbote/processing-backend/internal/jobs/runtime"
	schedule "github.com/yungbote/processing-backend/internal/modules/reminders"
	"github.com/yungbote/processing-backend/internal/observability"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/queue"
)

// ReminderDelivery runs reminder jobs when they come due: it notifies the assignee, records the
// delivery and queues the next one.
type ReminderDelivery struct {
	log        *logger.Logger
	steps      processingrepo.StepRepo
	candidates processingrepo.CandidateRepo
	reminders  reminderrepo.ReminderRepo
	settings   ReminderSettingsProvider
	notifier   ReminderNotifier
	queue      queue.Queue
	metrics    *observability.Metrics
	cfg        ReminderConfig
	now        func() time.Time
}

func NewReminderDelivery(
	baseLog *logger.Logger,
	steps processingrepo.StepRepo,
	candidates processingrepo.CandidateRepo,
	reminders reminderrepo.ReminderRepo,
	settings ReminderSettingsProvider,
	notifier ReminderNotifier,
	q queue.Queue,
	metrics *observability.Metrics,
	cfg ReminderConfig,
) *ReminderDelivery {
	return &ReminderDelivery{
		log:        baseLog.With("service", "ReminderDelivery"),
		steps:      steps,
		candidates: candidates,
		reminders:  reminders,
		settings:   settings,
		notifier:   notifier,
		queue:      q,
		metrics:    metrics,
		cfg:        cfg.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register adds one handler per reminder family to the registry.
func (d *ReminderDelivery) Register(reg *runtime.Registry, families []string) error {
	for _, family := range families {
		if err := reg.Register(runtime.HandlerFunc{JobType: reminderdomain.JobType(family), Fn: d.Run}); err != nil {
			return err
		}
	}
	return nil
}

// Run delivers the reminder named by the job payload. Jobs for missing, completed or rescheduled
// reminders are acknowledged without effect.
func (d *ReminderDelivery) Run(ctx context.Context, job *queue.Job) error {
	var p types.ReminderJobPayload
	if err := job.Decode(&p); err != nil {
		return fmt.Errorf("decode reminder payload: %w", err)
	}
	log := d.log.With("job_id", job.ID, "reminder_id", p.ReminderID)
	dbc := dbctx.Context{Ctx: ctx}

	rem, err := d.reminders.GetByID(dbc, p.ReminderID)
	if err != nil {
		return err
	}
	switch {
	case rem == nil:
		log.Info("Reminder gone; dropping job")
		return nil
	case rem.Status == types.ReminderStatusCompleted:
		log.Debug("Reminder completed; dropping job")
		return nil
	case rem.JobID != "" && rem.JobID != job.ID:
		log.Debug("Reminder rescheduled; dropping stale job", "current_job_id", rem.JobID)
		return nil
	}

	settings, err := d.settings.Get(ctx, rem.Family)
	if err != nil {
		return err
	}
	if err := d.notifier.ReminderDue(ctx, rem); err != nil {
		d.metrics.IncReminderEvent(rem.Family, observability.ReminderFailed)
		return fmt.Errorf("notify reminder %s: %w", rem.ID, err)
	}
	d.metrics.IncReminderEvent(rem.Family, observability.ReminderDelivered)

	now := d.now().In(d.cfg.Location)
	next, rolled := schedule.NextDelivery(now, settings)
	dailyCount := rem.DailyCount + 1
	daysCompleted := rem.DaysCompleted
	if rolled {
		daysCompleted++
		dailyCount = 0
	}
	updates := map[string]interface{}{
		"status":             types.ReminderStatusSent,
		"sent_at":            now.UTC(),
		"last_reminder_date": now.UTC(),
		"reminder_count":     rem.ReminderCount + 1,
		"daily_count":        dailyCount,
		"days_completed":     daysCompleted,
		"scheduled_for":      next.UTC(),
		"job_id":             "",
	}

	esc := settings.Escalate
	if esc.Enabled && !rem.Escalated && daysCompleted >= esc.AfterDays {
		recipient := d.escalationRecipient(dbc, rem, esc.AssignmentStrategy)
		sent := *rem
		sent.DaysCompleted = daysCompleted
		if err := d.notifier.ReminderEscalated(ctx, &sent, recipient, esc.AssignmentStrategy); err != nil {
			log.Warn("Reminder escalation failed; will retry on next delivery", "error", err)
		} else {
			updates["escalated"] = true
			d.metrics.IncReminderEvent(rem.Family, observability.ReminderEscalated)
		}
	}

	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}
	nextJob, err := d.queue.Enqueue(ctx, reminderdomain.JobType(rem.Family), reminderPayload(rem), queue.EnqueueOptions{
		Delay:            delay,
		MaxAttempts:      d.cfg.MaxAttempts,
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	})
	if err != nil {
		d.metrics.IncReminderEvent(rem.Family, observability.ReminderFailed)
		log.Warn("Enqueue next reminder failed; reconcile will requeue", "error", err)
	} else {
		updates["job_id"] = nextJob.ID
	}

	// The row may have been cancelled or reset while the notifier ran; only the version read above may advance.
	applied, err := d.reminders.UpdateIfVersion(dbc, rem.ID, rem.Version, updates)
	if err != nil || !applied {
		if nextJob != nil {
			if rmErr := d.queue.Remove(ctx, nextJob.ID); rmErr != nil {
				log.Warn("Remove next reminder job failed", "next_job_id", nextJob.ID, "error", rmErr)
			}
		}
		if err != nil {
			return fmt.Errorf("record reminder delivery: %w", err)
		}
		log.Info("Reminder changed during delivery; dropping follow-up")
		return nil
	}
	log.Info("Reminder delivered", "next_at", next.UTC(), "days_completed", daysCompleted)
	return nil
}

func (d *ReminderDelivery) escalationRecipient(dbc dbctx.Context, rem *types.Reminder, strategy string) *uuid.UUID {
	if strategy == reminderdomain.AssignToStepAssignee {
		step, err := d.steps.GetByID(dbc, rem.ProcessingStepID)
		if err != nil {
			d.log.Warn("Load step for escalation failed", "reminder_id", rem.ID, "error", err)
		}
		if step != nil && step.AssignedTo != nil {
			return step.AssignedTo
		}
		return rem.AssignedTo
	}
	pc, err := d.candidates.GetByID(dbc, rem.ProcessingCandidateID)
	if err != nil {
		d.log.Warn("Load processing candidate for escalation failed", "reminder_id", rem.ID, "error", err)
	}
	if pc != nil && pc.AssignedProcessingUserID != nil {
		return pc.AssignedProcessingUserID
	}
	return rem.AssignedTo
}
