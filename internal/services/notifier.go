package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/processing-backend/internal/domain"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

// =========================
// Reminder notifier
// =========================

// ReminderNotifier delivers reminder events to people. Returning an error from ReminderDue makes the
// queue retry the delivery.
type ReminderNotifier interface {
	ReminderDue(ctx context.Context, r *types.Reminder) error
	ReminderEscalated(ctx context.Context, r *types.Reminder, recipient *uuid.UUID, strategy string) error
}

type logNotifier struct {
	log *logger.Logger
}

// NewLogNotifier returns a notifier that only records events in the log.
func NewLogNotifier(baseLog *logger.Logger) ReminderNotifier {
	return &logNotifier{log: baseLog.With("service", "ReminderNotifier")}
}

func (n *logNotifier) ReminderDue(ctx context.Context, r *types.Reminder) error {
	if n == nil || r == nil {
		return nil
	}
	n.log.Info("Reminder due",
		"reminder_id", r.ID,
		"family", r.Family,
		"processing_step_id", r.ProcessingStepID,
		"assigned_user_id", safeUserID(r.AssignedTo),
		"reminder_count", r.ReminderCount,
	)
	return nil
}

func (n *logNotifier) ReminderEscalated(ctx context.Context, r *types.Reminder, recipient *uuid.UUID, strategy string) error {
	if n == nil || r == nil {
		return nil
	}
	n.log.Warn("Reminder escalated",
		"reminder_id", r.ID,
		"family", r.Family,
		"processing_step_id", r.ProcessingStepID,
		"recipient_user_id", safeUserID(recipient),
		"strategy", strategy,
		"days_completed", r.DaysCompleted,
	)
	return nil
}

func safeUserID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
