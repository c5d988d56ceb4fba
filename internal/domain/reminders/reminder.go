package reminders

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusCompleted = "completed"
)

// ActiveStatuses are the statuses of a reminder that still has future deliveries.
var ActiveStatuses = []string{StatusPending, StatusSent}

// Reminder is the stage reminder for one processing step. At most one non-completed row exists per
// (family, step); a new scheduling request resets that row instead of inserting another.
type Reminder struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Family                string     `gorm:"column:family;not null;index" json:"family"`
	ProcessingStepID      uuid.UUID  `gorm:"type:uuid;column:processing_step_id;not null;index" json:"processing_step_id"`
	ProcessingCandidateID uuid.UUID  `gorm:"type:uuid;column:processing_candidate_id;not null;index" json:"processing_candidate_id"`
	AssignedTo            *uuid.UUID `gorm:"type:uuid;column:assigned_to;index" json:"assigned_to,omitempty"`
	ScheduledFor          time.Time  `gorm:"column:scheduled_for;not null;index" json:"scheduled_for"`
	Status                string     `gorm:"column:status;not null;index" json:"status"`
	ReminderCount         int        `gorm:"column:reminder_count;not null;default:0" json:"reminder_count"`
	DailyCount            int        `gorm:"column:daily_count;not null;default:0" json:"daily_count"`
	DaysCompleted         int        `gorm:"column:days_completed;not null;default:0" json:"days_completed"`
	LastReminderDate      *time.Time `gorm:"column:last_reminder_date" json:"last_reminder_date,omitempty"`
	SentAt                *time.Time `gorm:"column:sent_at;index" json:"sent_at,omitempty"`
	Escalated             bool       `gorm:"column:escalated;not null;default:false" json:"escalated"`
	// Version increases on every lifecycle write; deliveries commit only against the version they read.
	Version int64 `gorm:"column:version;not null;default:0" json:"version"`
	// JobID is the queue job currently carrying the next delivery. The store is authoritative;
	// the job is disposable and can be recreated from ScheduledFor.
	JobID     string    `gorm:"column:job_id;index" json:"job_id,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Reminder) TableName() string { return "reminder" }

func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReminderSetting stores the JSON settings document for one reminder family.
type ReminderSetting struct {
	Family    string         `gorm:"column:family;primaryKey" json:"family"`
	Value     datatypes.JSON `gorm:"column:value;type:jsonb;not null" json:"value"`
	UpdatedBy *uuid.UUID     `gorm:"type:uuid;column:updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (ReminderSetting) TableName() string { return "reminder_setting" }

// JobPayload is the queue payload for a reminder delivery job.
type JobPayload struct {
	ReminderID            uuid.UUID  `json:"reminderId"`
	ProcessingStepID      uuid.UUID  `json:"processingStepId"`
	ProcessingCandidateID uuid.UUID  `json:"processingCandidateId"`
	AssignedTo            *uuid.UUID `json:"assignedTo,omitempty"`
	Family                string     `json:"family"`
}

// JobTypePrefix prefixes the queue job type of every reminder family.
const JobTypePrefix = "reminder."

// JobType returns the queue job type carrying deliveries of family.
func JobType(family string) string { return JobTypePrefix + family }
