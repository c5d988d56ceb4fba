package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProcessingHistory is the append-only audit trail of status changes.
type ProcessingHistory struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProcessingCandidateID uuid.UUID      `gorm:"type:uuid;column:processing_candidate_id;not null;index" json:"processing_candidate_id"`
	ProcessingStepID      *uuid.UUID     `gorm:"type:uuid;column:processing_step_id;index" json:"processing_step_id,omitempty"`
	StepKey               string         `gorm:"column:step_key" json:"step_key,omitempty"`
	Status                string         `gorm:"column:status;not null" json:"status"`
	ActorID               *uuid.UUID     `gorm:"type:uuid;column:actor_id;index" json:"actor_id,omitempty"`
	RecruiterID           *uuid.UUID     `gorm:"type:uuid;column:recruiter_id" json:"recruiter_id,omitempty"`
	Notes                 string         `gorm:"column:notes;type:text" json:"notes,omitempty"`
	Metadata              datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt             time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ProcessingHistory) TableName() string { return "processing_history" }

func (h *ProcessingHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
