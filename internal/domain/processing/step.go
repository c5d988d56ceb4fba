package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessingStep is one instantiated step of a ProcessingCandidate's plan.
// (ProcessingCandidateID, TemplateID) is unique; StepOrder is copied from the plan at materialization.
type ProcessingStep struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProcessingCandidateID uuid.UUID `gorm:"type:uuid;column:processing_candidate_id;not null;uniqueIndex:idx_processing_step_candidate_template" json:"processing_candidate_id"`
	TemplateID            uuid.UUID `gorm:"type:uuid;column:template_id;not null;uniqueIndex:idx_processing_step_candidate_template" json:"template_id"`
	StepOrder             int       `gorm:"column:step_order;not null;index" json:"step_order"`
	Status                string    `gorm:"column:status;not null;index" json:"status"`

	SubmittedAt     *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	StartedAt       *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DueDate         *time.Time `gorm:"column:due_date" json:"due_date,omitempty"`
	RejectionReason string     `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`
	AssignedTo      *uuid.UUID `gorm:"type:uuid;column:assigned_to;index" json:"assigned_to,omitempty"`
	Notes           string     `gorm:"column:notes;type:text" json:"notes,omitempty"`

	// Stage outcome (e.g. medical fitness) and external reference (e.g. visa or HRD number).
	OutcomePassed     *bool  `gorm:"column:outcome_passed" json:"outcome_passed,omitempty"`
	OutcomeNotes      string `gorm:"column:outcome_notes;type:text" json:"outcome_notes,omitempty"`
	ExternalReference string `gorm:"column:external_reference" json:"external_reference,omitempty"`

	Template *ProcessingStepTemplate `gorm:"foreignKey:TemplateID" json:"template,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (ProcessingStep) TableName() string { return "processing_step" }

func (s *ProcessingStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Key returns the template key, or "" when the template was not preloaded.
func (s *ProcessingStep) Key() string {
	if s == nil || s.Template == nil {
		return ""
	}
	return s.Template.Key
}
