package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Candidate is the recruitment-side candidate record. Processing only reads it.
type Candidate struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName   string    `gorm:"column:first_name" json:"first_name"`
	LastName    string    `gorm:"column:last_name" json:"last_name"`
	CountryCode string    `gorm:"column:country_code;index" json:"country_code,omitempty"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Candidate) TableName() string { return "candidate" }

func (c *Candidate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Project is the client project a candidate is deployed to. Its country drives the step plan.
type Project struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	CountryCode string    `gorm:"column:country_code;index" json:"country_code,omitempty"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Project) TableName() string { return "project" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProcessingCandidate is a candidate's assignment to a project+role for onboarding processing.
// Rows are never hard-deleted; terminal statuses are kept for audit.
type ProcessingCandidate struct {
	ID                       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CandidateID              uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_processing_candidate_assignment" json:"candidate_id"`
	ProjectID                uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_processing_candidate_assignment" json:"project_id"`
	RoleID                   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_processing_candidate_assignment" json:"role_id"`
	AssignedProcessingUserID *uuid.UUID `gorm:"type:uuid;column:assigned_processing_user_id;index" json:"assigned_processing_user_id,omitempty"`
	ProcessingStatus         string     `gorm:"column:processing_status;not null;index" json:"processing_status"`
	CurrentStepKey           string     `gorm:"column:current_step_key" json:"current_step_key,omitempty"`
	Notes                    string     `gorm:"column:notes;type:text" json:"notes,omitempty"`

	Candidate *Candidate        `gorm:"foreignKey:CandidateID" json:"candidate,omitempty"`
	Project   *Project          `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Steps     []*ProcessingStep `gorm:"foreignKey:ProcessingCandidateID" json:"steps,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (ProcessingCandidate) TableName() string { return "processing_candidate" }

func (c *ProcessingCandidate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
