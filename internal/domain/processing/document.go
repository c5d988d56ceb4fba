package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CountryDocumentRequirement is a document rule for a step template, either global
// (CountryCode == CountryAll) or country-specific.
type CountryDocumentRequirement struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID  uuid.UUID `gorm:"type:uuid;column:template_id;not null;uniqueIndex:idx_country_doc_requirement" json:"template_id"`
	CountryCode string    `gorm:"column:country_code;not null;uniqueIndex:idx_country_doc_requirement" json:"country_code"`
	DocType     string    `gorm:"column:doc_type;not null;uniqueIndex:idx_country_doc_requirement" json:"doc_type"`
	Label       string    `gorm:"column:label;not null" json:"label"`
	Mandatory   bool      `gorm:"column:mandatory;not null" json:"mandatory"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (CountryDocumentRequirement) TableName() string { return "country_document_requirement" }

func (r *CountryDocumentRequirement) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ProcessingDocument is a document attached to a step together with its verification state.
// File storage lives elsewhere; only metadata is kept here.
type ProcessingDocument struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProcessingStepID      uuid.UUID  `gorm:"type:uuid;column:processing_step_id;not null;index" json:"processing_step_id"`
	ProcessingCandidateID uuid.UUID  `gorm:"type:uuid;column:processing_candidate_id;not null;index" json:"processing_candidate_id"`
	DocType               string     `gorm:"column:doc_type;not null;index" json:"doc_type"`
	FileName              string     `gorm:"column:file_name" json:"file_name,omitempty"`
	Status                string     `gorm:"column:status;not null;index" json:"status"`
	RejectionReason       string     `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`
	UploadedBy            *uuid.UUID `gorm:"type:uuid;column:uploaded_by" json:"uploaded_by,omitempty"`
	VerifiedBy            *uuid.UUID `gorm:"type:uuid;column:verified_by" json:"verified_by,omitempty"`
	VerifiedAt            *time.Time `gorm:"column:verified_at" json:"verified_at,omitempty"`
	CreatedAt             time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"not null;index" json:"updated_at"`
}

func (ProcessingDocument) TableName() string { return "processing_document" }

func (d *ProcessingDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Requirement is one merged document requirement for a step.
type Requirement struct {
	DocType   string `json:"doc_type"`
	Label     string `json:"label"`
	Mandatory bool   `json:"mandatory"`
	// Source is the country code of the winning rule (CountryAll or a specific country).
	Source string `json:"source"`
}
