package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessingStepTemplate is catalog reference data describing one kind of step.
type ProcessingStepTemplate struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Key          string    `gorm:"column:step_key;not null;uniqueIndex" json:"key"`
	Label        string    `gorm:"column:label;not null" json:"label"`
	DefaultOrder int       `gorm:"column:default_order;not null;index" json:"default_order"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (ProcessingStepTemplate) TableName() string { return "processing_step_template" }

func (t *ProcessingStepTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ProcessingCountryStep includes a template in a country's plan at Position.
type ProcessingCountryStep struct {
	ID          uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	CountryCode string                  `gorm:"column:country_code;not null;uniqueIndex:idx_country_step_template" json:"country_code"`
	TemplateID  uuid.UUID               `gorm:"type:uuid;column:template_id;not null;uniqueIndex:idx_country_step_template" json:"template_id"`
	Position    int                     `gorm:"column:position;not null" json:"position"`
	Template    *ProcessingStepTemplate `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	CreatedAt   time.Time               `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time               `gorm:"not null" json:"updated_at"`
}

func (ProcessingCountryStep) TableName() string { return "processing_country_step" }

func (s *ProcessingCountryStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// PlanEntry is one resolved position in a candidate's step plan.
type PlanEntry struct {
	Template *ProcessingStepTemplate
	Order    int
}
