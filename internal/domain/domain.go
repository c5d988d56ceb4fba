package domain

import (
	"github.com/yungbote/processing-backend/internal/domain/processing"
	"github.com/yungbote/processing-backend/internal/domain/reminders"
)

const (
	CandidateStatusAssigned   = processing.CandidateStatusAssigned
	CandidateStatusInProgress = processing.CandidateStatusInProgress
	CandidateStatusCompleted  = processing.CandidateStatusCompleted
	CandidateStatusCancelled  = processing.CandidateStatusCancelled

	StepStatusPending    = processing.StepStatusPending
	StepStatusInProgress = processing.StepStatusInProgress
	StepStatusCompleted  = processing.StepStatusCompleted
	StepStatusRejected   = processing.StepStatusRejected
	StepStatusCancelled  = processing.StepStatusCancelled

	DocumentStatusPending  = processing.DocumentStatusPending
	DocumentStatusVerified = processing.DocumentStatusVerified
	DocumentStatusRejected = processing.DocumentStatusRejected

	CountryAll           = processing.CountryAll
	CurrentStepCompleted = processing.CurrentStepCompleted

	ReminderStatusPending   = reminders.StatusPending
	ReminderStatusSent      = reminders.StatusSent
	ReminderStatusCompleted = reminders.StatusCompleted
)

type Candidate = processing.Candidate
type Project = processing.Project
type ProcessingCandidate = processing.ProcessingCandidate
type ProcessingStepTemplate = processing.ProcessingStepTemplate
type ProcessingCountryStep = processing.ProcessingCountryStep
type ProcessingStep = processing.ProcessingStep
type ProcessingHistory = processing.ProcessingHistory
type CountryDocumentRequirement = processing.CountryDocumentRequirement
type ProcessingDocument = processing.ProcessingDocument
type Requirement = processing.Requirement
type PlanEntry = processing.PlanEntry
type StageSpec = processing.StageSpec

type Reminder = reminders.Reminder
type ReminderSetting = reminders.ReminderSetting
type ReminderSettings = reminders.Settings
type ReminderJobPayload = reminders.JobPayload

// AllModels lists every persisted model in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Candidate{},
		&Project{},
		&ProcessingStepTemplate{},
		&ProcessingCountryStep{},
		&CountryDocumentRequirement{},
		&ProcessingCandidate{},
		&ProcessingStep{},
		&ProcessingHistory{},
		&ProcessingDocument{},
		&Reminder{},
		&ReminderSetting{},
	}
}
