package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/processing-backend/internal/domain/processing"
)

var ProcessingStepAggregateContract = Contract{
	Name:        "Processing.StepAggregate",
	OwnedTables: []string{"processing_candidate", "processing_step", "processing_history"},
	Notes:       "Reminder side effects run after commit in the service layer.",
}

// ProcessingStepAggregate owns the step lifecycle state machine.
//
// Write method failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeInvariantViolation, CodeRetryable, CodeInternal.
type ProcessingStepAggregate interface {
	Aggregate

	// EnsureSteps idempotently materializes the candidate's step plan and auto-activates the first
	// pending step when the candidate is already in progress with nothing active.
	EnsureSteps(ctx context.Context, in EnsureStepsInput) (EnsureStepsResult, error)

	// TransferCandidate creates the processing record for a candidate+project+role (idempotent).
	TransferCandidate(ctx context.Context, in TransferCandidateInput) (TransferCandidateResult, error)

	// StartProcessing moves an assigned processing record to in_progress.
	StartProcessing(ctx context.Context, in StartProcessingInput) (StartProcessingResult, error)

	// SubmitDate records a step's submission date and moves it to in_progress when open.
	SubmitDate(ctx context.Context, in SubmitDateInput) (SubmitDateResult, error)

	// CompleteStep completes a step (guarded) and activates the next pending step or finalizes the candidate.
	CompleteStep(ctx context.Context, in CompleteStepInput) (CompleteStepResult, error)

	// CancelStep cancels a step and cascades cancellation to every open sibling and the candidate.
	CancelStep(ctx context.Context, in CancelStepInput) (CancelStepResult, error)

	// UpdateStep applies a generic patch to a step (status other than completed/cancelled, assignee, due date).
	UpdateStep(ctx context.Context, in UpdateStepInput) (UpdateStepResult, error)
}

type EnsureStepsInput struct {
	ProcessingCandidateID uuid.UUID
	EventAt               time.Time
}

type EnsureStepsResult struct {
	Candidate *processing.ProcessingCandidate
	// Steps are all steps of the candidate ordered by StepOrder.
	Steps []*processing.ProcessingStep
	// Created counts step rows inserted by this call.
	Created int
	// Activated is the step auto-started by this call, if any.
	Activated *processing.ProcessingStep
}

type TransferCandidateInput struct {
	CandidateID              uuid.UUID
	ProjectID                uuid.UUID
	RoleID                   uuid.UUID
	AssignedProcessingUserID *uuid.UUID
	Notes                    string
	ActorID                  *uuid.UUID
	RecruiterID              *uuid.UUID
	EventAt                  time.Time
}

type TransferCandidateResult struct {
	Candidate *processing.ProcessingCandidate
	Created   bool
	Steps     []*processing.ProcessingStep
}

type StartProcessingInput struct {
	ProcessingCandidateID uuid.UUID
	ActorID               *uuid.UUID
	EventAt               time.Time
}

type StartProcessingResult struct {
	Candidate *processing.ProcessingCandidate
	Changed   bool
	Activated *processing.ProcessingStep
}

type SubmitDateInput struct {
	StepID      uuid.UUID
	SubmittedAt time.Time
	ActorID     *uuid.UUID
	EventAt     time.Time
}

type SubmitDateResult struct {
	Step      *processing.ProcessingStep
	Candidate *processing.ProcessingCandidate
	// PreviousSubmittedAt is set when the call overwrote an earlier submission date.
	PreviousSubmittedAt *time.Time
}

type CompleteStepInput struct {
	StepID  uuid.UUID
	ActorID *uuid.UUID
	// OutcomePassed is the stage's business outcome (e.g. medical fitness). Required for
	// stages tagged OutcomeRequired; a negative value cancels the whole processing record.
	OutcomePassed     *bool
	OutcomeNotes      string
	ExternalReference string
	Notes             string
	// Patch carries other field edits; they commit only if the completion does.
	Patch   *StepPatch
	EventAt time.Time
}

type CompleteStepResult struct {
	Step      *processing.ProcessingStep
	Candidate *processing.ProcessingCandidate
	// NextStep is the step activated by this completion, if any.
	NextStep *processing.ProcessingStep
	// AlreadyCompleted is true when the call was a no-op.
	AlreadyCompleted bool
	// Cancelled is true when a negative outcome redirected to the cancel cascade.
	Cancelled bool
	// CancelledStepIDs lists every step of the candidate when Cancelled is true.
	CancelledStepIDs []uuid.UUID
}

type CancelStepInput struct {
	StepID  uuid.UUID
	ActorID *uuid.UUID
	Reason  string
	// Patch carries other field edits applied in the same transaction.
	Patch   *StepPatch
	EventAt time.Time
}

type CancelStepResult struct {
	Step      *processing.ProcessingStep
	Candidate *processing.ProcessingCandidate
	// AlreadyCancelled is true when the call was a no-op.
	AlreadyCancelled bool
	// CascadedCount is the number of open sibling steps force-cancelled.
	CascadedCount int64
	// StepIDs lists every step of the candidate (for reminder cleanup).
	StepIDs []uuid.UUID
}

// StepPatch is a partial update. Nil fields are left unchanged.
type StepPatch struct {
	Status            *string
	AssignedTo        *uuid.UUID
	ClearAssignedTo   bool
	DueDate           *time.Time
	ClearDueDate      bool
	RejectionReason   *string
	Notes             *string
	ExternalReference *string
}

// Empty reports whether the patch changes nothing.
func (p StepPatch) Empty() bool {
	return p.Status == nil && p.AssignedTo == nil && !p.ClearAssignedTo && p.DueDate == nil &&
		!p.ClearDueDate && p.RejectionReason == nil && p.Notes == nil && p.ExternalReference == nil
}

type UpdateStepInput struct {
	StepID  uuid.UUID
	Patch   StepPatch
	ActorID *uuid.UUID
	EventAt time.Time
}

type UpdateStepResult struct {
	Step *processing.ProcessingStep
}
