package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	processingrepo "github.com/yungbote/processing-backend/internal/data/repos/processing"
	types "github.com/yungbote/processing-backend/internal/domain"
	domainagg "github.com/yungbote/processing-backend/internal/domain/aggregates"
	"github.com/yungbote/processing-backend/internal/domain/processing"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
)

const (
	transitionStep      = "step"
	transitionCandidate = "candidate"
)

type ProcessingStepDeps struct {
	Base         BaseDeps
	Candidates   processingrepo.CandidateRepo
	Templates    processingrepo.TemplateRepo
	Steps        processingrepo.StepRepo
	History      processingrepo.HistoryRepo
	Requirements processingrepo.RequirementRepo
	Documents    processingrepo.DocumentRepo
}

type processingStepAggregate struct {
	deps ProcessingStepDeps
}

func NewProcessingStepAggregate(deps ProcessingStepDeps) domainagg.ProcessingStepAggregate {
	deps.Base = deps.Base.withDefaults()
	deps.Base.Log = deps.Base.Log.With("aggregate", "ProcessingStepAggregate")
	return &processingStepAggregate{deps: deps}
}

func (a *processingStepAggregate) Contract() domainagg.Contract {
	return domainagg.ProcessingStepAggregateContract
}

func (a *processingStepAggregate) EnsureSteps(ctx context.Context, in domainagg.EnsureStepsInput) (domainagg.EnsureStepsResult, error) {
	const op = "processing.ensure_steps"
	out := domainagg.EnsureStepsResult{}
	if in.ProcessingCandidateID == uuid.Nil {
		return out, domainagg.Validation(op, "processing candidate id is required")
	}
	at := a.deps.Base.eventTime(in.EventAt)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		pc, err := a.deps.Candidates.GetByIDForUpdate(dbc, in.ProcessingCandidateID)
		if err != nil {
			return err
		}
		if pc == nil {
			return domainagg.NotFound(op, "processing candidate")
		}
		res, err := a.ensureStepsTx(dbc, pc, nil, at)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return domainagg.EnsureStepsResult{}, err
	}
	return out, nil
}

func (a *processingStepAggregate) TransferCandidate(ctx context.Context, in domainagg.TransferCandidateInput) (domainagg.TransferCandidateResult, error) {
	const op = "processing.transfer_candidate"
	out := domainagg.TransferCandidateResult{}
	if in.CandidateID == uuid.Nil || in.ProjectID == uuid.Nil || in.RoleID == uuid.Nil {
		return out, domainagg.Validation(op, "candidate, project and role are required")
	}
	at := a.deps.Base.eventTime(in.EventAt)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		existing, err := a.deps.Candidates.GetByAssignment(dbc, in.CandidateID, in.ProjectID, in.RoleID)
		if err != nil {
			return err
		}
		pc := existing
		if pc == nil {
			pc = &types.ProcessingCandidate{
				CandidateID:              in.CandidateID,
				ProjectID:                in.ProjectID,
				RoleID:                   in.RoleID,
				AssignedProcessingUserID: in.AssignedProcessingUserID,
				ProcessingStatus:         types.CandidateStatusAssigned,
				Notes:                    strings.TrimSpace(in.Notes),
				CreatedAt:                at,
				UpdatedAt:                at,
			}
			if err := a.deps.Candidates.Create(dbc, pc); err != nil {
				return err
			}
			row := newHistory(pc.ID, nil, types.CandidateStatusAssigned, in.ActorID, "transferred to processing", at, nil)
			row.RecruiterID = in.RecruiterID
			if err := a.deps.History.Create(dbc, row); err != nil {
				return err
			}
			out.Created = true
		}
		res, err := a.ensureStepsTx(dbc, pc, in.ActorID, at)
		if err != nil {
			return err
		}
		out.Candidate = res.Candidate
		out.Steps = res.Steps
		return nil
	})
	if err != nil {
		return domainagg.TransferCandidateResult{}, err
	}
	if out.Created {
		a.deps.Base.Hooks.IncTransition(transitionCandidate, types.CandidateStatusAssigned)
	}
	return out, nil
}

func (a *processingStepAggregate) StartProcessing(ctx context.Context, in domainagg.StartProcessingInput) (domainagg.StartProcessingResult, error) {
	const op = "processing.start"
	out := domainagg.StartProcessingResult{}
	if in.ProcessingCandidateID == uuid.Nil {
		return out, domainagg.Validation(op, "processing candidate id is required")
	}
	at := a.deps.Base.eventTime(in.EventAt)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		pc, err := a.deps.Candidates.GetByIDForUpdate(dbc, in.ProcessingCandidateID)
		if err != nil {
			return err
		}
		if pc == nil {
			return domainagg.NotFound(op, "processing candidate")
		}
		if err := RequireStatusAllowed(pc.ProcessingStatus, types.CandidateStatusAssigned, types.CandidateStatusInProgress); err != nil {
			return err
		}
		if pc.ProcessingStatus == types.CandidateStatusAssigned {
			if err := a.deps.Candidates.UpdateFields(dbc, pc.ID, map[string]interface{}{
				"processing_status": types.CandidateStatusInProgress,
				"updated_at":        at,
			}); err != nil {
				return err
			}
			if err := a.deps.History.Create(dbc, newHistory(pc.ID, nil, types.CandidateStatusInProgress, in.ActorID, "processing started", at, nil)); err != nil {
				return err
			}
			pc.ProcessingStatus = types.CandidateStatusInProgress
			out.Changed = true
		}
		res, err := a.ensureStepsTx(dbc, pc, in.ActorID, at)
		if err != nil {
			return err
		}
		out.Candidate = res.Candidate
		out.Activated = res.Activated
		return nil
	})
	if err != nil {
		return domainagg.StartProcessingResult{}, err
	}
	if out.Changed {
		a.deps.Base.Hooks.IncTransition(transitionCandidate, types.CandidateStatusInProgress)
	}
	return out, nil
}

func (a *processingStepAggregate) SubmitDate(ctx context.Context, in domainagg.SubmitDateInput) (domainagg.SubmitDateResult, error) {
	const op = "processing.submit_date"
	out := domainagg.SubmitDateResult{}
	if in.StepID == uuid.Nil {
		return out, domainagg.Validation(op, "step id is required")
	}
	if in.SubmittedAt.IsZero() {
		return out, domainagg.Validation(op, "submitted date is required", "submittedAt")
	}
	at := a.deps.Base.eventTime(in.EventAt)
	submittedAt := in.SubmittedAt.UTC()

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		pc, step, err := a.lockStep(dbc, op, in.StepID)
		if err != nil {
			return err
		}
		if step.SubmittedAt != nil {
			prev := *step.SubmittedAt
			out.PreviousSubmittedAt = &prev
		}

		updates := map[string]interface{}{
			"submitted_at": submittedAt,
			"updated_at":   at,
		}
		status := step.Status
		if !processing.IsTerminalStepStatus(status) {
			status = types.StepStatusInProgress
			updates["status"] = status
			if step.StartedAt == nil {
				updates["started_at"] = at
			}
		}
		if err := a.deps.Steps.UpdateFields(dbc, step.ID, updates); err != nil {
			return err
		}
		row := newHistory(pc.ID, step, status, in.ActorID,
			"submitted on "+submittedAt.Format("2006-01-02"), at,
			map[string]any{"submitted_at": submittedAt})
		if err := a.deps.History.Create(dbc, row); err != nil {
			return err
		}
		if status == types.StepStatusInProgress && pc.ProcessingStatus == types.CandidateStatusInProgress && pc.CurrentStepKey != step.Key() {
			if err := a.deps.Candidates.UpdateFields(dbc, pc.ID, map[string]interface{}{"current_step_key": step.Key(), "updated_at": at}); err != nil {
				return err
			}
		}

		if out.Step, err = a.deps.Steps.GetByID(dbc, step.ID); err != nil {
			return err
		}
		out.Candidate, err = a.deps.Candidates.GetByID(dbc, pc.ID)
		return err
	})
	if err != nil {
		return domainagg.SubmitDateResult{}, err
	}
	return out, nil
}

func (a *processingStepAggregate) CompleteStep(ctx context.Context, in domainagg.CompleteStepInput) (domainagg.CompleteStepResult, error) {
	const op = "processing.complete_step"
	out := domainagg.CompleteStepResult{}
	if in.StepID == uuid.Nil {
		return out, domainagg.Validation(op, "step id is required")
	}
	at := a.deps.Base.eventTime(in.EventAt)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		pc, step, err := a.lockStep(dbc, op, in.StepID)
		if err != nil {
			return err
		}
		out.Step, out.Candidate = step, pc

		if step.Status == types.StepStatusCompleted {
			out.AlreadyCompleted = true
			if in.Patch == nil {
				return nil
			}
			if err := a.applyPatchTx(dbc, pc, step, in.Patch, in.ActorID, at); err != nil {
				return err
			}
			out.Step, err = a.deps.Steps.GetByID(dbc, step.ID)
			return err
		}
		if err := RequireStatusAllowed(step.Status, processing.OpenStepStatuses...); err != nil {
			return err
		}

		stage := processing.LookupStage(step.Key())
		if stage.OutcomeRequired && in.OutcomePassed == nil {
			return domainagg.Validation(op, "outcome is required to complete "+stageName(stage), "outcomePassed")
		}

		if in.OutcomePassed != nil && !*in.OutcomePassed {
			if err := a.applyPatchTx(dbc, pc, step, in.Patch, in.ActorID, at); err != nil {
				return err
			}
			outcome := map[string]interface{}{
				"outcome_passed": false,
				"outcome_notes":  strings.TrimSpace(in.OutcomeNotes),
				"updated_at":     at,
			}
			if ref := strings.TrimSpace(in.ExternalReference); ref != "" {
				outcome["external_reference"] = ref
			}
			if err := a.deps.Steps.UpdateFields(dbc, step.ID, outcome); err != nil {
				return err
			}
			reason := strings.TrimSpace(in.OutcomeNotes)
			if reason == "" {
				reason = stageName(stage) + " outcome failed"
			}
			res, err := a.cancelTx(dbc, pc, step, in.ActorID, reason, at)
			if err != nil {
				return err
			}
			out.Step, out.Candidate = res.Step, res.Candidate
			out.Cancelled = true
			out.CancelledStepIDs = res.StepIDs
			return nil
		}

		if stage.DocumentGated {
			missing, err := a.missingDocuments(dbc, pc, step)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return domainagg.Validation(op, "missing mandatory documents: "+strings.Join(missing, ", "), missing...)
			}
		}
		if err := a.applyPatchTx(dbc, pc, step, in.Patch, in.ActorID, at); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":       types.StepStatusCompleted,
			"completed_at": at,
			"updated_at":   at,
		}
		if step.StartedAt == nil {
			updates["started_at"] = at
		}
		if in.OutcomePassed != nil {
			updates["outcome_passed"] = true
			updates["outcome_notes"] = strings.TrimSpace(in.OutcomeNotes)
		}
		if ref := strings.TrimSpace(in.ExternalReference); ref != "" {
			updates["external_reference"] = ref
		}
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			updates["notes"] = notes
		}
		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, types.ProcessingStep{}.TableName(), "status", step.ID, processing.OpenStepStatuses, updates)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "step changed concurrently"); err != nil {
			return err
		}
		if err := a.deps.History.Create(dbc, newHistory(pc.ID, step, types.StepStatusCompleted, in.ActorID, in.Notes, at, nil)); err != nil {
			return err
		}

		next, err := a.deps.Steps.FirstByStatus(dbc, pc.ID, types.StepStatusPending)
		if err != nil {
			return err
		}
		if next != nil {
			if err := a.activateTx(dbc, pc, next, in.ActorID, at); err != nil {
				return err
			}
			if out.NextStep, err = a.deps.Steps.GetByID(dbc, next.ID); err != nil {
				return err
			}
		} else {
			if err := a.deps.Candidates.UpdateFields(dbc, pc.ID, map[string]interface{}{
				"processing_status": types.CandidateStatusCompleted,
				"current_step_key":  types.CurrentStepCompleted,
				"updated_at":        at,
			}); err != nil {
				return err
			}
			if err := a.deps.History.Create(dbc, newHistory(pc.ID, nil, types.CandidateStatusCompleted, in.ActorID, "all processing steps completed", at, nil)); err != nil {
				return err
			}
		}

		if out.Step, err = a.deps.Steps.GetByID(dbc, step.ID); err != nil {
			return err
		}
		out.Candidate, err = a.deps.Candidates.GetByID(dbc, pc.ID)
		return err
	})
	if err != nil {
		return domainagg.CompleteStepResult{}, err
	}
	switch {
	case out.AlreadyCompleted:
	case out.Cancelled:
		a.deps.Base.Hooks.IncTransition(transitionStep, types.StepStatusCancelled)
		a.deps.Base.Hooks.IncTransition(transitionCandidate, types.CandidateStatusCancelled)
	default:
		a.deps.Base.Hooks.IncTransition(transitionStep, types.StepStatusCompleted)
		if out.NextStep == nil {
			a.deps.Base.Hooks.IncTransition(transitionCandidate, types.CandidateStatusCompleted)
		} else {
			a.deps.Base.Hooks.IncTransition(transitionStep, types.StepStatusInProgress)
		}
	}
	return out, nil
}

func (a *processingStepAggregate) CancelStep(ctx context.Context, in domainagg.CancelStepInput) (domainagg.CancelStepResult, error) {
	const op = "processing.cancel_step"
	out := domainagg.CancelStepResult{}
	if in.StepID == uuid.Nil {
		return out, domainagg.Validation(op, "step id is required")
	}
	at := a.deps.Base.eventTime(in.EventAt)
	reason := strings.TrimSpace(in.Reason)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		pc, step, err := a.lockStep(dbc, op, in.StepID)
		if err != nil {
			return err
		}
		if err := a.applyPatchTx(dbc, pc, step, in.Patch, in.ActorID, at); err != nil {
			return err
		}
		if step.Status == types.StepStatusCancelled {
			out.Candidate = pc
			out.AlreadyCancelled = true
			out.Step, err = a.deps.Steps.GetByID(dbc, step.ID)
			return err
		}
		res, err := a.cancelTx(dbc, pc, step, in.ActorID, reason, at)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return domainagg.CancelStepResult{}, err
	}
	if !out.AlreadyCancelled {
		a.deps.Base.Hooks.IncTransition(transitionStep, types.StepStatusCancelled)
		a.deps.Base.Hooks.IncTransition(transitionCandidate, types.CandidateStatusCancelled)
	}
	return out, nil
}

func (a *processingStepAggregate) UpdateStep(ctx context.Context, in domainagg.UpdateStepInput) (domainagg.UpdateStepResult, error) {
	const op = "processing.update_step"
	out := domainagg.UpdateStepResult{}
	if in.StepID == uuid.Nil {
		return out, domainagg.Validation(op, "step id is required")
	}
	if in.Patch.Empty() {
		return out, domainagg.Validation(op, "patch is empty")
	}
	if in.Patch.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*in.Patch.Status))
		if !processing.IsValidStepStatus(status) {
			return out, domainagg.Validation(op, "unknown step status "+status, "status")
		}
		if status == types.StepStatusCompleted || status == types.StepStatusCancelled {
			return out, domainagg.Validation(op, "status "+status+" must go through its dedicated transition", "status")
		}
		in.Patch.Status = &status
	}
	at := a.deps.Base.eventTime(in.EventAt)

	changedStatus := ""
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		pc, step, err := a.lockStep(dbc, op, in.StepID)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"updated_at": at}
		meta := map[string]any{}
		status := step.Status

		if p := in.Patch.Status; p != nil && *p != step.Status {
			if err := RequireStatusAllowed(step.Status, types.StepStatusPending, types.StepStatusInProgress, types.StepStatusRejected); err != nil {
				return err
			}
			status = *p
			updates["status"] = status
			meta["status"] = map[string]string{"from": step.Status, "to": status}
			if status == types.StepStatusInProgress && step.StartedAt == nil {
				updates["started_at"] = at
			}
			changedStatus = status
		}
		patchFields(in.Patch, updates, meta)

		if err := a.deps.Steps.UpdateFields(dbc, step.ID, updates); err != nil {
			return err
		}
		if err := a.deps.History.Create(dbc, newHistory(pc.ID, step, status, in.ActorID, patchNote(in.Patch), at, map[string]any{"patch": meta})); err != nil {
			return err
		}
		if changedStatus == types.StepStatusInProgress && pc.ProcessingStatus == types.CandidateStatusInProgress {
			if err := a.deps.Candidates.UpdateFields(dbc, pc.ID, map[string]interface{}{"current_step_key": step.Key(), "updated_at": at}); err != nil {
				return err
			}
		}
		out.Step, err = a.deps.Steps.GetByID(dbc, step.ID)
		return err
	})
	if err != nil {
		return domainagg.UpdateStepResult{}, err
	}
	if changedStatus != "" {
		a.deps.Base.Hooks.IncTransition(transitionStep, changedStatus)
	}
	return out, nil
}

// applyPatchTx writes the non-status fields of p to step and appends one history row. It runs
// inside the transition that carries the patch so both commit or roll back together.
func (a *processingStepAggregate) applyPatchTx(dbc dbctx.Context, pc *types.ProcessingCandidate, step *types.ProcessingStep, p *domainagg.StepPatch, actorID *uuid.UUID, at time.Time) error {
	if p == nil {
		return nil
	}
	rest := *p
	rest.Status = nil
	if rest.Empty() {
		return nil
	}
	updates := map[string]interface{}{"updated_at": at}
	meta := map[string]any{}
	patchFields(rest, updates, meta)
	if err := a.deps.Steps.UpdateFields(dbc, step.ID, updates); err != nil {
		return err
	}
	return a.deps.History.Create(dbc, newHistory(pc.ID, step, step.Status, actorID, patchNote(rest), at, map[string]any{"patch": meta}))
}

func patchFields(p domainagg.StepPatch, updates map[string]interface{}, meta map[string]any) {
	switch {
	case p.ClearAssignedTo:
		updates["assigned_to"] = nil
		meta["assigned_to"] = nil
	case p.AssignedTo != nil:
		updates["assigned_to"] = *p.AssignedTo
		meta["assigned_to"] = p.AssignedTo.String()
	}
	switch {
	case p.ClearDueDate:
		updates["due_date"] = nil
		meta["due_date"] = nil
	case p.DueDate != nil:
		updates["due_date"] = p.DueDate.UTC()
		meta["due_date"] = p.DueDate.UTC()
	}
	if v := p.RejectionReason; v != nil {
		updates["rejection_reason"] = strings.TrimSpace(*v)
		meta["rejection_reason"] = strings.TrimSpace(*v)
	}
	if v := p.Notes; v != nil {
		updates["notes"] = strings.TrimSpace(*v)
		meta["notes"] = strings.TrimSpace(*v)
	}
	if v := p.ExternalReference; v != nil {
		updates["external_reference"] = strings.TrimSpace(*v)
		meta["external_reference"] = strings.TrimSpace(*v)
	}
}

func patchNote(p domainagg.StepPatch) string {
	if p.Notes != nil && strings.TrimSpace(*p.Notes) != "" {
		return strings.TrimSpace(*p.Notes)
	}
	return "step updated"
}

// lockStep loads the step, row-locks its processing candidate and re-reads the step under that lock.
func (a *processingStepAggregate) lockStep(dbc dbctx.Context, op string, stepID uuid.UUID) (*types.ProcessingCandidate, *types.ProcessingStep, error) {
	step, err := a.deps.Steps.GetByID(dbc, stepID)
	if err != nil {
		return nil, nil, err
	}
	if step == nil {
		return nil, nil, domainagg.NotFound(op, "processing step")
	}
	pc, err := a.deps.Candidates.GetByIDForUpdate(dbc, step.ProcessingCandidateID)
	if err != nil {
		return nil, nil, err
	}
	if pc == nil {
		return nil, nil, domainagg.NotFound(op, "processing candidate")
	}
	step, err = a.deps.Steps.GetByID(dbc, stepID)
	if err != nil {
		return nil, nil, err
	}
	if step == nil {
		return nil, nil, domainagg.NotFound(op, "processing step")
	}
	return pc, step, nil
}

func (a *processingStepAggregate) ensureStepsTx(dbc dbctx.Context, pc *types.ProcessingCandidate, actorID *uuid.UUID, at time.Time) (domainagg.EnsureStepsResult, error) {
	out := domainagg.EnsureStepsResult{}
	country, err := a.deps.Candidates.ResolveCountry(dbc, pc)
	if err != nil {
		return out, err
	}
	plan, err := a.resolvePlan(dbc, country)
	if err != nil {
		return out, err
	}
	for _, entry := range plan {
		created, err := a.deps.Steps.CreateIfAbsent(dbc, &types.ProcessingStep{
			ProcessingCandidateID: pc.ID,
			TemplateID:            entry.Template.ID,
			StepOrder:             entry.Order,
			Status:                types.StepStatusPending,
			CreatedAt:             at,
			UpdatedAt:             at,
		})
		if err != nil {
			return out, err
		}
		if created {
			out.Created++
		}
	}

	// Work only starts once an operator moved the candidate to in_progress.
	if pc.ProcessingStatus == types.CandidateStatusInProgress {
		active, err := a.deps.Steps.CountByStatus(dbc, pc.ID, types.StepStatusInProgress)
		if err != nil {
			return out, err
		}
		if active == 0 {
			first, err := a.deps.Steps.FirstByStatus(dbc, pc.ID, types.StepStatusPending)
			if err != nil {
				return out, err
			}
			if first != nil {
				if err := a.activateTx(dbc, pc, first, actorID, at); err != nil {
					return out, err
				}
				out.Activated = first
			}
		}
	}

	if out.Steps, err = a.deps.Steps.ListByCandidate(dbc, pc.ID); err != nil {
		return out, err
	}
	if out.Activated != nil {
		for _, s := range out.Steps {
			if s.ID == out.Activated.ID {
				out.Activated = s
			}
		}
	}
	out.Candidate, err = a.deps.Candidates.GetByID(dbc, pc.ID)
	return out, err
}

// resolvePlan returns the country plan, or the full catalog in default order when the country has none.
func (a *processingStepAggregate) resolvePlan(dbc dbctx.Context, country string) ([]*types.PlanEntry, error) {
	plan, err := a.deps.Templates.ListCountryPlan(dbc, country)
	if err != nil {
		return nil, err
	}
	if len(plan) > 0 {
		return plan, nil
	}
	catalog, err := a.deps.Templates.ListCatalog(dbc)
	if err != nil {
		return nil, err
	}
	plan = make([]*types.PlanEntry, 0, len(catalog))
	for _, t := range catalog {
		plan = append(plan, &types.PlanEntry{Template: t, Order: t.DefaultOrder})
	}
	return plan, nil
}

func (a *processingStepAggregate) activateTx(dbc dbctx.Context, pc *types.ProcessingCandidate, step *types.ProcessingStep, actorID *uuid.UUID, at time.Time) error {
	updates := map[string]interface{}{
		"status":     types.StepStatusInProgress,
		"updated_at": at,
	}
	if step.StartedAt == nil {
		updates["started_at"] = at
	}
	ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, types.ProcessingStep{}.TableName(), "status", step.ID, []string{types.StepStatusPending}, updates)
	if err != nil {
		return err
	}
	if err := RequireCASSuccess(ok, "next step changed concurrently"); err != nil {
		return err
	}
	if err := a.deps.History.Create(dbc, newHistory(pc.ID, step, types.StepStatusInProgress, actorID, "step started", at, nil)); err != nil {
		return err
	}
	candUpdates := map[string]interface{}{
		"current_step_key": step.Key(),
		"updated_at":       at,
	}
	if pc.ProcessingStatus == types.CandidateStatusAssigned {
		candUpdates["processing_status"] = types.CandidateStatusInProgress
	}
	return a.deps.Candidates.UpdateFields(dbc, pc.ID, candUpdates)
}

func (a *processingStepAggregate) cancelTx(dbc dbctx.Context, pc *types.ProcessingCandidate, step *types.ProcessingStep, actorID *uuid.UUID, reason string, at time.Time) (domainagg.CancelStepResult, error) {
	out := domainagg.CancelStepResult{}
	if err := a.deps.Steps.UpdateFields(dbc, step.ID, map[string]interface{}{
		"status":           types.StepStatusCancelled,
		"rejection_reason": reason,
		"updated_at":       at,
	}); err != nil {
		return out, err
	}
	n, err := a.deps.Steps.CancelOpenSiblings(dbc, pc.ID, step.ID, reason, at)
	if err != nil {
		return out, err
	}
	out.CascadedCount = n
	if err := a.deps.Candidates.UpdateFields(dbc, pc.ID, map[string]interface{}{
		"processing_status": types.CandidateStatusCancelled,
		"updated_at":        at,
	}); err != nil {
		return out, err
	}
	if err := a.deps.History.Create(dbc,
		newHistory(pc.ID, step, types.StepStatusCancelled, actorID, reason, at, map[string]any{"cascaded_steps": n}),
		newHistory(pc.ID, nil, types.CandidateStatusCancelled, actorID, overallCancelNote(step, reason), at, nil),
	); err != nil {
		return out, err
	}
	if out.StepIDs, err = a.deps.Steps.ListIDsByCandidate(dbc, pc.ID); err != nil {
		return out, err
	}
	if out.Step, err = a.deps.Steps.GetByID(dbc, step.ID); err != nil {
		return out, err
	}
	out.Candidate, err = a.deps.Candidates.GetByID(dbc, pc.ID)
	return out, err
}

// missingDocuments runs the completion guard: mandatory docTypes of the merged requirements
// with no verified or pending document attached to the step.
func (a *processingStepAggregate) missingDocuments(dbc dbctx.Context, pc *types.ProcessingCandidate, step *types.ProcessingStep) ([]string, error) {
	country, err := a.deps.Candidates.ResolveCountry(dbc, pc)
	if err != nil {
		return nil, err
	}
	rows, err := a.deps.Requirements.ListForTemplate(dbc, step.TemplateID, country)
	if err != nil {
		return nil, err
	}
	docs, err := a.deps.Documents.ListByStep(dbc, step.ID)
	if err != nil {
		return nil, err
	}
	return processing.MissingDocTypes(processing.MergeRequirements(rows), docs), nil
}

func newHistory(processingCandidateID uuid.UUID, step *types.ProcessingStep, status string, actorID *uuid.UUID, notes string, at time.Time, meta map[string]any) *types.ProcessingHistory {
	row := &types.ProcessingHistory{
		ProcessingCandidateID: processingCandidateID,
		Status:                status,
		ActorID:               actorID,
		Notes:                 strings.TrimSpace(notes),
		CreatedAt:             at,
	}
	if step != nil {
		id := step.ID
		row.ProcessingStepID = &id
		row.StepKey = step.Key()
	}
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			row.Metadata = datatypes.JSON(b)
		}
	}
	return row
}

func overallCancelNote(step *types.ProcessingStep, reason string) string {
	note := fmt.Sprintf("processing cancelled at step %s", step.Key())
	if reason != "" {
		note += ": " + reason
	}
	return note
}

func stageName(s processing.StageSpec) string {
	if s.Label != "" {
		return s.Label
	}
	return s.Key
}
