package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/processing-backend/internal/data/aggregates"
	processingrepo "github.com/yungbote/processing-backend/internal/data/repos/processing"
	types "github.com/yungbote/processing-backend/internal/domain"
	domainagg "github.com/yungbote/processing-backend/internal/domain/aggregates"
	"github.com/yungbote/processing-backend/internal/domain/processing"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

// reminderFanOut bounds concurrent reminder cancellations after a cascade.
const reminderFanOut = 4

type CandidateProcessing struct {
	Candidate *types.ProcessingCandidate `json:"candidate"`
	Steps     []*types.ProcessingStep    `json:"steps"`
}

type StageRequirements struct {
	Stage        processing.StageSpec        `json:"stage"`
	Step         *types.ProcessingStep       `json:"step"`
	CountryCode  string                      `json:"country_code"`
	Requirements []types.Requirement         `json:"requirements"`
	Documents    []*types.ProcessingDocument `json:"documents"`
	Missing      []string                    `json:"missing"`
	// CanComplete considers every requirement of the step, even when the output is filtered.
	CanComplete bool `json:"can_complete"`
}

type UpdateStepRequest struct {
	StepID  uuid.UUID
	Patch   domainagg.StepPatch
	ActorID *uuid.UUID
	// Outcome fields are used when the patch moves the step to completed.
	OutcomePassed *bool
	OutcomeNotes  string
}

type RecordDocumentInput struct {
	StepID   uuid.UUID
	DocType  string
	FileName string
	ActorID  *uuid.UUID
}

type VerifyDocumentInput struct {
	DocumentID uuid.UUID
	Status     string
	Reason     string
	ActorID    *uuid.UUID
}

// ProcessingService is the entry point for the processing lifecycle. State transitions go through the
// step aggregate; reminder side effects run after commit and never fail the transition.
type ProcessingService interface {
	TransferToProcessing(ctx context.Context, in domainagg.TransferCandidateInput) (domainagg.TransferCandidateResult, error)
	StartProcessing(ctx context.Context, processingCandidateID uuid.UUID, actorID *uuid.UUID) (domainagg.StartProcessingResult, error)
	EnsureSteps(ctx context.Context, processingCandidateID uuid.UUID) (domainagg.EnsureStepsResult, error)
	GetCandidateProcessing(ctx context.Context, processingCandidateID uuid.UUID) (*CandidateProcessing, error)
	ListHistory(ctx context.Context, processingCandidateID uuid.UUID, limit int) ([]*types.ProcessingHistory, error)

	SubmitDate(ctx context.Context, in domainagg.SubmitDateInput) (domainagg.SubmitDateResult, error)
	CompleteStep(ctx context.Context, in domainagg.CompleteStepInput) (domainagg.CompleteStepResult, error)
	CancelStep(ctx context.Context, in domainagg.CancelStepInput) (domainagg.CancelStepResult, error)
	UpdateStep(ctx context.Context, in UpdateStepRequest) (*types.ProcessingStep, error)

	ResolveRequirements(ctx context.Context, templateID uuid.UUID, countryCode string) ([]types.Requirement, error)
	GetStageRequirements(ctx context.Context, stepKey string, processingCandidateID uuid.UUID, docType string) (*StageRequirements, error)
	RecordDocument(ctx context.Context, in RecordDocumentInput) (*types.ProcessingDocument, error)
	VerifyDocument(ctx context.Context, in VerifyDocumentInput) (*types.ProcessingDocument, error)
}

type processingService struct {
	db           *gorm.DB
	log          *logger.Logger
	agg          domainagg.ProcessingStepAggregate
	candidates   processingrepo.CandidateRepo
	steps        processingrepo.StepRepo
	history      processingrepo.HistoryRepo
	requirements processingrepo.RequirementRepo
	documents    processingrepo.DocumentRepo
	reminders    ReminderService
	now          func() time.Time
}

func NewProcessingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	agg domainagg.ProcessingStepAggregate,
	candidates processingrepo.CandidateRepo,
	steps processingrepo.StepRepo,
	history processingrepo.HistoryRepo,
	requirements processingrepo.RequirementRepo,
	documents processingrepo.DocumentRepo,
	reminders ReminderService,
) ProcessingService {
	return &processingService{
		db:           db,
		log:          baseLog.With("service", "ProcessingService"),
		agg:          agg,
		candidates:   candidates,
		steps:        steps,
		history:      history,
		requirements: requirements,
		documents:    documents,
		reminders:    reminders,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *processingService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(servicesTracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *processingService) TransferToProcessing(ctx context.Context, in domainagg.TransferCandidateInput) (out domainagg.TransferCandidateResult, err error) {
	ctx, span := s.startSpan(ctx, "processing.transfer", attribute.String("candidate_id", in.CandidateID.String()))
	defer func() { endSpan(span, err) }()
	out, err = s.agg.TransferCandidate(ctx, in)
	if err == nil && out.Created {
		s.log.Info("Candidate transferred to processing", "processing_candidate_id", out.Candidate.ID, "steps", len(out.Steps))
	}
	return out, err
}

func (s *processingService) StartProcessing(ctx context.Context, processingCandidateID uuid.UUID, actorID *uuid.UUID) (out domainagg.StartProcessingResult, err error) {
	ctx, span := s.startSpan(ctx, "processing.start", attribute.String("processing_candidate_id", processingCandidateID.String()))
	defer func() { endSpan(span, err) }()
	return s.agg.StartProcessing(ctx, domainagg.StartProcessingInput{
		ProcessingCandidateID: processingCandidateID,
		ActorID:               actorID,
	})
}

func (s *processingService) EnsureSteps(ctx context.Context, processingCandidateID uuid.UUID) (domainagg.EnsureStepsResult, error) {
	return s.agg.EnsureSteps(ctx, domainagg.EnsureStepsInput{ProcessingCandidateID: processingCandidateID})
}

// GetCandidateProcessing materializes missing steps before reading. Only a missing candidate fails
// the read; any other materialization error falls back to the stored steps.
func (s *processingService) GetCandidateProcessing(ctx context.Context, processingCandidateID uuid.UUID) (*CandidateProcessing, error) {
	const op = "processing.get"
	res, err := s.EnsureSteps(ctx, processingCandidateID)
	if err == nil {
		return &CandidateProcessing{Candidate: res.Candidate, Steps: res.Steps}, nil
	}
	if domainagg.IsCode(err, domainagg.CodeNotFound) || domainagg.IsCode(err, domainagg.CodeValidation) {
		return nil, err
	}
	s.log.Warn("Ensure steps failed; serving stored steps", "processing_candidate_id", processingCandidateID, "error", err)

	dbc := dbctx.Context{Ctx: ctx}
	pc, err := s.candidates.GetByID(dbc, processingCandidateID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if pc == nil {
		return nil, domainagg.NotFound(op, "processing candidate")
	}
	steps, err := s.steps.ListByCandidate(dbc, pc.ID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return &CandidateProcessing{Candidate: pc, Steps: steps}, nil
}

func (s *processingService) ListHistory(ctx context.Context, processingCandidateID uuid.UUID, limit int) ([]*types.ProcessingHistory, error) {
	const op = "processing.list_history"
	dbc := dbctx.Context{Ctx: ctx}
	pc, err := s.candidates.GetByID(dbc, processingCandidateID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if pc == nil {
		return nil, domainagg.NotFound(op, "processing candidate")
	}
	rows, err := s.history.ListByCandidate(dbc, pc.ID, limit)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return rows, nil
}

func (s *processingService) SubmitDate(ctx context.Context, in domainagg.SubmitDateInput) (out domainagg.SubmitDateResult, err error) {
	ctx, span := s.startSpan(ctx, "processing.submit_date", attribute.String("step_id", in.StepID.String()))
	defer func() { endSpan(span, err) }()

	out, err = s.agg.SubmitDate(ctx, in)
	if err != nil {
		return out, err
	}
	step := out.Step
	if step == nil || processing.ReminderFamilyForStage(step.Key()) == "" || processing.IsTerminalStepStatus(step.Status) {
		return out, nil
	}
	submittedAt := in.SubmittedAt.UTC()
	if _, rerr := s.reminders.CreateOrReset(ctx, ReminderScheduleInput{
		StepID:                step.ID,
		ProcessingCandidateID: step.ProcessingCandidateID,
		AssignedTo:            step.AssignedTo,
		SubmittedAt:           &submittedAt,
	}); rerr != nil {
		s.log.Warn("Schedule reminder after submission failed", "step_id", step.ID, "step_key", step.Key(), "error", rerr)
	}
	return out, nil
}

func (s *processingService) CompleteStep(ctx context.Context, in domainagg.CompleteStepInput) (out domainagg.CompleteStepResult, err error) {
	ctx, span := s.startSpan(ctx, "processing.complete_step", attribute.String("step_id", in.StepID.String()))
	defer func() { endSpan(span, err) }()

	out, err = s.agg.CompleteStep(ctx, in)
	if err != nil {
		return out, err
	}
	switch {
	case out.AlreadyCompleted:
	case out.Cancelled:
		s.cancelReminders(ctx, out.CancelledStepIDs)
	default:
		s.cancelReminders(ctx, []uuid.UUID{out.Step.ID})
	}
	return out, nil
}

func (s *processingService) CancelStep(ctx context.Context, in domainagg.CancelStepInput) (out domainagg.CancelStepResult, err error) {
	ctx, span := s.startSpan(ctx, "processing.cancel_step", attribute.String("step_id", in.StepID.String()))
	defer func() { endSpan(span, err) }()

	out, err = s.agg.CancelStep(ctx, in)
	if err != nil {
		return out, err
	}
	if !out.AlreadyCancelled {
		s.cancelReminders(ctx, out.StepIDs)
	}
	return out, nil
}

// cancelReminders completes the reminders of every step. Failures are logged per step.
func (s *processingService) cancelReminders(ctx context.Context, stepIDs []uuid.UUID) {
	if s.reminders == nil || len(stepIDs) == 0 {
		return
	}
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(reminderFanOut)
	for _, id := range stepIDs {
		id := id
		g.Go(func() error {
			if _, err := s.reminders.CancelForStep(ctx, id); err != nil {
				failed.Add(1)
				s.log.Warn("Cancel step reminders failed", "step_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if n := failed.Load(); n > 0 {
		s.log.Warn("Some step reminders were not cancelled", "failed", n, "steps", len(stepIDs))
	}
}

// UpdateStep applies a generic patch. A patch to completed or cancelled runs the matching transition
// with the other fields applied in the same transaction.
func (s *processingService) UpdateStep(ctx context.Context, in UpdateStepRequest) (step *types.ProcessingStep, err error) {
	const op = "processing.update_step"
	ctx, span := s.startSpan(ctx, op, attribute.String("step_id", in.StepID.String()))
	defer func() { endSpan(span, err) }()

	target := ""
	if in.Patch.Status != nil {
		target = strings.ToLower(strings.TrimSpace(*in.Patch.Status))
	}
	if target != types.StepStatusCompleted && target != types.StepStatusCancelled {
		res, err := s.agg.UpdateStep(ctx, domainagg.UpdateStepInput{StepID: in.StepID, Patch: in.Patch, ActorID: in.ActorID})
		if err != nil {
			return nil, err
		}
		return res.Step, nil
	}

	rest := in.Patch
	rest.Status = nil
	if target == types.StepStatusCancelled {
		// The reason is written by the cancel transition.
		rest.RejectionReason = nil
	}
	var patch *domainagg.StepPatch
	if !rest.Empty() {
		patch = &rest
	}

	if target == types.StepStatusCancelled {
		reason := ""
		if in.Patch.RejectionReason != nil {
			reason = *in.Patch.RejectionReason
		}
		res, err := s.CancelStep(ctx, domainagg.CancelStepInput{StepID: in.StepID, ActorID: in.ActorID, Reason: reason, Patch: patch})
		if err != nil {
			return nil, err
		}
		return res.Step, nil
	}
	res, err := s.CompleteStep(ctx, domainagg.CompleteStepInput{
		StepID:        in.StepID,
		ActorID:       in.ActorID,
		OutcomePassed: in.OutcomePassed,
		OutcomeNotes:  in.OutcomeNotes,
		Patch:         patch,
	})
	if err != nil {
		return nil, err
	}
	return res.Step, nil
}

func (s *processingService) ResolveRequirements(ctx context.Context, templateID uuid.UUID, countryCode string) ([]types.Requirement, error) {
	const op = "processing.resolve_requirements"
	if templateID == uuid.Nil {
		return nil, domainagg.Validation(op, "template id is required")
	}
	rows, err := s.requirements.ListForTemplate(dbctx.Context{Ctx: ctx}, templateID, countryCode)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return processing.MergeRequirements(rows), nil
}

func (s *processingService) GetStageRequirements(ctx context.Context, stepKey string, processingCandidateID uuid.UUID, docType string) (*StageRequirements, error) {
	const op = "processing.stage_requirements"
	stepKey = strings.ToLower(strings.TrimSpace(stepKey))
	docType = strings.TrimSpace(docType)
	if stepKey == "" {
		return nil, domainagg.Validation(op, "step key is required", "stepKey")
	}
	dbc := dbctx.Context{Ctx: ctx}
	pc, err := s.candidates.GetByID(dbc, processingCandidateID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if pc == nil {
		return nil, domainagg.NotFound(op, "processing candidate")
	}
	step, err := s.steps.GetByCandidateAndKey(dbc, pc.ID, stepKey)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if step == nil {
		return nil, domainagg.NotFound(op, "processing step "+stepKey)
	}
	country, err := s.candidates.ResolveCountry(dbc, pc)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	reqs, err := s.ResolveRequirements(ctx, step.TemplateID, country)
	if err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByStep(dbc, step.ID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}

	out := &StageRequirements{
		Stage:        processing.LookupStage(stepKey),
		Step:         step,
		CountryCode:  country,
		Requirements: reqs,
		Documents:    docs,
		Missing:      processing.MissingDocTypes(reqs, docs),
	}
	out.CanComplete = !processing.IsTerminalStepStatus(step.Status) &&
		(!out.Stage.DocumentGated || len(out.Missing) == 0)

	if docType != "" {
		out.Requirements = filterRequirements(reqs, docType)
		out.Documents = filterDocuments(docs, docType)
		out.Missing = processing.MissingDocTypes(out.Requirements, out.Documents)
	}
	return out, nil
}

func filterRequirements(reqs []types.Requirement, docType string) []types.Requirement {
	out := []types.Requirement{}
	for _, r := range reqs {
		if r.DocType == docType {
			out = append(out, r)
		}
	}
	return out
}

func filterDocuments(docs []*types.ProcessingDocument, docType string) []*types.ProcessingDocument {
	out := []*types.ProcessingDocument{}
	for _, d := range docs {
		if d != nil && d.DocType == docType {
			out = append(out, d)
		}
	}
	return out
}

func (s *processingService) RecordDocument(ctx context.Context, in RecordDocumentInput) (*types.ProcessingDocument, error) {
	const op = "processing.record_document"
	docType := strings.TrimSpace(in.DocType)
	if in.StepID == uuid.Nil {
		return nil, domainagg.Validation(op, "step id is required")
	}
	if docType == "" {
		return nil, domainagg.Validation(op, "document type is required", "docType")
	}
	at := s.now()
	var doc *types.ProcessingDocument
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		step, err := s.steps.GetByID(dbc, in.StepID)
		if err != nil {
			return err
		}
		if step == nil {
			return domainagg.NotFound(op, "processing step")
		}
		if step.Status == types.StepStatusCompleted || step.Status == types.StepStatusCancelled {
			return domainagg.NewError(domainagg.CodeInvariantViolation, op, "documents cannot be attached to a "+step.Status+" step", nil)
		}
		doc = &types.ProcessingDocument{
			ProcessingStepID:      step.ID,
			ProcessingCandidateID: step.ProcessingCandidateID,
			DocType:               docType,
			FileName:              strings.TrimSpace(in.FileName),
			Status:                types.DocumentStatusPending,
			UploadedBy:            in.ActorID,
			CreatedAt:             at,
			UpdatedAt:             at,
		}
		if err := s.documents.Create(dbc, doc); err != nil {
			return err
		}
		return s.history.Create(dbc, documentHistory(step, doc, in.ActorID, "document "+docType+" received", at))
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return doc, nil
}

func (s *processingService) VerifyDocument(ctx context.Context, in VerifyDocumentInput) (*types.ProcessingDocument, error) {
	const op = "processing.verify_document"
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if in.DocumentID == uuid.Nil {
		return nil, domainagg.Validation(op, "document id is required")
	}
	if !processing.IsValidDocumentStatus(status) {
		return nil, domainagg.Validation(op, "unknown document status "+status, "status")
	}
	reason := strings.TrimSpace(in.Reason)
	if status == types.DocumentStatusRejected && reason == "" {
		return nil, domainagg.Validation(op, "a rejection reason is required", "reason")
	}
	at := s.now()
	var doc *types.ProcessingDocument
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		cur, err := s.documents.GetByID(dbc, in.DocumentID)
		if err != nil {
			return err
		}
		if cur == nil {
			return domainagg.NotFound(op, "document")
		}
		step, err := s.steps.GetByID(dbc, cur.ProcessingStepID)
		if err != nil {
			return err
		}
		if step == nil {
			return domainagg.NotFound(op, "processing step")
		}

		updates := map[string]interface{}{
			"status":           status,
			"rejection_reason": "",
			"verified_by":      nil,
			"verified_at":      nil,
			"updated_at":       at,
		}
		switch status {
		case types.DocumentStatusVerified:
			if in.ActorID != nil {
				updates["verified_by"] = *in.ActorID
			}
			updates["verified_at"] = at
		case types.DocumentStatusRejected:
			updates["rejection_reason"] = reason
		}
		if err := s.documents.UpdateFields(dbc, cur.ID, updates); err != nil {
			return err
		}
		note := fmt.Sprintf("document %s %s", cur.DocType, status)
		if reason != "" {
			note += ": " + reason
		}
		if err := s.history.Create(dbc, documentHistory(step, cur, in.ActorID, note, at)); err != nil {
			return err
		}
		doc, err = s.documents.GetByID(dbc, cur.ID)
		return err
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return doc, nil
}

// documentHistory records a document event against the step, keeping the step's status.
func documentHistory(step *types.ProcessingStep, doc *types.ProcessingDocument, actorID *uuid.UUID, note string, at time.Time) *types.ProcessingHistory {
	stepID := step.ID
	row := &types.ProcessingHistory{
		ProcessingCandidateID: step.ProcessingCandidateID,
		ProcessingStepID:      &stepID,
		StepKey:               step.Key(),
		Status:                step.Status,
		ActorID:               actorID,
		Notes:                 note,
		CreatedAt:             at,
	}
	if b, err := json.Marshal(map[string]any{"document_id": doc.ID, "doc_type": doc.DocType}); err == nil {
		row.Metadata = datatypes.JSON(b)
	}
	return row
}
