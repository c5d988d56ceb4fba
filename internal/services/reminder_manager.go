package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/processing-backend/internal/data/aggregates"
	processingrepo "github.com/yungbote/processing-backend/internal/data/repos/processing"
	reminderrepo "github.com/yungbote/processing-backend/internal/data/repos/reminders"
	types "github.com/yungbote/processing-backend/internal/domain"
	domainagg "github.com/yungbote/processing-backend/internal/domain/aggregates"
	"github.com/yungbote/processing-backend/internal/domain/processing"
	reminderdomain "github.com/yungbote/processing-backend/internal/domain/reminders"
	schedule "github.com/yungbote/processing-backend/internal/modules/reminders"
	"github.com/yungbote/processing-backend/internal/observability"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/envutil"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/queue"
)

const servicesTracerName = "processing-backend/services"

const (
	defaultMinePageSize = 20
	maxMinePageSize     = 100
)

type ReminderConfig struct {
	// Location is the business timezone reminder dates are computed in.
	Location    *time.Location
	MaxAttempts int
	// StaleRunning matches the worker lease; Reconcile replaces active jobs older than it.
	StaleRunning time.Duration
}

func LoadReminderConfig() (ReminderConfig, error) {
	tz := envutil.String("PROCESSING_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return ReminderConfig{}, fmt.Errorf("PROCESSING_TIMEZONE %q: %w", tz, err)
	}
	return ReminderConfig{
		Location:     loc,
		MaxAttempts:  envutil.Int("REMINDER_JOB_MAX_ATTEMPTS", 3),
		StaleRunning: envutil.Millis("REMINDER_JOB_LEASE_MS", queue.DefaultStaleRunning),
	}, nil
}

func (c ReminderConfig) withDefaults() ReminderConfig {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = queue.DefaultStaleRunning
	}
	return c
}

type ReminderScheduleInput struct {
	StepID                uuid.UUID
	ProcessingCandidateID uuid.UUID
	AssignedTo            *uuid.UUID
	SubmittedAt           *time.Time
}

type MineQuery struct {
	SentOnly bool
	Page     int
	Limit    int
}

type ReminderPage struct {
	Items []*types.Reminder `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

type ReconcileResult struct {
	Checked  int `json:"checked"`
	Enqueued int `json:"enqueued"`
	Removed  int `json:"removed"`
}

// ReminderService owns the reminder rows of processing steps and the queue jobs that deliver them.
// The store is authoritative; queue failures are logged and repaired by Reconcile.
type ReminderService interface {
	CreateOrReset(ctx context.Context, in ReminderScheduleInput) (*types.Reminder, error)
	TriggerNow(ctx context.Context, stepID uuid.UUID, actorID *uuid.UUID) (*types.Reminder, error)
	CancelForStep(ctx context.Context, stepID uuid.UUID) (int64, error)
	Dismiss(ctx context.Context, reminderID, userID uuid.UUID) error
	ListMine(ctx context.Context, userID uuid.UUID, q MineQuery) (*ReminderPage, error)
	Reconcile(ctx context.Context) (ReconcileResult, error)
}

type reminderService struct {
	db         *gorm.DB
	log        *logger.Logger
	steps      processingrepo.StepRepo
	candidates processingrepo.CandidateRepo
	reminders  reminderrepo.ReminderRepo
	settings   ReminderSettingsProvider
	queue      queue.Queue
	metrics    *observability.Metrics
	cfg        ReminderConfig
	now        func() time.Time
}

func NewReminderService(
	db *gorm.DB,
	baseLog *logger.Logger,
	steps processingrepo.StepRepo,
	candidates processingrepo.CandidateRepo,
	reminders reminderrepo.ReminderRepo,
	settings ReminderSettingsProvider,
	q queue.Queue,
	metrics *observability.Metrics,
	cfg ReminderConfig,
) ReminderService {
	return &reminderService{
		db:         db,
		log:        baseLog.With("service", "ReminderService"),
		steps:      steps,
		candidates: candidates,
		reminders:  reminders,
		settings:   settings,
		queue:      q,
		metrics:    metrics,
		cfg:        cfg.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *reminderService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(servicesTracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *reminderService) CreateOrReset(ctx context.Context, in ReminderScheduleInput) (out *types.Reminder, err error) {
	ctx, span := s.startSpan(ctx, "reminders.create_or_reset", attribute.String("step_id", in.StepID.String()))
	defer func() { endSpan(span, err) }()
	return s.schedule(ctx, "reminders.create_or_reset", in, false)
}

func (s *reminderService) TriggerNow(ctx context.Context, stepID uuid.UUID, actorID *uuid.UUID) (out *types.Reminder, err error) {
	ctx, span := s.startSpan(ctx, "reminders.trigger_now", attribute.String("step_id", stepID.String()))
	defer func() { endSpan(span, err) }()
	out, err = s.schedule(ctx, "reminders.trigger_now", ReminderScheduleInput{StepID: stepID}, true)
	if err == nil {
		s.log.Info("Reminder triggered manually", "reminder_id", out.ID, "step_id", stepID, "actor_user_id", safeUserID(actorID))
	}
	return out, err
}

// schedule resets the step's reminder (or creates it) and replaces its queued job. Queue failures are
// logged and leave the row with an empty JobID.
func (s *reminderService) schedule(ctx context.Context, op string, in ReminderScheduleInput, immediate bool) (*types.Reminder, error) {
	if in.StepID == uuid.Nil {
		return nil, domainagg.Validation(op, "step id is required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	step, err := s.steps.GetByID(dbc, in.StepID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if step == nil {
		return nil, domainagg.NotFound(op, "processing step")
	}
	family := processing.ReminderFamilyForStage(step.Key())
	if family == "" {
		return nil, domainagg.Validation(op, "stage "+step.Key()+" has no reminders", "stepKey")
	}
	if in.ProcessingCandidateID != uuid.Nil && in.ProcessingCandidateID != step.ProcessingCandidateID {
		return nil, domainagg.Validation(op, "step does not belong to the processing candidate", "processingCandidateId")
	}

	assignedTo := in.AssignedTo
	if assignedTo == nil {
		assignedTo = step.AssignedTo
	}
	if assignedTo == nil {
		pc, err := s.candidates.GetByID(dbc, step.ProcessingCandidateID)
		if err != nil {
			return nil, dataagg.MapError(op, err)
		}
		if pc == nil {
			return nil, domainagg.NotFound(op, "processing candidate")
		}
		assignedTo = pc.AssignedProcessingUserID
	}

	settings, err := s.settings.Get(ctx, family)
	if err != nil {
		return nil, err
	}
	now := s.now().In(s.cfg.Location)
	scheduledFor := now
	if !immediate {
		submittedAt := in.SubmittedAt
		if submittedAt == nil {
			submittedAt = step.SubmittedAt
		}
		scheduledFor = schedule.ComputeSchedule(submittedAt, settings, now)
	}

	rem, prevJobID, reset, err := s.upsert(dbc, op, step, family, assignedTo, scheduledFor.UTC())
	if domainagg.IsCode(err, domainagg.CodeRetryable) {
		rem, prevJobID, reset, err = s.upsert(dbc, op, step, family, assignedTo, scheduledFor.UTC())
	}
	if err != nil {
		return nil, err
	}
	event := observability.ReminderScheduled
	if reset {
		event = observability.ReminderRescheduled
	}
	s.metrics.IncReminderEvent(family, event)

	s.replaceJob(ctx, rem, prevJobID, now)
	return rem, nil
}

// upsert resets the latest reminder of the step or creates one. It returns the job id the row carried
// before the reset, and whether a row existed.
func (s *reminderService) upsert(dbc dbctx.Context, op string, step *types.ProcessingStep, family string, assignedTo *uuid.UUID, scheduledFor time.Time) (*types.Reminder, string, bool, error) {
	existing, err := s.reminders.LatestForStep(dbc, step.ID, family)
	if err != nil {
		return nil, "", false, dataagg.MapError(op, err)
	}
	if existing == nil {
		rem := &types.Reminder{
			Family:                family,
			ProcessingStepID:      step.ID,
			ProcessingCandidateID: step.ProcessingCandidateID,
			AssignedTo:            assignedTo,
			ScheduledFor:          scheduledFor,
			Status:                types.ReminderStatusPending,
		}
		err := s.reminders.Create(dbc, rem)
		if err == nil {
			return rem, "", false, nil
		}
		if !domainagg.IsCode(dataagg.MapError(op, err), domainagg.CodeConflict) {
			return nil, "", false, dataagg.MapError(op, err)
		}
		// A concurrent request created the active row first; reset that one instead.
		if existing, err = s.reminders.LatestForStep(dbc, step.ID, family); err != nil {
			return nil, "", false, dataagg.MapError(op, err)
		}
		if existing == nil {
			// The winning row was completed or removed before it could be read back.
			return nil, "", false, dataagg.MapError(op, dataagg.RetryableError("reminder changed concurrently"))
		}
	}

	updates := map[string]interface{}{
		"status":             types.ReminderStatusPending,
		"scheduled_for":      scheduledFor,
		"reminder_count":     0,
		"daily_count":        0,
		"days_completed":     0,
		"last_reminder_date": nil,
		"sent_at":            nil,
		"escalated":          false,
		"assigned_to":        nil,
		"job_id":             "",
		"version":            gorm.Expr("version + 1"),
	}
	if assignedTo != nil {
		updates["assigned_to"] = *assignedTo
	}
	if err := s.reminders.UpdateFields(dbc, existing.ID, updates); err != nil {
		return nil, "", false, dataagg.MapError(op, err)
	}
	rem, err := s.reminders.GetByID(dbc, existing.ID)
	if err != nil {
		return nil, "", false, dataagg.MapError(op, err)
	}
	if rem == nil {
		return nil, "", false, domainagg.NotFound(op, "reminder")
	}
	return rem, existing.JobID, true, nil
}

// replaceJob removes every queued job of the reminder and enqueues one for rem.ScheduledFor.
// It reports whether the new job was enqueued and its id stored on the reminder.
func (s *reminderService) replaceJob(ctx context.Context, rem *types.Reminder, staleJobID string, now time.Time) bool {
	s.removeJobs(ctx, rem.ProcessingStepID, []uuid.UUID{rem.ID}, []string{staleJobID, rem.JobID})

	delay := rem.ScheduledFor.Sub(now)
	if delay < 0 {
		delay = 0
	}
	job, err := s.queue.Enqueue(ctx, reminderdomain.JobType(rem.Family), reminderPayload(rem), queue.EnqueueOptions{
		Delay:            delay,
		MaxAttempts:      s.cfg.MaxAttempts,
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	})
	if err != nil {
		s.metrics.IncReminderEvent(rem.Family, observability.ReminderFailed)
		s.log.Warn("Enqueue reminder job failed", "reminder_id", rem.ID, "step_id", rem.ProcessingStepID, "error", err)
		s.clearJobID(ctx, rem)
		return false
	}
	if err := s.reminders.UpdateFields(dbctx.Context{Ctx: ctx}, rem.ID, map[string]interface{}{"job_id": job.ID}); err != nil {
		s.log.Warn("Store reminder job id failed", "reminder_id", rem.ID, "job_id", job.ID, "error", err)
		// An unrecorded job would be dropped as an orphan; leave the row for the next reconcile.
		if rmErr := s.queue.Remove(ctx, job.ID); rmErr != nil {
			s.log.Warn("Remove unrecorded reminder job failed", "job_id", job.ID, "error", rmErr)
		}
		s.clearJobID(ctx, rem)
		return false
	}
	rem.JobID = job.ID
	s.log.Debug("Reminder job enqueued", "reminder_id", rem.ID, "job_id", job.ID, "delay_ms", delay.Milliseconds())
	return true
}

func (s *reminderService) clearJobID(ctx context.Context, rem *types.Reminder) {
	if rem.JobID == "" {
		return
	}
	if err := s.reminders.UpdateFields(dbctx.Context{Ctx: ctx}, rem.ID, map[string]interface{}{"job_id": ""}); err != nil {
		s.log.Warn("Clear reminder job id failed", "reminder_id", rem.ID, "error", err)
	}
	rem.JobID = ""
}

// removeJobs drops the given job ids and every pending reminder job whose payload names stepID or one
// of reminderIDs. Failures are logged. It returns the number of jobs removed.
func (s *reminderService) removeJobs(ctx context.Context, stepID uuid.UUID, reminderIDs []uuid.UUID, jobIDs []string) int {
	jobs, err := s.queue.ListPending(ctx)
	if err != nil {
		s.log.Warn("List pending reminder jobs failed", "step_id", stepID, "error", err)
		jobs = nil
	}
	targets := map[string]bool{}
	for _, id := range jobIDs {
		if id != "" {
			targets[id] = true
		}
	}
	owners := map[uuid.UUID]bool{}
	for _, id := range reminderIDs {
		owners[id] = true
	}
	for _, job := range jobs {
		if !strings.HasPrefix(job.Type, reminderdomain.JobTypePrefix) {
			continue
		}
		var p types.ReminderJobPayload
		if err := job.Decode(&p); err != nil {
			continue
		}
		if owners[p.ReminderID] || (stepID != uuid.Nil && p.ProcessingStepID == stepID) {
			targets[job.ID] = true
		}
	}

	removed := 0
	for id := range targets {
		if err := s.queue.Remove(ctx, id); err != nil {
			s.log.Warn("Remove reminder job failed", "job_id", id, "step_id", stepID, "error", err)
			continue
		}
		removed++
	}
	return removed
}

func (s *reminderService) CancelForStep(ctx context.Context, stepID uuid.UUID) (n int64, err error) {
	const op = "reminders.cancel_for_step"
	ctx, span := s.startSpan(ctx, op, attribute.String("step_id", stepID.String()))
	defer func() { endSpan(span, err) }()

	if stepID == uuid.Nil {
		return 0, domainagg.Validation(op, "step id is required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	active, err := s.reminders.ListActiveForStep(dbc, stepID)
	if err != nil {
		return 0, dataagg.MapError(op, err)
	}
	ids := make([]uuid.UUID, 0, len(active))
	jobIDs := make([]string, 0, len(active))
	for _, r := range active {
		ids = append(ids, r.ID)
		jobIDs = append(jobIDs, r.JobID)
	}
	if n, err = s.reminders.MarkCompleted(dbc, ids); err != nil {
		return 0, dataagg.MapError(op, err)
	}
	s.removeJobs(ctx, stepID, ids, jobIDs)
	for _, r := range active {
		s.metrics.IncReminderEvent(r.Family, observability.ReminderCancelled)
	}
	if n > 0 {
		s.log.Info("Reminders cancelled for step", "step_id", stepID, "count", n)
	}
	return n, nil
}

func (s *reminderService) Dismiss(ctx context.Context, reminderID, userID uuid.UUID) (err error) {
	const op = "reminders.dismiss"
	ctx, span := s.startSpan(ctx, op, attribute.String("reminder_id", reminderID.String()))
	defer func() { endSpan(span, err) }()

	dbc := dbctx.Context{Ctx: ctx}
	rem, err := s.reminders.GetByID(dbc, reminderID)
	if err != nil {
		return dataagg.MapError(op, err)
	}
	// Non-owners get the same answer as a missing reminder.
	if rem == nil || rem.AssignedTo == nil || userID == uuid.Nil || *rem.AssignedTo != userID {
		return domainagg.NotFound(op, "reminder")
	}
	if rem.Status == types.ReminderStatusCompleted {
		return nil
	}
	if _, err := s.reminders.MarkCompleted(dbc, []uuid.UUID{rem.ID}); err != nil {
		return dataagg.MapError(op, err)
	}
	s.removeJobs(ctx, uuid.Nil, []uuid.UUID{rem.ID}, []string{rem.JobID})
	s.metrics.IncReminderEvent(rem.Family, observability.ReminderCancelled)
	s.log.Info("Reminder dismissed", "reminder_id", rem.ID, "user_id", userID)
	return nil
}

func (s *reminderService) ListMine(ctx context.Context, userID uuid.UUID, q MineQuery) (*ReminderPage, error) {
	const op = "reminders.list_mine"
	if userID == uuid.Nil {
		return nil, domainagg.Validation(op, "user id is required")
	}
	page, limit := normalizePage(q.Page, q.Limit)
	items, total, err := s.reminders.ListMine(dbctx.Context{Ctx: ctx}, reminderrepo.MineFilter{
		UserID:   userID,
		SentOnly: q.SentOnly,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return &ReminderPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultMinePageSize
	}
	if limit > maxMinePageSize {
		limit = maxMinePageSize
	}
	return page, limit
}

// Reconcile makes the queue match the store: every active reminder ends up with exactly one queued
// job and reminder jobs nobody owns are removed.
func (s *reminderService) Reconcile(ctx context.Context) (out ReconcileResult, err error) {
	const op = "reminders.reconcile"
	ctx, span := s.startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	jobs, err := s.queue.ListPending(ctx, queue.StateDelayed, queue.StateWaiting, queue.StateActive)
	if err != nil {
		return out, fmt.Errorf("%s: list jobs: %w", op, err)
	}
	byReminder := map[uuid.UUID][]*queue.Job{}
	unowned := map[string]*queue.Job{}
	for _, job := range jobs {
		if !strings.HasPrefix(job.Type, reminderdomain.JobTypePrefix) {
			continue
		}
		var p types.ReminderJobPayload
		if err := job.Decode(&p); err != nil || p.ReminderID == uuid.Nil {
			unowned[job.ID] = job
			continue
		}
		byReminder[p.ReminderID] = append(byReminder[p.ReminderID], job)
	}

	now := s.now()
	dbc := dbctx.Context{Ctx: ctx}
	after := uuid.Nil
	for {
		page, err := s.reminders.ListActive(dbc, after, 200)
		if err != nil {
			return out, dataagg.MapError(op, err)
		}
		if len(page) == 0 {
			break
		}
		for _, rem := range page {
			after = rem.ID
			out.Checked++
			kept := false
			for _, job := range byReminder[rem.ID] {
				stale := job.Stale(now, s.cfg.StaleRunning)
				switch {
				case !kept && !stale && (job.ID == rem.JobID || job.State == queue.StateActive):
					kept = true
				case job.State != queue.StateActive || stale:
					if err := s.queue.Remove(ctx, job.ID); err != nil {
						s.log.Warn("Remove duplicate reminder job failed", "job_id", job.ID, "error", err)
						continue
					}
					out.Removed++
				}
			}
			delete(byReminder, rem.ID)
			if kept {
				continue
			}
			if s.replaceJob(ctx, rem, rem.JobID, now) {
				out.Enqueued++
			}
		}
	}

	// Whatever is left belongs to completed or deleted reminders.
	for _, list := range byReminder {
		for _, job := range list {
			unowned[job.ID] = job
		}
	}
	for id, job := range unowned {
		if job.State == queue.StateActive && !job.Stale(now, s.cfg.StaleRunning) {
			continue
		}
		if err := s.queue.Remove(ctx, id); err != nil {
			s.log.Warn("Remove orphaned reminder job failed", "job_id", id, "error", err)
			continue
		}
		out.Removed++
	}
	s.log.Info("Reminder queue reconciled", "checked", out.Checked, "enqueued", out.Enqueued, "removed", out.Removed)
	return out, nil
}

func reminderPayload(r *types.Reminder) types.ReminderJobPayload {
	return types.ReminderJobPayload{
		ReminderID:            r.ID,
		ProcessingStepID:      r.ProcessingStepID,
		ProcessingCandidateID: r.ProcessingCandidateID,
		AssignedTo:            r.AssignedTo,
		Family:                r.Family,
	}
}
