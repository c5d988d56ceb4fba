package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/processing-backend/internal/data/aggregates"
	processingrepo "github.com/yungbote/processing-backend/internal/data/repos/processing"
	reminderrepo "github.com/yungbote/processing-backend/internal/data/repos/reminders"
	"github.com/yungbote/processing-backend/internal/data/repos/testutil"
	types "github.com/yungbote/processing-backend/internal/domain"
	reminderdomain "github.com/yungbote/processing-backend/internal/domain/reminders"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/queue"
)

type escalationEvent struct {
	reminderID uuid.UUID
	recipient  *uuid.UUID
	strategy   string
}

type recordingNotifier struct {
	mu        sync.Mutex
	due       []uuid.UUID
	escalated []escalationEvent
	dueErr    error
	// onDue runs before the delivery is recorded, standing in for a concurrent writer.
	onDue func()
}

func (n *recordingNotifier) ReminderDue(ctx context.Context, r *types.Reminder) error {
	if n.onDue != nil {
		n.onDue()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dueErr != nil {
		return n.dueErr
	}
	n.due = append(n.due, r.ID)
	return nil
}

func (n *recordingNotifier) ReminderEscalated(ctx context.Context, r *types.Reminder, recipient *uuid.UUID, strategy string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalated = append(n.escalated, escalationEvent{reminderID: r.ID, recipient: recipient, strategy: strategy})
	return nil
}

// failingQueue rejects every enqueue and delegates the rest.
type failingQueue struct {
	*queue.Memory
}

func (q failingQueue) Enqueue(ctx context.Context, jobType string, payload any, opts queue.EnqueueOptions) (*queue.Job, error) {
	return nil, errors.New("queue unavailable")
}

// jobIDWriteFailingRepo fails every write that records a non-empty job id.
type jobIDWriteFailingRepo struct {
	reminderrepo.ReminderRepo
}

func (r jobIDWriteFailingRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if v, ok := updates["job_id"].(string); ok && v != "" {
		return errors.New("store unavailable")
	}
	return r.ReminderRepo.UpdateFields(dbc, id, updates)
}

// racingCreateRepo fails the first Create with a unique violation, as if another request had
// inserted the active row and completed it before it could be read.
type racingCreateRepo struct {
	reminderrepo.ReminderRepo
	creates int
}

func (r *racingCreateRepo) Create(dbc dbctx.Context, rem *types.Reminder) error {
	r.creates++
	if r.creates == 1 {
		return errors.New("UNIQUE constraint failed: reminder.processing_step_id")
	}
	return r.ReminderRepo.Create(dbc, rem)
}

type serviceFixture struct {
	ctx        context.Context
	db         *gorm.DB
	now        time.Time
	queue      *queue.Memory
	notifier   *recordingNotifier
	settings   ReminderSettingsProvider
	reminders  *reminderService
	delivery   *ReminderDelivery
	processing ProcessingService
}

type fixtureOptions struct {
	defaults    map[string]reminderdomain.Settings
	allowTest   bool
	brokenQueue bool
}

func newServiceFixture(t *testing.T, opts fixtureOptions) *serviceFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &serviceFixture{
		ctx:      context.Background(),
		db:       db,
		now:      time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		notifier: &recordingNotifier{},
	}
	clock := func() time.Time { return f.now }
	f.queue = queue.NewMemory(clock)
	var q queue.Queue = f.queue
	if opts.brokenQueue {
		q = failingQueue{Memory: f.queue}
	}

	candidates := processingrepo.NewCandidateRepo(db, log)
	templates := processingrepo.NewTemplateRepo(db, log)
	steps := processingrepo.NewStepRepo(db, log)
	history := processingrepo.NewHistoryRepo(db, log)
	requirements := processingrepo.NewRequirementRepo(db, log)
	documents := processingrepo.NewDocumentRepo(db, log)
	reminders := reminderrepo.NewReminderRepo(db, log)

	f.settings = NewReminderSettingsProvider(log, reminderrepo.NewSettingRepo(db, log), opts.defaults, opts.allowTest)
	cfg := ReminderConfig{Location: time.UTC, MaxAttempts: 3}
	f.reminders = NewReminderService(db, log, steps, candidates, reminders, f.settings, q, nil, cfg).(*reminderService)
	f.reminders.now = clock
	f.delivery = NewReminderDelivery(log, steps, candidates, reminders, f.settings, f.notifier, q, nil, cfg)
	f.delivery.now = clock

	agg := dataagg.NewProcessingStepAggregate(dataagg.ProcessingStepDeps{
		Base:         dataagg.BaseDeps{DB: db, Log: log, Now: clock},
		Candidates:   candidates,
		Templates:    templates,
		Steps:        steps,
		History:      history,
		Requirements: requirements,
		Documents:    documents,
	})
	f.processing = NewProcessingService(db, log, agg, candidates, steps, history, requirements, documents, f.reminders)
	return f
}

// seedSteps seeds an in-progress candidate with one step per key; the first step is in_progress.
func (f *serviceFixture) seedSteps(t *testing.T, country string, keys ...string) (*types.ProcessingCandidate, []*types.ProcessingStep) {
	t.Helper()
	pc := testutil.SeedProcessingCandidate(t, f.ctx, f.db, country, "", types.CandidateStatusInProgress)
	tpls := testutil.SeedCatalog(t, f.ctx, f.db, keys...)
	out := make([]*types.ProcessingStep, 0, len(tpls))
	for i, tpl := range tpls {
		status := types.StepStatusPending
		if i == 0 {
			status = types.StepStatusInProgress
		}
		out = append(out, testutil.SeedStep(t, f.ctx, f.db, pc.ID, tpl.ID, i+1, status))
	}
	return pc, out
}

func (f *serviceFixture) reminder(t *testing.T, id uuid.UUID) *types.Reminder {
	t.Helper()
	var r types.Reminder
	if err := f.db.Where("id = ?", id).First(&r).Error; err != nil {
		t.Fatalf("load reminder: %v", err)
	}
	return &r
}

func (f *serviceFixture) remindersForStep(t *testing.T, stepID uuid.UUID) []*types.Reminder {
	t.Helper()
	var out []*types.Reminder
	if err := f.db.Where("processing_step_id = ?", stepID).Find(&out).Error; err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	return out
}

func (f *serviceFixture) step(t *testing.T, id uuid.UUID) *types.ProcessingStep {
	t.Helper()
	var s types.ProcessingStep
	if err := f.db.Preload("Template").Where("id = ?", id).First(&s).Error; err != nil {
		t.Fatalf("load step: %v", err)
	}
	return &s
}

func (f *serviceFixture) pendingJobs(t *testing.T) []*queue.Job {
	t.Helper()
	jobs, err := f.queue.ListPending(f.ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	return jobs
}

func (f *serviceFixture) jobPayload(t *testing.T, job *queue.Job) types.ReminderJobPayload {
	t.Helper()
	var p types.ReminderJobPayload
	if err := job.Decode(&p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return p
}
