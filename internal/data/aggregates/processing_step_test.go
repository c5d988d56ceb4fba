package aggregates

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	processingrepo "github.com/yungbote/processing-backend/internal/data/repos/processing"
	"github.com/yungbote/processing-backend/internal/data/repos/testutil"
	types "github.com/yungbote/processing-backend/internal/domain"
	domainagg "github.com/yungbote/processing-backend/internal/domain/aggregates"
)

type aggregateFixture struct {
	db    *gorm.DB
	agg   domainagg.ProcessingStepAggregate
	hooks *spyHooks
	ctx   context.Context
}

func newAggregateFixture(t *testing.T) aggregateFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	hooks := &spyHooks{}
	agg := NewProcessingStepAggregate(ProcessingStepDeps{
		Base:         BaseDeps{DB: db, Log: log, Hooks: hooks},
		Candidates:   processingrepo.NewCandidateRepo(db, log),
		Templates:    processingrepo.NewTemplateRepo(db, log),
		Steps:        processingrepo.NewStepRepo(db, log),
		History:      processingrepo.NewHistoryRepo(db, log),
		Requirements: processingrepo.NewRequirementRepo(db, log),
		Documents:    processingrepo.NewDocumentRepo(db, log),
	})
	return aggregateFixture{db: db, agg: agg, hooks: hooks, ctx: context.Background()}
}

func (f aggregateFixture) step(t *testing.T, id uuid.UUID) *types.ProcessingStep {
	t.Helper()
	var s types.ProcessingStep
	if err := f.db.Preload("Template").Where("id = ?", id).First(&s).Error; err != nil {
		t.Fatalf("load step: %v", err)
	}
	return &s
}

func (f aggregateFixture) candidate(t *testing.T, id uuid.UUID) *types.ProcessingCandidate {
	t.Helper()
	var pc types.ProcessingCandidate
	if err := f.db.Where("id = ?", id).First(&pc).Error; err != nil {
		t.Fatalf("load candidate: %v", err)
	}
	return &pc
}

func (f aggregateFixture) historyCount(t *testing.T, pcID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&types.ProcessingHistory{}).Where("processing_candidate_id = ?", pcID).Count(&n).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	return n
}

func (f aggregateFixture) stepCount(t *testing.T, pcID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&types.ProcessingStep{}).Where("processing_candidate_id = ?", pcID).Count(&n).Error; err != nil {
		t.Fatalf("count steps: %v", err)
	}
	return n
}

// seedActive seeds an in-progress candidate with one step per key; the first key is in_progress.
func (f aggregateFixture) seedActive(t *testing.T, country string, keys ...string) (*types.ProcessingCandidate, []*types.ProcessingStep) {
	t.Helper()
	pc := testutil.SeedProcessingCandidate(t, f.ctx, f.db, country, "", types.CandidateStatusInProgress)
	tpls := testutil.SeedCatalog(t, f.ctx, f.db, keys...)
	steps := make([]*types.ProcessingStep, 0, len(tpls))
	for i, tpl := range tpls {
		status := types.StepStatusPending
		if i == 0 {
			status = types.StepStatusInProgress
		}
		steps = append(steps, testutil.SeedStep(t, f.ctx, f.db, pc.ID, tpl.ID, i+1, status))
	}
	return pc, steps
}

func TestEnsureStepsIsIdempotentAndUsesCountryPlan(t *testing.T) {
	f := newAggregateFixture(t)
	tpls := testutil.SeedCatalog(t, f.ctx, f.db, "offer_letter", "hrd", "medical", "visa")
	testutil.SeedCountryStep(t, f.ctx, f.db, "AE", tpls[3].ID, 1)
	testutil.SeedCountryStep(t, f.ctx, f.db, "AE", tpls[0].ID, 2)
	pc := testutil.SeedProcessingCandidate(t, f.ctx, f.db, "AE", "IN", types.CandidateStatusAssigned)

	res, err := f.agg.EnsureSteps(f.ctx, domainagg.EnsureStepsInput{ProcessingCandidateID: pc.ID})
	if err != nil {
		t.Fatalf("EnsureSteps: %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("created: want=2 got=%d", res.Created)
	}
	if res.Activated != nil {
		t.Fatalf("assigned candidate must not auto-start, activated=%s", res.Activated.Key())
	}
	if len(res.Steps) != 2 || res.Steps[0].Key() != "visa" || res.Steps[1].Key() != "offer_letter" {
		t.Fatalf("plan order: %+v", res.Steps)
	}

	res, err = f.agg.EnsureSteps(f.ctx, domainagg.EnsureStepsInput{ProcessingCandidateID: pc.ID})
	if err != nil {
		t.Fatalf("EnsureSteps again: %v", err)
	}
	if res.Created != 0 {
		t.Fatalf("second call created: want=0 got=%d", res.Created)
	}
	if got := f.stepCount(t, pc.ID); got != 2 {
		t.Fatalf("step rows: want=2 got=%d", got)
	}
}

func TestEnsureStepsFallsBackToCatalogAndActivatesWhenInProgress(t *testing.T) {
	f := newAggregateFixture(t)
	testutil.SeedCatalog(t, f.ctx, f.db, "offer_letter", "hrd", "visa")
	pc := testutil.SeedProcessingCandidate(t, f.ctx, f.db, "OM", "", types.CandidateStatusInProgress)

	res, err := f.agg.EnsureSteps(f.ctx, domainagg.EnsureStepsInput{ProcessingCandidateID: pc.ID})
	if err != nil {
		t.Fatalf("EnsureSteps: %v", err)
	}
	if res.Created != 3 {
		t.Fatalf("created: want=3 got=%d", res.Created)
	}
	if res.Activated == nil || res.Activated.Key() != "offer_letter" {
		t.Fatalf("activated: want=offer_letter got=%v", res.Activated)
	}
	if res.Activated.Status != types.StepStatusInProgress || res.Activated.StartedAt == nil {
		t.Fatalf("activated step: status=%s startedAt=%v", res.Activated.Status, res.Activated.StartedAt)
	}
	if got := f.candidate(t, pc.ID).CurrentStepKey; got != "offer_letter" {
		t.Fatalf("current step: want=offer_letter got=%s", got)
	}

	res, err = f.agg.EnsureSteps(f.ctx, domainagg.EnsureStepsInput{ProcessingCandidateID: pc.ID})
	if err != nil {
		t.Fatalf("EnsureSteps again: %v", err)
	}
	if res.Activated != nil {
		t.Fatalf("second call must not activate another step, got=%s", res.Activated.Key())
	}
}

func TestEnsureStepsMissingCandidateIsNotFound(t *testing.T) {
	f := newAggregateFixture(t)
	_, err := f.agg.EnsureSteps(f.ctx, domainagg.EnsureStepsInput{ProcessingCandidateID: uuid.New()})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("want not_found got=%v", err)
	}
}

func TestTransferThenStartProcessing(t *testing.T) {
	f := newAggregateFixture(t)
	testutil.SeedCatalog(t, f.ctx, f.db, "offer_letter", "hrd")
	cand := testutil.SeedCandidate(t, f.ctx, f.db, "IN")
	proj := testutil.SeedProject(t, f.ctx, f.db, "SA")
	in := domainagg.TransferCandidateInput{CandidateID: cand.ID, ProjectID: proj.ID, RoleID: uuid.New()}

	tr, err := f.agg.TransferCandidate(f.ctx, in)
	if err != nil {
		t.Fatalf("TransferCandidate: %v", err)
	}
	if !tr.Created || tr.Candidate.ProcessingStatus != types.CandidateStatusAssigned {
		t.Fatalf("transfer: created=%v status=%s", tr.Created, tr.Candidate.ProcessingStatus)
	}
	for _, s := range tr.Steps {
		if s.Status != types.StepStatusPending {
			t.Fatalf("transfer must not start work, step %s is %s", s.Key(), s.Status)
		}
	}

	again, err := f.agg.TransferCandidate(f.ctx, in)
	if err != nil {
		t.Fatalf("TransferCandidate again: %v", err)
	}
	if again.Created || again.Candidate.ID != tr.Candidate.ID {
		t.Fatalf("transfer must be idempotent: created=%v id=%s", again.Created, again.Candidate.ID)
	}

	st, err := f.agg.StartProcessing(f.ctx, domainagg.StartProcessingInput{ProcessingCandidateID: tr.Candidate.ID})
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	if !st.Changed || st.Candidate.ProcessingStatus != types.CandidateStatusInProgress {
		t.Fatalf("start: changed=%v status=%s", st.Changed, st.Candidate.ProcessingStatus)
	}
	if st.Activated == nil || st.Activated.Key() != "offer_letter" {
		t.Fatalf("start activated: %v", st.Activated)
	}
	// transfer + start + activation
	if got := f.historyCount(t, tr.Candidate.ID); got != 3 {
		t.Fatalf("history rows: want=3 got=%d", got)
	}
}

func TestCompleteStepBlockedByMissingDocumentsMutatesNothing(t *testing.T) {
	f := newAggregateFixture(t)
	pc, steps := f.seedActive(t, "AE", "hrd", "visa")
	hrd := steps[0]
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, types.CountryAll, "passport", true)
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, types.CountryAll, "degree", true)
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, "AE", "photo", true)
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, "AE", "reference", false)
	testutil.SeedDocument(t, f.ctx, f.db, hrd, "passport", types.DocumentStatusVerified)
	testutil.SeedDocument(t, f.ctx, f.db, hrd, "degree", types.DocumentStatusRejected)

	before := f.historyCount(t, pc.ID)
	_, err := f.agg.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: hrd.ID})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation got=%v", err)
	}
	if !strings.Contains(err.Error(), "missing mandatory documents: degree, photo") {
		t.Fatalf("message must enumerate missing docTypes: %v", err)
	}
	if got := domainagg.DetailsOf(err); len(got) != 2 || got[0] != "degree" || got[1] != "photo" {
		t.Fatalf("details: want=[degree photo] got=%v", got)
	}
	if got := f.step(t, hrd.ID).Status; got != types.StepStatusInProgress {
		t.Fatalf("step status: want=in_progress got=%s", got)
	}
	if got := f.step(t, steps[1].ID).Status; got != types.StepStatusPending {
		t.Fatalf("next step status: want=pending got=%s", got)
	}
	if after := f.historyCount(t, pc.ID); after != before {
		t.Fatalf("history rows: want=%d got=%d", before, after)
	}
}

func TestCompleteStepRequiredOutcomeMissingSkipsPatch(t *testing.T) {
	f := newAggregateFixture(t)
	pc, steps := f.seedActive(t, "AE", "medical", "visa")
	notes := "clinic visited"
	before := f.historyCount(t, pc.ID)

	_, err := f.agg.CompleteStep(f.ctx, domainagg.CompleteStepInput{
		StepID: steps[0].ID,
		Patch:  &domainagg.StepPatch{Notes: &notes},
	})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation got=%v", err)
	}
	if got := f.step(t, steps[0].ID).Notes; got == notes {
		t.Fatalf("notes: want untouched got=%q", got)
	}
	if after := f.historyCount(t, pc.ID); after != before {
		t.Fatalf("history rows: want=%d got=%d", before, after)
	}
}

func TestCompleteStepActivatesNextPendingStep(t *testing.T) {
	f := newAggregateFixture(t)
	pc, steps := f.seedActive(t, "AE", "hrd", "data_flow", "visa")
	hrd := steps[0]
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, types.CountryAll, "passport", true)
	testutil.SeedDocument(t, f.ctx, f.db, hrd, "passport", types.DocumentStatusPending)

	res, err := f.agg.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: hrd.ID, ExternalReference: "HRD-7781"})
	if err != nil {
		t.Fatalf("CompleteStep: %v", err)
	}
	if res.Step.Status != types.StepStatusCompleted || res.Step.CompletedAt == nil {
		t.Fatalf("completed step: status=%s completedAt=%v", res.Step.Status, res.Step.CompletedAt)
	}
	if res.Step.ExternalReference != "HRD-7781" {
		t.Fatalf("external reference: got=%q", res.Step.ExternalReference)
	}
	if res.NextStep == nil || res.NextStep.ID != steps[1].ID || res.NextStep.Status != types.StepStatusInProgress {
		t.Fatalf("next step: %+v", res.NextStep)
	}
	if got := f.step(t, steps[2].ID).Status; got != types.StepStatusPending {
		t.Fatalf("later step: want=pending got=%s", got)
	}
	if res.Candidate.CurrentStepKey != "data_flow" {
		t.Fatalf("current step: want=data_flow got=%s", res.Candidate.CurrentStepKey)
	}
	if got := f.historyCount(t, pc.ID); got != 2 {
		t.Fatalf("history rows: want=2 got=%d", got)
	}

	again, err := f.agg.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: hrd.ID})
	if err != nil {
		t.Fatalf("CompleteStep again: %v", err)
	}
	if !again.AlreadyCompleted {
		t.Fatalf("second completion must be a no-op")
	}
	if got := f.historyCount(t, pc.ID); got != 2 {
		t.Fatalf("history rows after no-op: want=2 got=%d", got)
	}
}

func TestCompleteLastStepFinalizesCandidate(t *testing.T) {
	f := newAggregateFixture(t)
	pc, steps := f.seedActive(t, "QA", "ticket")

	res, err := f.agg.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: steps[0].ID})
	if err != nil {
		t.Fatalf("CompleteStep: %v", err)
	}
	if res.NextStep != nil {
		t.Fatalf("no next step expected, got=%s", res.NextStep.Key())
	}
	got := f.candidate(t, pc.ID)
	if got.ProcessingStatus != types.CandidateStatusCompleted {
		t.Fatalf("candidate status: want=completed got=%s", got.ProcessingStatus)
	}
	if got.CurrentStepKey != types.CurrentStepCompleted {
		t.Fatalf("current step key: want=%s got=%s", types.CurrentStepCompleted, got.CurrentStepKey)
	}
}

func TestCompleteStepRequiresOutcomeForMedical(t *testing.T) {
	f := newAggregateFixture(t)
	pc, steps := f.seedActive(t, "KW", "medical", "visa")

	before := f.historyCount(t, pc.ID)
	_, err := f.agg.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: steps[0].ID})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation got=%v", err)
	}
	if after := f.historyCount(t, pc.ID); after != before {
		t.Fatalf("history rows: want=%d got=%d", before, after)
	}

	passed := true
	res, err := f.agg.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: steps[0].ID, OutcomePassed: &passed})
	if err != nil {
		t.Fatalf("CompleteStep: %v", err)
	}
	if res.Step.OutcomePassed == nil || !*res.Step.OutcomePassed {
		t.Fatalf("outcome: want=true got=%v", res.Step.OutcomePassed)
	}
}

func TestCompleteStepNegativeOutcomeCancelsProcessing(t *testing.T) {
	f := newAggregateFixture(t)
	pc, steps := f.seedActive(t, "KW", "medical", "visa", "ticket")

	failed := false
	res, err := f.agg.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: steps[0].ID, OutcomePassed: &failed, OutcomeNotes: "unfit: TB screening"})
	if err != nil {
		t.Fatalf("CompleteStep: %v", err)
	}
	if !res.Cancelled {
		t.Fatalf("negative outcome must cancel")
	}
	if len(res.CancelledStepIDs) != 3 {
		t.Fatalf("cancelled step ids: want=3 got=%d", len(res.CancelledStepIDs))
	}
	medical := f.step(t, steps[0].ID)
	if medical.Status != types.StepStatusCancelled || medical.OutcomePassed == nil || *medical.OutcomePassed {
		t.Fatalf("medical step: status=%s outcome=%v", medical.Status, medical.OutcomePassed)
	}
	if medical.OutcomeNotes != "unfit: TB screening" || medical.RejectionReason != "unfit: TB screening" {
		t.Fatalf("medical notes: outcome=%q reason=%q", medical.OutcomeNotes, medical.RejectionReason)
	}
	for _, s := range steps[1:] {
		if got := f.step(t, s.ID).Status; got != types.StepStatusCancelled {
			t.Fatalf("sibling %s: want=cancelled got=%s", s.ID, got)
		}
	}
	if got := f.candidate(t, pc.ID).ProcessingStatus; got != types.CandidateStatusCancelled {
		t.Fatalf("candidate status: want=cancelled got=%s", got)
	}
}

func TestCancelStepCascadesAndIsIdempotent(t *testing.T) {
	f := newAggregateFixture(t)
	pc := testutil.SeedProcessingCandidate(t, f.ctx, f.db, "AE", "", types.CandidateStatusInProgress)
	tpls := testutil.SeedCatalog(t, f.ctx, f.db, "offer_letter", "hrd", "visa", "ticket")
	done := testutil.SeedStep(t, f.ctx, f.db, pc.ID, tpls[0].ID, 1, types.StepStatusCompleted)
	active := testutil.SeedStep(t, f.ctx, f.db, pc.ID, tpls[1].ID, 2, types.StepStatusInProgress)
	pendingA := testutil.SeedStep(t, f.ctx, f.db, pc.ID, tpls[2].ID, 3, types.StepStatusPending)
	pendingB := testutil.SeedStep(t, f.ctx, f.db, pc.ID, tpls[3].ID, 4, types.StepStatusPending)

	res, err := f.agg.CancelStep(f.ctx, domainagg.CancelStepInput{StepID: active.ID, Reason: "candidate withdrew"})
	if err != nil {
		t.Fatalf("CancelStep: %v", err)
	}
	if res.CascadedCount != 2 {
		t.Fatalf("cascaded: want=2 got=%d", res.CascadedCount)
	}
	if len(res.StepIDs) != 4 {
		t.Fatalf("step ids: want=4 got=%d", len(res.StepIDs))
	}
	if got := f.step(t, done.ID).Status; got != types.StepStatusCompleted {
		t.Fatalf("completed sibling must be untouched, got=%s", got)
	}
	for _, id := range []uuid.UUID{active.ID, pendingA.ID, pendingB.ID} {
		s := f.step(t, id)
		if s.Status != types.StepStatusCancelled || s.RejectionReason != "candidate withdrew" {
			t.Fatalf("step %s: status=%s reason=%q", s.Key(), s.Status, s.RejectionReason)
		}
	}
	if got := f.candidate(t, pc.ID).ProcessingStatus; got != types.CandidateStatusCancelled {
		t.Fatalf("candidate status: want=cancelled got=%s", got)
	}
	if got := f.historyCount(t, pc.ID); got != 2 {
		t.Fatalf("history rows: want=2 got=%d", got)
	}

	again, err := f.agg.CancelStep(f.ctx, domainagg.CancelStepInput{StepID: active.ID, Reason: "again"})
	if err != nil {
		t.Fatalf("CancelStep again: %v", err)
	}
	if !again.AlreadyCancelled {
		t.Fatalf("second cancel must be a no-op")
	}
	if got := f.historyCount(t, pc.ID); got != 2 {
		t.Fatalf("history rows after no-op: want=2 got=%d", got)
	}
	if n := countTransitions(f.hooks, "candidate:cancelled"); n != 1 {
		t.Fatalf("candidate cancel transitions: want=1 got=%d", n)
	}
}

func TestCompleteCancelledStepIsInvariantViolation(t *testing.T) {
	f := newAggregateFixture(t)
	pc := testutil.SeedProcessingCandidate(t, f.ctx, f.db, "AE", "", types.CandidateStatusCancelled)
	tpl := testutil.SeedTemplate(t, f.ctx, f.db, "visa", 1)
	step := testutil.SeedStep(t, f.ctx, f.db, pc.ID, tpl.ID, 1, types.StepStatusCancelled)

	_, err := f.agg.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: step.ID})
	if !domainagg.IsCode(err, domainagg.CodeInvariantViolation) {
		t.Fatalf("want invariant_violation got=%v", err)
	}
}

func TestSubmitDateMovesStepInProgress(t *testing.T) {
	f := newAggregateFixture(t)
	pc, steps := f.seedActive(t, "AE", "offer_letter", "hrd")
	submitted := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

	res, err := f.agg.SubmitDate(f.ctx, domainagg.SubmitDateInput{StepID: steps[1].ID, SubmittedAt: submitted})
	if err != nil {
		t.Fatalf("SubmitDate: %v", err)
	}
	if res.Step.Status != types.StepStatusInProgress || res.Step.StartedAt == nil {
		t.Fatalf("step: status=%s startedAt=%v", res.Step.Status, res.Step.StartedAt)
	}
	if res.Step.SubmittedAt == nil || !res.Step.SubmittedAt.Equal(submitted) {
		t.Fatalf("submittedAt: want=%s got=%v", submitted, res.Step.SubmittedAt)
	}
	if res.PreviousSubmittedAt != nil {
		t.Fatalf("first submission has no previous date")
	}
	if got := f.historyCount(t, pc.ID); got != 1 {
		t.Fatalf("history rows: want=1 got=%d", got)
	}

	res, err = f.agg.SubmitDate(f.ctx, domainagg.SubmitDateInput{StepID: steps[1].ID, SubmittedAt: submitted.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("SubmitDate again: %v", err)
	}
	if res.PreviousSubmittedAt == nil || !res.PreviousSubmittedAt.Equal(submitted) {
		t.Fatalf("previous submission: want=%s got=%v", submitted, res.PreviousSubmittedAt)
	}

	_, err = f.agg.SubmitDate(f.ctx, domainagg.SubmitDateInput{StepID: uuid.New(), SubmittedAt: submitted})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("want not_found got=%v", err)
	}
}

func TestUpdateStepPatchesAndAudits(t *testing.T) {
	f := newAggregateFixture(t)
	pc, steps := f.seedActive(t, "AE", "offer_letter", "visa")
	assignee := uuid.New()
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	inProgress := types.StepStatusInProgress

	res, err := f.agg.UpdateStep(f.ctx, domainagg.UpdateStepInput{
		StepID: steps[1].ID,
		Patch:  domainagg.StepPatch{Status: &inProgress, AssignedTo: &assignee, DueDate: &due},
	})
	if err != nil {
		t.Fatalf("UpdateStep: %v", err)
	}
	if res.Step.Status != types.StepStatusInProgress || res.Step.StartedAt == nil {
		t.Fatalf("status: %s startedAt=%v", res.Step.Status, res.Step.StartedAt)
	}
	if res.Step.AssignedTo == nil || *res.Step.AssignedTo != assignee {
		t.Fatalf("assignee: want=%s got=%v", assignee, res.Step.AssignedTo)
	}
	if res.Step.DueDate == nil || !res.Step.DueDate.Equal(due) {
		t.Fatalf("due date: want=%s got=%v", due, res.Step.DueDate)
	}

	var row types.ProcessingHistory
	if err := f.db.Where("processing_candidate_id = ?", pc.ID).First(&row).Error; err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(string(row.Metadata), assignee.String()) {
		t.Fatalf("history metadata must describe the patch: %s", row.Metadata)
	}

	completed := types.StepStatusCompleted
	_, err = f.agg.UpdateStep(f.ctx, domainagg.UpdateStepInput{StepID: steps[1].ID, Patch: domainagg.StepPatch{Status: &completed}})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("completed via patch: want validation got=%v", err)
	}

	_, err = f.agg.UpdateStep(f.ctx, domainagg.UpdateStepInput{StepID: steps[1].ID})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("empty patch: want validation got=%v", err)
	}
}

func countTransitions(h *spyHooks, key string) int {
	n := 0
	for _, tr := range h.Transitions {
		if tr == key {
			n++
		}
	}
	return n
}

func TestProcessingStepAggregateContractOwnsLifecycleTables(t *testing.T) {
	c := newAggregateFixture(t).agg.Contract()
	for _, table := range []string{"processing_candidate", "processing_step", "processing_history"} {
		if !c.Owns(table) {
			t.Fatalf("contract %s: want owns %s", c.Name, table)
		}
	}
	if c.Owns("reminder") {
		t.Fatalf("contract %s: reminder rows belong to the reminder service", c.Name)
	}
}
