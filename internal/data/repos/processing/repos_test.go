package processing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/processing-backend/internal/data/repos/testutil"
	types "github.com/yungbote/processing-backend/internal/domain"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
)

func TestStepRepoCreateIfAbsentIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewStepRepo(db, testutil.Logger(t))

	pc := testutil.SeedProcessingCandidate(t, ctx, db, "AE", "IN", types.CandidateStatusAssigned)
	tpl := testutil.SeedTemplate(t, ctx, db, "hrd", 1)

	created, err := repo.CreateIfAbsent(dbc, &types.ProcessingStep{ProcessingCandidateID: pc.ID, TemplateID: tpl.ID, StepOrder: 1, Status: types.StepStatusPending})
	if err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	if !created {
		t.Fatalf("first create: want=true got=false")
	}
	created, err = repo.CreateIfAbsent(dbc, &types.ProcessingStep{ProcessingCandidateID: pc.ID, TemplateID: tpl.ID, StepOrder: 1, Status: types.StepStatusPending})
	if err != nil {
		t.Fatalf("CreateIfAbsent again: %v", err)
	}
	if created {
		t.Fatalf("second create: want=false got=true")
	}
	steps, err := repo.ListByCandidate(dbc, pc.ID)
	if err != nil {
		t.Fatalf("ListByCandidate: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("steps: want=1 got=%d", len(steps))
	}
	if steps[0].Key() != "hrd" {
		t.Fatalf("preloaded key: want=hrd got=%q", steps[0].Key())
	}
}

func TestStepRepoFirstByStatusAndCancelOpenSiblings(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewStepRepo(db, testutil.Logger(t))

	pc := testutil.SeedProcessingCandidate(t, ctx, db, "SA", "", types.CandidateStatusInProgress)
	tpls := testutil.SeedCatalog(t, ctx, db, "offer_letter", "hrd", "visa", "ticket")
	done := testutil.SeedStep(t, ctx, db, pc.ID, tpls[0].ID, 1, types.StepStatusCompleted)
	active := testutil.SeedStep(t, ctx, db, pc.ID, tpls[1].ID, 2, types.StepStatusInProgress)
	testutil.SeedStep(t, ctx, db, pc.ID, tpls[3].ID, 4, types.StepStatusPending)
	third := testutil.SeedStep(t, ctx, db, pc.ID, tpls[2].ID, 3, types.StepStatusPending)

	next, err := repo.FirstByStatus(dbc, pc.ID, types.StepStatusPending)
	if err != nil {
		t.Fatalf("FirstByStatus: %v", err)
	}
	if next == nil || next.ID != third.ID {
		t.Fatalf("next pending: want=%s got=%v", third.ID, next)
	}

	n, err := repo.CancelOpenSiblings(dbc, pc.ID, active.ID, "withdrawn", time.Now())
	if err != nil {
		t.Fatalf("CancelOpenSiblings: %v", err)
	}
	if n != 2 {
		t.Fatalf("cascaded: want=2 got=%d", n)
	}
	got, err := repo.GetByID(dbc, done.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StepStatusCompleted {
		t.Fatalf("completed sibling: want=%s got=%s", types.StepStatusCompleted, got.Status)
	}
	got, err = repo.GetByID(dbc, active.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StepStatusInProgress {
		t.Fatalf("excluded step: want=%s got=%s", types.StepStatusInProgress, got.Status)
	}
	got, err = repo.GetByID(dbc, third.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StepStatusCancelled || got.RejectionReason != "withdrawn" {
		t.Fatalf("cascaded sibling: got status=%s reason=%q", got.Status, got.RejectionReason)
	}

	byKey, err := repo.GetByCandidateAndKey(dbc, pc.ID, "visa")
	if err != nil {
		t.Fatalf("GetByCandidateAndKey: %v", err)
	}
	if byKey == nil || byKey.ID != third.ID {
		t.Fatalf("by key: want=%s got=%v", third.ID, byKey)
	}
}

func TestCandidateRepoResolveCountry(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewCandidateRepo(db, testutil.Logger(t))

	withProject := testutil.SeedProcessingCandidate(t, ctx, db, "ae", "IN", types.CandidateStatusAssigned)
	got, err := repo.ResolveCountry(dbc, withProject)
	if err != nil {
		t.Fatalf("ResolveCountry: %v", err)
	}
	if got != "AE" {
		t.Fatalf("project country: want=AE got=%s", got)
	}

	fallback := testutil.SeedProcessingCandidate(t, ctx, db, "", "qa", types.CandidateStatusAssigned)
	got, err = repo.ResolveCountry(dbc, fallback)
	if err != nil {
		t.Fatalf("ResolveCountry: %v", err)
	}
	if got != "QA" {
		t.Fatalf("candidate country: want=QA got=%s", got)
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing candidate: want=nil got=%v", missing)
	}
}

func TestTemplateRepoCountryPlanOrder(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewTemplateRepo(db, testutil.Logger(t))

	tpls := testutil.SeedCatalog(t, ctx, db, "offer_letter", "medical", "visa")
	testutil.SeedCountryStep(t, ctx, db, "KW", tpls[2].ID, 1)
	testutil.SeedCountryStep(t, ctx, db, "KW", tpls[0].ID, 2)

	plan, err := repo.ListCountryPlan(dbc, "kw")
	if err != nil {
		t.Fatalf("ListCountryPlan: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("plan length: want=2 got=%d", len(plan))
	}
	if plan[0].Template.Key != "visa" || plan[1].Template.Key != "offer_letter" {
		t.Fatalf("plan order: got=%s,%s", plan[0].Template.Key, plan[1].Template.Key)
	}

	none, err := repo.ListCountryPlan(dbc, "OM")
	if err != nil {
		t.Fatalf("ListCountryPlan: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("empty plan: want=0 got=%d", len(none))
	}

	catalog, err := repo.ListCatalog(dbc)
	if err != nil {
		t.Fatalf("ListCatalog: %v", err)
	}
	if len(catalog) != 3 || catalog[0].Key != "offer_letter" {
		t.Fatalf("catalog: %+v", catalog)
	}
}

func TestRequirementRepoScopesToCountryAndAll(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewRequirementRepo(db, testutil.Logger(t))

	tpl := testutil.SeedTemplate(t, ctx, db, "hrd", 1)
	other := testutil.SeedTemplate(t, ctx, db, "visa", 2)
	testutil.SeedRequirement(t, ctx, db, tpl.ID, types.CountryAll, "passport", true)
	testutil.SeedRequirement(t, ctx, db, tpl.ID, "AE", "passport", false)
	testutil.SeedRequirement(t, ctx, db, tpl.ID, "SA", "degree", true)
	testutil.SeedRequirement(t, ctx, db, other.ID, types.CountryAll, "photo", true)

	rows, err := repo.ListForTemplate(dbc, tpl.ID, "ae")
	if err != nil {
		t.Fatalf("ListForTemplate: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: want=2 got=%d", len(rows))
	}
	for _, row := range rows {
		if row.DocType != "passport" {
			t.Fatalf("unexpected row: %+v", row)
		}
	}
}

func TestHistoryRepoNewestFirst(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewHistoryRepo(db, testutil.Logger(t))

	pcID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := repo.Create(dbc,
		&types.ProcessingHistory{ProcessingCandidateID: pcID, Status: "assigned", CreatedAt: base},
		&types.ProcessingHistory{ProcessingCandidateID: pcID, Status: "in_progress", CreatedAt: base.Add(time.Hour)},
		nil,
	); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rows, err := repo.ListByCandidate(dbc, pcID, 0)
	if err != nil {
		t.Fatalf("ListByCandidate: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: want=2 got=%d", len(rows))
	}
	if rows[0].Status != "in_progress" {
		t.Fatalf("newest first: want=in_progress got=%s", rows[0].Status)
	}
}
