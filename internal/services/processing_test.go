package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/processing-backend/internal/data/repos/testutil"
	types "github.com/yungbote/processing-backend/internal/domain"
	domainagg "github.com/yungbote/processing-backend/internal/domain/aggregates"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestSubmitDateSchedulesReminderForReminderStages(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	pc, steps := f.seedSteps(t, "AE", "hrd", "visa")

	submitted := f.now.AddDate(0, 0, -10)
	if _, err := f.processing.SubmitDate(f.ctx, domainagg.SubmitDateInput{StepID: steps[0].ID, SubmittedAt: submitted}); err != nil {
		t.Fatalf("SubmitDate hrd: %v", err)
	}
	rems := f.remindersForStep(t, steps[0].ID)
	if len(rems) != 1 {
		t.Fatalf("hrd reminders: want=1 got=%d", len(rems))
	}
	if rems[0].Family != "hrd" || rems[0].AssignedTo == nil || *rems[0].AssignedTo != *pc.AssignedProcessingUserID {
		t.Fatalf("reminder: family=%s assigned=%v", rems[0].Family, rems[0].AssignedTo)
	}
	if jobs := f.pendingJobs(t); len(jobs) != 1 || jobs[0].ID != rems[0].JobID {
		t.Fatalf("pending jobs: want the reminder job got=%d", len(jobs))
	}

	if _, err := f.processing.SubmitDate(f.ctx, domainagg.SubmitDateInput{StepID: steps[1].ID, SubmittedAt: submitted}); err != nil {
		t.Fatalf("SubmitDate visa: %v", err)
	}
	if rems := f.remindersForStep(t, steps[1].ID); len(rems) != 0 {
		t.Fatalf("visa reminders: want=0 got=%d", len(rems))
	}
}

func TestSubmitDateOnTerminalStepSchedulesNothing(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	_, steps := f.seedSteps(t, "AE", "data_flow")
	if err := f.db.Model(&types.ProcessingStep{}).Where("id = ?", steps[0].ID).Update("status", types.StepStatusCompleted).Error; err != nil {
		t.Fatalf("complete step: %v", err)
	}

	out, err := f.processing.SubmitDate(f.ctx, domainagg.SubmitDateInput{StepID: steps[0].ID, SubmittedAt: f.now})
	if err != nil {
		t.Fatalf("SubmitDate: %v", err)
	}
	if out.Step.SubmittedAt == nil || !out.Step.SubmittedAt.Equal(f.now) {
		t.Fatalf("submitted_at: want=%s got=%v", f.now, out.Step.SubmittedAt)
	}
	if rems := f.remindersForStep(t, steps[0].ID); len(rems) != 0 {
		t.Fatalf("reminders: want=0 got=%d", len(rems))
	}
	if jobs := f.pendingJobs(t); len(jobs) != 0 {
		t.Fatalf("pending jobs: want=0 got=%d", len(jobs))
	}
}

func TestSubmitDateSucceedsWhenQueueIsDown(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{brokenQueue: true})
	_, steps := f.seedSteps(t, "AE", "data_flow")

	out, err := f.processing.SubmitDate(f.ctx, domainagg.SubmitDateInput{StepID: steps[0].ID, SubmittedAt: f.now})
	if err != nil {
		t.Fatalf("SubmitDate: %v", err)
	}
	if out.Step.SubmittedAt == nil || !out.Step.SubmittedAt.Equal(f.now) {
		t.Fatalf("submitted_at: want=%s got=%v", f.now, out.Step.SubmittedAt)
	}
	rems := f.remindersForStep(t, steps[0].ID)
	if len(rems) != 1 || rems[0].JobID != "" {
		t.Fatalf("reminder: want one row without job got=%d", len(rems))
	}
}

func TestCompleteStepCancelsItsReminder(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	_, steps := f.seedSteps(t, "AE", "hrd", "data_flow")

	if _, err := f.processing.SubmitDate(f.ctx, domainagg.SubmitDateInput{StepID: steps[0].ID, SubmittedAt: f.now}); err != nil {
		t.Fatalf("SubmitDate: %v", err)
	}
	out, err := f.processing.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: steps[0].ID})
	if err != nil {
		t.Fatalf("CompleteStep: %v", err)
	}
	if out.NextStep == nil || out.NextStep.ID != steps[1].ID {
		t.Fatalf("next step: want=%s got=%v", steps[1].ID, out.NextStep)
	}
	rems := f.remindersForStep(t, steps[0].ID)
	if len(rems) != 1 || rems[0].Status != types.ReminderStatusCompleted {
		t.Fatalf("reminder: want completed got=%d rows", len(rems))
	}
	if jobs := f.pendingJobs(t); len(jobs) != 0 {
		t.Fatalf("pending jobs: want=0 got=%d", len(jobs))
	}
}

func TestCancelStepCancelsRemindersOfEveryStep(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	pc, steps := f.seedSteps(t, "AE", "hrd", "data_flow")

	for _, s := range steps {
		if _, err := f.reminders.CreateOrReset(f.ctx, ReminderScheduleInput{StepID: s.ID}); err != nil {
			t.Fatalf("CreateOrReset %s: %v", s.ID, err)
		}
	}
	out, err := f.processing.CancelStep(f.ctx, domainagg.CancelStepInput{StepID: steps[1].ID, Reason: "candidate withdrew"})
	if err != nil {
		t.Fatalf("CancelStep: %v", err)
	}
	if out.Candidate == nil || out.Candidate.ProcessingStatus != types.CandidateStatusCancelled {
		t.Fatalf("candidate status: want cancelled got=%v", out.Candidate)
	}
	for _, s := range steps {
		for _, r := range f.remindersForStep(t, s.ID) {
			if r.Status != types.ReminderStatusCompleted {
				t.Fatalf("reminder of %s: want completed got=%s", s.ID, r.Status)
			}
		}
	}
	if jobs := f.pendingJobs(t); len(jobs) != 0 {
		t.Fatalf("pending jobs: want=0 got=%d", len(jobs))
	}

	var pcRow types.ProcessingCandidate
	if err := f.db.Where("id = ?", pc.ID).First(&pcRow).Error; err != nil {
		t.Fatalf("load candidate: %v", err)
	}
	if pcRow.ProcessingStatus != types.CandidateStatusCancelled {
		t.Fatalf("stored candidate: want cancelled got=%s", pcRow.ProcessingStatus)
	}
}

func TestNegativeOutcomeCancelsReminders(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	_, steps := f.seedSteps(t, "AE", "medical", "hrd")
	if _, err := f.reminders.CreateOrReset(f.ctx, ReminderScheduleInput{StepID: steps[1].ID}); err != nil {
		t.Fatalf("CreateOrReset: %v", err)
	}

	out, err := f.processing.CompleteStep(f.ctx, domainagg.CompleteStepInput{
		StepID:        steps[0].ID,
		OutcomePassed: boolPtr(false),
		OutcomeNotes:  "unfit",
	})
	if err != nil {
		t.Fatalf("CompleteStep: %v", err)
	}
	if !out.Cancelled {
		t.Fatalf("cancelled: want=true got=false")
	}
	rems := f.remindersForStep(t, steps[1].ID)
	if len(rems) != 1 || rems[0].Status != types.ReminderStatusCompleted {
		t.Fatalf("hrd reminder: want completed")
	}
}

func TestCompleteStepRequiresOutcome(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	_, steps := f.seedSteps(t, "medical")

	_, err := f.processing.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: steps[0].ID})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("CompleteStep: want validation got=%v", err)
	}
}

func TestUpdateStepRedirectsCompletion(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	_, steps := f.seedSteps(t, "AE", "offer_letter", "prometric")

	step, err := f.processing.UpdateStep(f.ctx, UpdateStepRequest{
		StepID: steps[0].ID,
		Patch:  domainagg.StepPatch{Status: strPtr("completed"), Notes: strPtr("signed")},
	})
	if err != nil {
		t.Fatalf("UpdateStep: %v", err)
	}
	if step.Status != types.StepStatusCompleted {
		t.Fatalf("status: want=completed got=%s", step.Status)
	}
	if stored := f.step(t, steps[0].ID); stored.Notes != "signed" || stored.CompletedAt == nil {
		t.Fatalf("stored step: notes=%q completed_at=%v", stored.Notes, stored.CompletedAt)
	}
	if next := f.step(t, steps[1].ID); next.Status != types.StepStatusInProgress {
		t.Fatalf("next step: want in_progress got=%s", next.Status)
	}
}

func TestUpdateStepCompletionBlockedLeavesPatchUnapplied(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	pc, steps := f.seedSteps(t, "AE", "hrd", "visa")
	hrd := steps[0]
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, types.CountryAll, "passport", true)
	countHistory := func() int64 {
		var n int64
		if err := f.db.Model(&types.ProcessingHistory{}).Where("processing_candidate_id = ?", pc.ID).Count(&n).Error; err != nil {
			t.Fatalf("count history: %v", err)
		}
		return n
	}
	before := countHistory()
	assignee := uuid.New()

	_, err := f.processing.UpdateStep(f.ctx, UpdateStepRequest{
		StepID: hrd.ID,
		Patch:  domainagg.StepPatch{Status: strPtr("completed"), Notes: strPtr("done"), AssignedTo: &assignee},
	})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("UpdateStep: want validation got=%v", err)
	}
	stored := f.step(t, hrd.ID)
	if stored.Status != types.StepStatusInProgress {
		t.Fatalf("status: want=in_progress got=%s", stored.Status)
	}
	if stored.Notes == "done" || stored.AssignedTo != nil {
		t.Fatalf("patch fields: want untouched got notes=%q assigned=%v", stored.Notes, stored.AssignedTo)
	}
	if after := countHistory(); after != before {
		t.Fatalf("history rows: want=%d got=%d", before, after)
	}

	testutil.SeedDocument(t, f.ctx, f.db, hrd, "passport", types.DocumentStatusVerified)
	step, err := f.processing.UpdateStep(f.ctx, UpdateStepRequest{
		StepID: hrd.ID,
		Patch:  domainagg.StepPatch{Status: strPtr("completed"), Notes: strPtr("done"), AssignedTo: &assignee},
	})
	if err != nil {
		t.Fatalf("UpdateStep after upload: %v", err)
	}
	if step.Status != types.StepStatusCompleted || step.Notes != "done" || step.AssignedTo == nil || *step.AssignedTo != assignee {
		t.Fatalf("step: status=%s notes=%q assigned=%v", step.Status, step.Notes, step.AssignedTo)
	}
}

func TestUpdateStepRedirectsCancellation(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	_, steps := f.seedSteps(t, "AE", "offer_letter", "prometric")

	step, err := f.processing.UpdateStep(f.ctx, UpdateStepRequest{
		StepID: steps[0].ID,
		Patch:  domainagg.StepPatch{Status: strPtr("Cancelled"), RejectionReason: strPtr("duplicate record")},
	})
	if err != nil {
		t.Fatalf("UpdateStep: %v", err)
	}
	if step.Status != types.StepStatusCancelled || step.RejectionReason != "duplicate record" {
		t.Fatalf("step: status=%s reason=%q", step.Status, step.RejectionReason)
	}
	if other := f.step(t, steps[1].ID); other.Status != types.StepStatusCancelled {
		t.Fatalf("sibling: want cancelled got=%s", other.Status)
	}
}

func TestUpdateStepAppliesPlainPatch(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	_, steps := f.seedSteps(t, "AE", "offer_letter")
	assignee := uuid.New()

	step, err := f.processing.UpdateStep(f.ctx, UpdateStepRequest{
		StepID: steps[0].ID,
		Patch:  domainagg.StepPatch{AssignedTo: &assignee, ExternalReference: strPtr("OL-17")},
	})
	if err != nil {
		t.Fatalf("UpdateStep: %v", err)
	}
	if step.AssignedTo == nil || *step.AssignedTo != assignee || step.ExternalReference != "OL-17" {
		t.Fatalf("step: assigned=%v ref=%q", step.AssignedTo, step.ExternalReference)
	}
}

func TestGetStageRequirementsAppliesCountryOverrides(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	pc, steps := f.seedSteps(t, "AE", "offer_letter", "hrd")
	hrd := steps[1]
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, "ALL", "passport", true)
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, "ALL", "police_clearance", false)
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, "AE", "police_clearance", true)
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, "ALL", "photo", false)
	testutil.SeedRequirement(t, f.ctx, f.db, hrd.TemplateID, "SA", "degree", true)
	testutil.SeedDocument(t, f.ctx, f.db, hrd, "passport", types.DocumentStatusPending)

	res, err := f.processing.GetStageRequirements(f.ctx, "HRD", pc.ID, "")
	if err != nil {
		t.Fatalf("GetStageRequirements: %v", err)
	}
	if res.CountryCode != "AE" || len(res.Requirements) != 3 {
		t.Fatalf("requirements: country=%s count=%d", res.CountryCode, len(res.Requirements))
	}
	var police types.Requirement
	for _, r := range res.Requirements {
		if r.DocType == "police_clearance" {
			police = r
		}
	}
	if !police.Mandatory || police.Source != "AE" {
		t.Fatalf("police_clearance: want mandatory from AE got=%+v", police)
	}
	if len(res.Missing) != 1 || res.Missing[0] != "police_clearance" {
		t.Fatalf("missing: want=[police_clearance] got=%v", res.Missing)
	}
	if res.CanComplete || !res.Stage.DocumentGated {
		t.Fatalf("can_complete: want=false got=true")
	}

	filtered, err := f.processing.GetStageRequirements(f.ctx, "hrd", pc.ID, "passport")
	if err != nil {
		t.Fatalf("GetStageRequirements filtered: %v", err)
	}
	if len(filtered.Requirements) != 1 || len(filtered.Documents) != 1 || len(filtered.Missing) != 0 {
		t.Fatalf("filtered: reqs=%d docs=%d missing=%v", len(filtered.Requirements), len(filtered.Documents), filtered.Missing)
	}
	if filtered.CanComplete {
		t.Fatalf("filtered can_complete must reflect every requirement")
	}

	if _, err := f.processing.GetStageRequirements(f.ctx, "visa", pc.ID, ""); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown step: want not_found got=%v", err)
	}
	if _, err := f.processing.GetStageRequirements(f.ctx, "hrd", uuid.New(), ""); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown candidate: want not_found got=%v", err)
	}
}

func TestDocumentsGateCompletion(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	pc, steps := f.seedSteps(t, "AE", "hrd")
	testutil.SeedRequirement(t, f.ctx, f.db, steps[0].TemplateID, "ALL", "passport", true)

	_, err := f.processing.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: steps[0].ID})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("complete without documents: want validation got=%v", err)
	}
	if d := domainagg.DetailsOf(err); len(d) != 1 || d[0] != "passport" {
		t.Fatalf("details: want=[passport] got=%v", d)
	}

	doc, err := f.processing.RecordDocument(f.ctx, RecordDocumentInput{StepID: steps[0].ID, DocType: "passport", FileName: "passport.pdf"})
	if err != nil {
		t.Fatalf("RecordDocument: %v", err)
	}
	if doc.Status != types.DocumentStatusPending || doc.ProcessingCandidateID != pc.ID {
		t.Fatalf("document: status=%s pc=%s", doc.Status, doc.ProcessingCandidateID)
	}

	if _, err := f.processing.VerifyDocument(f.ctx, VerifyDocumentInput{DocumentID: doc.ID, Status: "rejected"}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("reject without reason: want validation got=%v", err)
	}
	rejected, err := f.processing.VerifyDocument(f.ctx, VerifyDocumentInput{DocumentID: doc.ID, Status: "rejected", Reason: "blurred scan"})
	if err != nil {
		t.Fatalf("VerifyDocument rejected: %v", err)
	}
	if rejected.Status != types.DocumentStatusRejected || rejected.RejectionReason != "blurred scan" {
		t.Fatalf("rejected: status=%s reason=%q", rejected.Status, rejected.RejectionReason)
	}
	if _, err := f.processing.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: steps[0].ID}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("complete with rejected document: want validation got=%v", err)
	}

	actor := uuid.New()
	verified, err := f.processing.VerifyDocument(f.ctx, VerifyDocumentInput{DocumentID: doc.ID, Status: "verified", ActorID: &actor})
	if err != nil {
		t.Fatalf("VerifyDocument verified: %v", err)
	}
	if verified.VerifiedBy == nil || *verified.VerifiedBy != actor || verified.VerifiedAt == nil || verified.RejectionReason != "" {
		t.Fatalf("verified: by=%v at=%v reason=%q", verified.VerifiedBy, verified.VerifiedAt, verified.RejectionReason)
	}
	if _, err := f.processing.CompleteStep(f.ctx, domainagg.CompleteStepInput{StepID: steps[0].ID}); err != nil {
		t.Fatalf("complete with verified document: %v", err)
	}

	_, err = f.processing.RecordDocument(f.ctx, RecordDocumentInput{StepID: steps[0].ID, DocType: "photo"})
	if !domainagg.IsCode(err, domainagg.CodeInvariantViolation) {
		t.Fatalf("record on completed step: want invariant_violation got=%v", err)
	}

	history, err := f.processing.ListHistory(f.ctx, pc.ID, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	docEvents := 0
	for _, h := range history {
		if strings.HasPrefix(h.Notes, "document passport") {
			docEvents++
		}
	}
	if docEvents != 3 {
		t.Fatalf("document history rows: want=3 got=%d", docEvents)
	}
}

func TestGetCandidateProcessingMaterializesSteps(t *testing.T) {
	f := newServiceFixture(t, fixtureOptions{})
	pc := testutil.SeedProcessingCandidate(t, f.ctx, f.db, "AE", "", types.CandidateStatusInProgress)
	testutil.SeedCatalog(t, f.ctx, f.db, "offer_letter", "hrd", "visa")

	got, err := f.processing.GetCandidateProcessing(f.ctx, pc.ID)
	if err != nil {
		t.Fatalf("GetCandidateProcessing: %v", err)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("steps: want=3 got=%d", len(got.Steps))
	}
	if got.Steps[0].Status != types.StepStatusInProgress || got.Steps[1].Status != types.StepStatusPending {
		t.Fatalf("statuses: first=%s second=%s", got.Steps[0].Status, got.Steps[1].Status)
	}

	again, err := f.processing.GetCandidateProcessing(f.ctx, pc.ID)
	if err != nil {
		t.Fatalf("GetCandidateProcessing again: %v", err)
	}
	if len(again.Steps) != 3 {
		t.Fatalf("steps after second read: want=3 got=%d", len(again.Steps))
	}

	if _, err := f.processing.GetCandidateProcessing(f.ctx, uuid.New()); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing candidate: want not_found got=%v", err)
	}
	if _, err := f.processing.ListHistory(f.ctx, uuid.New(), 10); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing candidate history: want not_found got=%v", err)
	}
}
