package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/processing-backend/internal/domain"
	"gorm.io/gorm"
)

func SeedCandidate(tb testing.TB, ctx context.Context, tx *gorm.DB, country string) *types.Candidate {
	tb.Helper()
	c := &types.Candidate{
		ID:          uuid.New(),
		FirstName:   "Asha",
		LastName:    "Nair",
		CountryCode: country,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed candidate: %v", err)
	}
	return c
}

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, country string) *types.Project {
	tb.Helper()
	p := &types.Project{
		ID:          uuid.New(),
		Name:        "Hospital staffing",
		CountryCode: country,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

// SeedProcessingCandidate creates a candidate, a project and the processing record linking them.
func SeedProcessingCandidate(tb testing.TB, ctx context.Context, tx *gorm.DB, projectCountry, candidateCountry, status string) *types.ProcessingCandidate {
	tb.Helper()
	cand := SeedCandidate(tb, ctx, tx, candidateCountry)
	proj := SeedProject(tb, ctx, tx, projectCountry)
	owner := uuid.New()
	pc := &types.ProcessingCandidate{
		ID:                       uuid.New(),
		CandidateID:              cand.ID,
		ProjectID:                proj.ID,
		RoleID:                   uuid.New(),
		AssignedProcessingUserID: &owner,
		ProcessingStatus:         status,
	}
	if err := tx.WithContext(ctx).Create(pc).Error; err != nil {
		tb.Fatalf("seed processing candidate: %v", err)
	}
	return pc
}

func SeedTemplate(tb testing.TB, ctx context.Context, tx *gorm.DB, key string, order int) *types.ProcessingStepTemplate {
	tb.Helper()
	t := &types.ProcessingStepTemplate{
		ID:           uuid.New(),
		Key:          key,
		Label:        key,
		DefaultOrder: order,
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed template: %v", err)
	}
	return t
}

// SeedCatalog creates one template per key with DefaultOrder 1..n.
func SeedCatalog(tb testing.TB, ctx context.Context, tx *gorm.DB, keys ...string) []*types.ProcessingStepTemplate {
	tb.Helper()
	out := make([]*types.ProcessingStepTemplate, 0, len(keys))
	for i, k := range keys {
		out = append(out, SeedTemplate(tb, ctx, tx, k, i+1))
	}
	return out
}

func SeedCountryStep(tb testing.TB, ctx context.Context, tx *gorm.DB, country string, templateID uuid.UUID, position int) *types.ProcessingCountryStep {
	tb.Helper()
	s := &types.ProcessingCountryStep{
		ID:          uuid.New(),
		CountryCode: country,
		TemplateID:  templateID,
		Position:    position,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed country step: %v", err)
	}
	return s
}

func SeedRequirement(tb testing.TB, ctx context.Context, tx *gorm.DB, templateID uuid.UUID, country, docType string, mandatory bool) *types.CountryDocumentRequirement {
	tb.Helper()
	r := &types.CountryDocumentRequirement{
		ID:          uuid.New(),
		TemplateID:  templateID,
		CountryCode: country,
		DocType:     docType,
		Label:       docType,
		Mandatory:   mandatory,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed requirement: %v", err)
	}
	return r
}

func SeedStep(tb testing.TB, ctx context.Context, tx *gorm.DB, processingCandidateID, templateID uuid.UUID, order int, status string) *types.ProcessingStep {
	tb.Helper()
	s := &types.ProcessingStep{
		ID:                    uuid.New(),
		ProcessingCandidateID: processingCandidateID,
		TemplateID:            templateID,
		StepOrder:             order,
		Status:                status,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed step: %v", err)
	}
	return s
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, step *types.ProcessingStep, docType, status string) *types.ProcessingDocument {
	tb.Helper()
	d := &types.ProcessingDocument{
		ID:                    uuid.New(),
		ProcessingStepID:      step.ID,
		ProcessingCandidateID: step.ProcessingCandidateID,
		DocType:               docType,
		FileName:              docType + ".pdf",
		Status:                status,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedReminder(tb testing.TB, ctx context.Context, tx *gorm.DB, family string, stepID, processingCandidateID uuid.UUID, assignedTo *uuid.UUID, scheduledFor time.Time, status string) *types.Reminder {
	tb.Helper()
	r := &types.Reminder{
		ID:                    uuid.New(),
		Family:                family,
		ProcessingStepID:      stepID,
		ProcessingCandidateID: processingCandidateID,
		AssignedTo:            assignedTo,
		ScheduledFor:          scheduledFor.UTC(),
		Status:                status,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed reminder: %v", err)
	}
	return r
}
