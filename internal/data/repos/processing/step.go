package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/processing-backend/internal/domain"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type StepRepo interface {
	// CreateIfAbsent inserts the step unless (processing_candidate_id, template_id) already exists.
	CreateIfAbsent(dbc dbctx.Context, step *types.ProcessingStep) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingStep, error)
	GetByCandidateAndKey(dbc dbctx.Context, processingCandidateID uuid.UUID, key string) (*types.ProcessingStep, error)
	ListByCandidate(dbc dbctx.Context, processingCandidateID uuid.UUID) ([]*types.ProcessingStep, error)
	ListIDsByCandidate(dbc dbctx.Context, processingCandidateID uuid.UUID) ([]uuid.UUID, error)
	// FirstByStatus returns the lowest-order step in status, or nil.
	FirstByStatus(dbc dbctx.Context, processingCandidateID uuid.UUID, status string) (*types.ProcessingStep, error)
	CountByStatus(dbc dbctx.Context, processingCandidateID uuid.UUID, status string) (int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// CancelOpenSiblings cancels every pending/in_progress step of the candidate except exceptID.
	// The status filter is evaluated by the UPDATE itself, so steps that reached a terminal
	// status concurrently are left untouched.
	CancelOpenSiblings(dbc dbctx.Context, processingCandidateID, exceptID uuid.UUID, reason string, at time.Time) (int64, error)
}

type stepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStepRepo(db *gorm.DB, baseLog *logger.Logger) StepRepo {
	return &stepRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingStepRepo"),
	}
}

func (r *stepRepo) CreateIfAbsent(dbc dbctx.Context, step *types.ProcessingStep) (bool, error) {
	if step == nil {
		return false, nil
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "processing_candidate_id"}, {Name: "template_id"}},
			DoNothing: true,
		}).
		Create(step)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *stepRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingStep, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var step types.ProcessingStep
	err := dbc.DB(r.db).
		Preload("Template").
		Where("id = ?", id).
		Limit(1).
		Find(&step).Error
	if err != nil {
		return nil, err
	}
	if step.ID == uuid.Nil {
		return nil, nil
	}
	return &step, nil
}

func (r *stepRepo) GetByCandidateAndKey(dbc dbctx.Context, processingCandidateID uuid.UUID, key string) (*types.ProcessingStep, error) {
	if processingCandidateID == uuid.Nil || key == "" {
		return nil, nil
	}
	var step types.ProcessingStep
	err := dbc.DB(r.db).
		Preload("Template").
		Joins("JOIN processing_step_template t ON t.id = processing_step.template_id").
		Where("processing_step.processing_candidate_id = ? AND t.step_key = ?", processingCandidateID, key).
		Limit(1).
		Find(&step).Error
	if err != nil {
		return nil, err
	}
	if step.ID == uuid.Nil {
		return nil, nil
	}
	return &step, nil
}

func (r *stepRepo) ListByCandidate(dbc dbctx.Context, processingCandidateID uuid.UUID) ([]*types.ProcessingStep, error) {
	var out []*types.ProcessingStep
	if processingCandidateID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Preload("Template").
		Where("processing_candidate_id = ?", processingCandidateID).
		Order("step_order ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stepRepo) ListIDsByCandidate(dbc dbctx.Context, processingCandidateID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if processingCandidateID == uuid.Nil {
		return ids, nil
	}
	if err := dbc.DB(r.db).
		Model(&types.ProcessingStep{}).
		Where("processing_candidate_id = ?", processingCandidateID).
		Order("step_order ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *stepRepo) FirstByStatus(dbc dbctx.Context, processingCandidateID uuid.UUID, status string) (*types.ProcessingStep, error) {
	var step types.ProcessingStep
	err := dbc.DB(r.db).
		Preload("Template").
		Where("processing_candidate_id = ? AND status = ?", processingCandidateID, status).
		Order("step_order ASC").
		Limit(1).
		Find(&step).Error
	if err != nil {
		return nil, err
	}
	if step.ID == uuid.Nil {
		return nil, nil
	}
	return &step, nil
}

func (r *stepRepo) CountByStatus(dbc dbctx.Context, processingCandidateID uuid.UUID, status string) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.ProcessingStep{}).
		Where("processing_candidate_id = ? AND status = ?", processingCandidateID, status).
		Count(&n).Error
	return n, err
}

func (r *stepRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.ProcessingStep{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *stepRepo) CancelOpenSiblings(dbc dbctx.Context, processingCandidateID, exceptID uuid.UUID, reason string, at time.Time) (int64, error) {
	res := dbc.DB(r.db).
		Model(&types.ProcessingStep{}).
		Where("processing_candidate_id = ? AND id <> ? AND status IN ?", processingCandidateID, exceptID, []string{types.StepStatusPending, types.StepStatusInProgress}).
		Updates(map[string]interface{}{
			"status":           types.StepStatusCancelled,
			"rejection_reason": reason,
			"updated_at":       at.UTC(),
		})
	return res.RowsAffected, res.Error
}
