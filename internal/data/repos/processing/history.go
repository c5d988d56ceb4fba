package processing

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/processing-backend/internal/domain"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type HistoryRepo interface {
	Create(dbc dbctx.Context, rows ...*types.ProcessingHistory) error
	// ListByCandidate returns the audit trail newest first.
	ListByCandidate(dbc dbctx.Context, processingCandidateID uuid.UUID, limit int) ([]*types.ProcessingHistory, error)
}

type historyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHistoryRepo(db *gorm.DB, baseLog *logger.Logger) HistoryRepo {
	return &historyRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingHistoryRepo"),
	}
}

func (r *historyRepo) Create(dbc dbctx.Context, rows ...*types.ProcessingHistory) error {
	clean := make([]*types.ProcessingHistory, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			clean = append(clean, row)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return dbc.DB(r.db).Create(&clean).Error
}

func (r *historyRepo) ListByCandidate(dbc dbctx.Context, processingCandidateID uuid.UUID, limit int) ([]*types.ProcessingHistory, error) {
	var out []*types.ProcessingHistory
	if processingCandidateID == uuid.Nil {
		return out, nil
	}
	q := dbc.DB(r.db).
		Where("processing_candidate_id = ?", processingCandidateID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
