package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/processing-backend/internal/domain"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.ProcessingDocument) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingDocument, error)
	ListByStep(dbc dbctx.Context, stepID uuid.UUID) ([]*types.ProcessingDocument, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingDocumentRepo"),
	}
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.ProcessingDocument) error {
	if doc == nil {
		return nil
	}
	return dbc.DB(r.db).Create(doc).Error
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingDocument, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var doc types.ProcessingDocument
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *documentRepo) ListByStep(dbc dbctx.Context, stepID uuid.UUID) ([]*types.ProcessingDocument, error) {
	var out []*types.ProcessingDocument
	if stepID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("processing_step_id = ?", stepID).
		Order("doc_type ASC").
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.ProcessingDocument{}).
		Where("id = ?", id).
		Updates(updates).Error
}
