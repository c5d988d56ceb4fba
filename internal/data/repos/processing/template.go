package processing

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/processing-backend/internal/domain"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type TemplateRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingStepTemplate, error)
	GetByKey(dbc dbctx.Context, key string) (*types.ProcessingStepTemplate, error)
	// ListCatalog returns every template ordered by DefaultOrder.
	ListCatalog(dbc dbctx.Context) ([]*types.ProcessingStepTemplate, error)
	// ListCountryPlan returns the country-specific plan ordered by Position. Empty when no plan exists.
	ListCountryPlan(dbc dbctx.Context, countryCode string) ([]*types.PlanEntry, error)
	UpsertTemplate(dbc dbctx.Context, t *types.ProcessingStepTemplate) error
	UpsertCountryStep(dbc dbctx.Context, s *types.ProcessingCountryStep) error
}

type templateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateRepo(db *gorm.DB, baseLog *logger.Logger) TemplateRepo {
	return &templateRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingTemplateRepo"),
	}
}

func (r *templateRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingStepTemplate, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var t types.ProcessingStepTemplate
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func (r *templateRepo) GetByKey(dbc dbctx.Context, key string) (*types.ProcessingStepTemplate, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return nil, nil
	}
	var t types.ProcessingStepTemplate
	if err := dbc.DB(r.db).Where("step_key = ?", key).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func (r *templateRepo) ListCatalog(dbc dbctx.Context) ([]*types.ProcessingStepTemplate, error) {
	var out []*types.ProcessingStepTemplate
	if err := dbc.DB(r.db).
		Order("default_order ASC").
		Order("step_key ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *templateRepo) ListCountryPlan(dbc dbctx.Context, countryCode string) ([]*types.PlanEntry, error) {
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	out := []*types.PlanEntry{}
	if countryCode == "" {
		return out, nil
	}
	var rows []*types.ProcessingCountryStep
	if err := dbc.DB(r.db).
		Preload("Template").
		Where("country_code = ?", countryCode).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row == nil || row.Template == nil {
			continue
		}
		out = append(out, &types.PlanEntry{Template: row.Template, Order: row.Position})
	}
	return out, nil
}

func (r *templateRepo) UpsertTemplate(dbc dbctx.Context, t *types.ProcessingStepTemplate) error {
	if t == nil {
		return nil
	}
	t.Key = strings.ToLower(strings.TrimSpace(t.Key))
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "step_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "default_order", "updated_at"}),
		}).
		Create(t).Error
}

func (r *templateRepo) UpsertCountryStep(dbc dbctx.Context, s *types.ProcessingCountryStep) error {
	if s == nil {
		return nil
	}
	s.CountryCode = strings.ToUpper(strings.TrimSpace(s.CountryCode))
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "country_code"}, {Name: "template_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "updated_at"}),
		}).
		Create(s).Error
}
