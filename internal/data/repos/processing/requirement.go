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

type RequirementRepo interface {
	// ListForTemplate returns the CountryAll rows plus the rows for countryCode, unmerged.
	ListForTemplate(dbc dbctx.Context, templateID uuid.UUID, countryCode string) ([]*types.CountryDocumentRequirement, error)
	Upsert(dbc dbctx.Context, row *types.CountryDocumentRequirement) error
}

type requirementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequirementRepo(db *gorm.DB, baseLog *logger.Logger) RequirementRepo {
	return &requirementRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentRequirementRepo"),
	}
}

func (r *requirementRepo) ListForTemplate(dbc dbctx.Context, templateID uuid.UUID, countryCode string) ([]*types.CountryDocumentRequirement, error) {
	var out []*types.CountryDocumentRequirement
	if templateID == uuid.Nil {
		return out, nil
	}
	countries := []string{types.CountryAll}
	if code := strings.ToUpper(strings.TrimSpace(countryCode)); code != "" && code != types.CountryAll {
		countries = append(countries, code)
	}
	if err := dbc.DB(r.db).
		Where("template_id = ? AND country_code IN ?", templateID, countries).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *requirementRepo) Upsert(dbc dbctx.Context, row *types.CountryDocumentRequirement) error {
	if row == nil {
		return nil
	}
	row.CountryCode = strings.ToUpper(strings.TrimSpace(row.CountryCode))
	if row.CountryCode == "" {
		row.CountryCode = types.CountryAll
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "template_id"}, {Name: "country_code"}, {Name: "doc_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "mandatory", "updated_at"}),
		}).
		Create(row).Error
}
