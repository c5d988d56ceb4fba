package reminders

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/processing-backend/internal/domain"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type SettingRepo interface {
	Get(dbc dbctx.Context, family string) (*types.ReminderSetting, error)
	Upsert(dbc dbctx.Context, row *types.ReminderSetting) error
}

type settingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSettingRepo(db *gorm.DB, baseLog *logger.Logger) SettingRepo {
	return &settingRepo{
		db:  db,
		log: baseLog.With("repo", "ReminderSettingRepo"),
	}
}

func (r *settingRepo) Get(dbc dbctx.Context, family string) (*types.ReminderSetting, error) {
	family = strings.ToLower(strings.TrimSpace(family))
	if family == "" {
		return nil, nil
	}
	var row types.ReminderSetting
	if err := dbc.DB(r.db).Where("family = ?", family).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.Family == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *settingRepo) Upsert(dbc dbctx.Context, row *types.ReminderSetting) error {
	if row == nil {
		return nil
	}
	row.Family = strings.ToLower(strings.TrimSpace(row.Family))
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "family"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
		}).
		Create(row).Error
}
