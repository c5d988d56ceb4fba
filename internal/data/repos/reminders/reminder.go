package reminders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/processing-backend/internal/domain"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

// MineFilter selects a page of a user's active reminders.
type MineFilter struct {
	UserID   uuid.UUID
	SentOnly bool
	Limit    int
	Offset   int
}

type ReminderRepo interface {
	Create(dbc dbctx.Context, r *types.Reminder) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Reminder, error)
	// LatestForStep returns the most recently updated reminder of family for the step, any status.
	LatestForStep(dbc dbctx.Context, stepID uuid.UUID, family string) (*types.Reminder, error)
	ListActiveForStep(dbc dbctx.Context, stepID uuid.UUID) ([]*types.Reminder, error)
	// ListActive pages through every pending/sent reminder ordered by id.
	ListActive(dbc dbctx.Context, afterID uuid.UUID, limit int) ([]*types.Reminder, error)
	ListMine(dbc dbctx.Context, f MineFilter) ([]*types.Reminder, int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateIfVersion applies updates and bumps the version only while the row is still at version
	// and not completed. Reports whether the row changed.
	UpdateIfVersion(dbc dbctx.Context, id uuid.UUID, version int64, updates map[string]interface{}) (bool, error)
	// MarkCompleted completes the given reminders unless already completed. Returns the number changed.
	MarkCompleted(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type reminderRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReminderRepo(db *gorm.DB, baseLog *logger.Logger) ReminderRepo {
	return &reminderRepo{
		db:  db,
		log: baseLog.With("repo", "ReminderRepo"),
	}
}

func (r *reminderRepo) Create(dbc dbctx.Context, rem *types.Reminder) error {
	if rem == nil {
		return nil
	}
	return dbc.DB(r.db).Create(rem).Error
}

func (r *reminderRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Reminder, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var rem types.Reminder
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rem).Error; err != nil {
		return nil, err
	}
	if rem.ID == uuid.Nil {
		return nil, nil
	}
	return &rem, nil
}

func (r *reminderRepo) LatestForStep(dbc dbctx.Context, stepID uuid.UUID, family string) (*types.Reminder, error) {
	if stepID == uuid.Nil {
		return nil, nil
	}
	q := dbc.DB(r.db).Where("processing_step_id = ?", stepID)
	if family = strings.TrimSpace(family); family != "" {
		q = q.Where("family = ?", family)
	}
	var rem types.Reminder
	if err := q.Order("updated_at DESC").Limit(1).Find(&rem).Error; err != nil {
		return nil, err
	}
	if rem.ID == uuid.Nil {
		return nil, nil
	}
	return &rem, nil
}

func (r *reminderRepo) ListActiveForStep(dbc dbctx.Context, stepID uuid.UUID) ([]*types.Reminder, error) {
	var out []*types.Reminder
	if stepID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("processing_step_id = ? AND status <> ?", stepID, types.ReminderStatusCompleted).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reminderRepo) ListActive(dbc dbctx.Context, afterID uuid.UUID, limit int) ([]*types.Reminder, error) {
	if limit <= 0 {
		limit = 200
	}
	q := dbc.DB(r.db).Where("status IN ?", []string{types.ReminderStatusPending, types.ReminderStatusSent})
	if afterID != uuid.Nil {
		q = q.Where("id > ?", afterID)
	}
	var out []*types.Reminder
	if err := q.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// mineQuery builds the filtered, unpaged "my reminders" query.
func mineQuery(db *gorm.DB, f MineFilter) *gorm.DB {
	q := db.Model(&types.Reminder{}).
		Where("assigned_to = ?", f.UserID).
		Where("status IN ?", []string{types.ReminderStatusPending, types.ReminderStatusSent})
	if f.SentOnly {
		q = q.Where("sent_at IS NOT NULL")
	}
	return q
}

// minePageQuery orders and pages mineQuery.
func minePageQuery(db *gorm.DB, f MineFilter) *gorm.DB {
	return mineQuery(db, f).
		Order("scheduled_for ASC").
		Limit(f.Limit).
		Offset(f.Offset)
}

func (r *reminderRepo) ListMine(dbc dbctx.Context, f MineFilter) ([]*types.Reminder, int64, error) {
	out := []*types.Reminder{}
	if f.UserID == uuid.Nil {
		return out, 0, nil
	}
	var total int64
	if err := mineQuery(dbc.DB(r.db), f).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := minePageQuery(dbc.DB(r.db), f).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *reminderRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.Reminder{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *reminderRepo) UpdateIfVersion(dbc dbctx.Context, id uuid.UUID, version int64, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	updates["version"] = gorm.Expr("version + 1")
	res := dbc.DB(r.db).
		Model(&types.Reminder{}).
		Where("id = ? AND version = ? AND status <> ?", id, version, types.ReminderStatusCompleted).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *reminderRepo) MarkCompleted(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Model(&types.Reminder{}).
		Where("id IN ? AND status <> ?", ids, types.ReminderStatusCompleted).
		Updates(map[string]interface{}{
			"status":     types.ReminderStatusCompleted,
			"job_id":     "",
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
