package processing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/processing-backend/internal/domain"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type CandidateRepo interface {
	Create(dbc dbctx.Context, pc *types.ProcessingCandidate) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingCandidate, error)
	// GetByIDForUpdate row-locks the processing record for the rest of the transaction.
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingCandidate, error)
	GetByAssignment(dbc dbctx.Context, candidateID, projectID, roleID uuid.UUID) (*types.ProcessingCandidate, error)
	// ResolveCountry returns the project country, falling back to the candidate's own country.
	ResolveCountry(dbc dbctx.Context, pc *types.ProcessingCandidate) (string, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type candidateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCandidateRepo(db *gorm.DB, baseLog *logger.Logger) CandidateRepo {
	return &candidateRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingCandidateRepo"),
	}
}

func (r *candidateRepo) Create(dbc dbctx.Context, pc *types.ProcessingCandidate) error {
	if pc == nil {
		return nil
	}
	return dbc.DB(r.db).Create(pc).Error
}

func (r *candidateRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingCandidate, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var pc types.ProcessingCandidate
	err := dbc.DB(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&pc).Error
	if err != nil {
		return nil, err
	}
	if pc.ID == uuid.Nil {
		return nil, nil
	}
	return &pc, nil
}

func (r *candidateRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingCandidate, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var pc types.ProcessingCandidate
	err := dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&pc).Error
	if err != nil {
		return nil, err
	}
	if pc.ID == uuid.Nil {
		return nil, nil
	}
	return &pc, nil
}

func (r *candidateRepo) GetByAssignment(dbc dbctx.Context, candidateID, projectID, roleID uuid.UUID) (*types.ProcessingCandidate, error) {
	var pc types.ProcessingCandidate
	err := dbc.DB(r.db).
		Where("candidate_id = ? AND project_id = ? AND role_id = ?", candidateID, projectID, roleID).
		Limit(1).
		Find(&pc).Error
	if err != nil {
		return nil, err
	}
	if pc.ID == uuid.Nil {
		return nil, nil
	}
	return &pc, nil
}

func (r *candidateRepo) ResolveCountry(dbc dbctx.Context, pc *types.ProcessingCandidate) (string, error) {
	if pc == nil {
		return "", nil
	}
	db := dbc.DB(r.db)

	var project types.Project
	if pc.ProjectID != uuid.Nil {
		if err := db.Where("id = ?", pc.ProjectID).Limit(1).Find(&project).Error; err != nil {
			return "", err
		}
		if code := strings.ToUpper(strings.TrimSpace(project.CountryCode)); code != "" {
			return code, nil
		}
	}

	var cand types.Candidate
	if pc.CandidateID != uuid.Nil {
		if err := db.Where("id = ?", pc.CandidateID).Limit(1).Find(&cand).Error; err != nil {
			return "", err
		}
	}
	return strings.ToUpper(strings.TrimSpace(cand.CountryCode)), nil
}

func (r *candidateRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.ProcessingCandidate{}).
		Where("id = ?", id).
		Updates(updates).Error
}
