package app

import (
	"gorm.io/gorm"

	processingrepo "github.com/yungbote/processing-backend/internal/data/repos/processing"
	reminderrepo "github.com/yungbote/processing-backend/internal/data/repos/reminders"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type Repos struct {
	Candidate   processingrepo.CandidateRepo
	Template    processingrepo.TemplateRepo
	Step        processingrepo.StepRepo
	History     processingrepo.HistoryRepo
	Requirement processingrepo.RequirementRepo
	Document    processingrepo.DocumentRepo

	Reminder        reminderrepo.ReminderRepo
	ReminderSetting reminderrepo.SettingRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Candidate:   processingrepo.NewCandidateRepo(db, log),
		Template:    processingrepo.NewTemplateRepo(db, log),
		Step:        processingrepo.NewStepRepo(db, log),
		History:     processingrepo.NewHistoryRepo(db, log),
		Requirement: processingrepo.NewRequirementRepo(db, log),
		Document:    processingrepo.NewDocumentRepo(db, log),

		Reminder:        reminderrepo.NewReminderRepo(db, log),
		ReminderSetting: reminderrepo.NewSettingRepo(db, log),
	}
}
