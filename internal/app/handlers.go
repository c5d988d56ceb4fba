package app

import (
	httpH "github.com/yungbote/processing-backend/internal/http/handlers"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Processing *httpH.ProcessingHandler
	Reminder   *httpH.ReminderHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services, checks ...httpH.DependencyCheck) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(checks...),
		Processing: httpH.NewProcessingHandler(log, services.Processing, cfg.Reminder.Location),
		Reminder:   httpH.NewReminderHandler(services.Reminders, services.ReminderSettings),
	}
}
