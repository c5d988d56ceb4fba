package app

import (
	"fmt"

	"gorm.io/gorm"

	dataagg "github.com/yungbote/processing-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/processing-backend/internal/domain/aggregates"
	jobruntime "github.com/yungbote/processing-backend/internal/jobs/runtime"
	"github.com/yungbote/processing-backend/internal/jobs/worker"
	"github.com/yungbote/processing-backend/internal/observability"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/services"
	"github.com/yungbote/processing-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Auth services.AuthService

	ProcessingAggregate domainagg.ProcessingStepAggregate
	Processing          services.ProcessingService

	ReminderSettings services.ReminderSettingsProvider
	Reminders        services.ReminderService
	ReminderDelivery *services.ReminderDelivery
	Notifier         services.ReminderNotifier
	CatalogSeeder    *services.CatalogSeeder

	// Job infra
	JobRegistry    *jobruntime.Registry
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	defaults, err := services.LoadReminderDefaults(cfg.ReminderSettingsFile)
	if err != nil {
		return Services{}, fmt.Errorf("load reminder defaults: %w", err)
	}
	settings := services.NewReminderSettingsProvider(log, repos.ReminderSetting, defaults, cfg.TestModeAllowed)
	notifier := services.NewLogNotifier(log)

	reminders := services.NewReminderService(
		db, log,
		repos.Step, repos.Candidate, repos.Reminder,
		settings, clients.Queue, metrics, cfg.Reminder,
	)
	delivery := services.NewReminderDelivery(
		log,
		repos.Step, repos.Candidate, repos.Reminder,
		settings, notifier, clients.Queue, metrics, cfg.Reminder,
	)

	agg := dataagg.NewProcessingStepAggregate(dataagg.ProcessingStepDeps{
		Base: dataagg.BaseDeps{
			DB:    db,
			Log:   log,
			Hooks: dataagg.NewObservabilityHooks(metrics),
		},
		Candidates:   repos.Candidate,
		Templates:    repos.Template,
		Steps:        repos.Step,
		History:      repos.History,
		Requirements: repos.Requirement,
		Documents:    repos.Document,
	})
	processing := services.NewProcessingService(
		db, log, agg,
		repos.Candidate, repos.Step, repos.History, repos.Requirement, repos.Document,
		reminders,
	)

	registry := jobruntime.NewRegistry()
	if err := delivery.Register(registry, settings.Families()); err != nil {
		return Services{}, fmt.Errorf("register reminder handlers: %w", err)
	}

	out := Services{
		Auth:                services.NewAuthService(log, cfg.JWTSecretKey, cfg.AccessTokenTTL),
		ProcessingAggregate: agg,
		Processing:          processing,
		ReminderSettings:    settings,
		Reminders:           reminders,
		ReminderDelivery:    delivery,
		Notifier:            notifier,
		CatalogSeeder:       services.NewCatalogSeeder(db, log, repos.Template, repos.Requirement, settings),
		JobRegistry:         registry,
	}

	if clients.Consumer != nil {
		out.JobWorker = worker.NewWorker(log, clients.Consumer, registry, metrics, cfg.Worker)
	}
	if clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(log, clients.Temporal, registry, cfg.Temporal)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.TemporalWorker = runner
	}
	return out, nil
}
