package app

import (
	"fmt"
	"strings"
	"time"

	redisclient "github.com/yungbote/processing-backend/internal/clients/redis"
	"github.com/yungbote/processing-backend/internal/jobs/worker"
	"github.com/yungbote/processing-backend/internal/platform/envutil"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/services"
	"github.com/yungbote/processing-backend/internal/temporalx"
)

const (
	QueueBackendRedis    = "redis"
	QueueBackendTemporal = "temporal"
	QueueBackendAuto     = "auto"
)

type Config struct {
	LogMode     string
	Port        string
	ServiceName string

	JWTSecretKey   string
	AccessTokenTTL time.Duration
	AllowedOrigins []string

	QueueBackend         string
	WorkerEnabled        bool
	TestModeAllowed      bool
	ReminderSettingsFile string
	MetricsAddr          string

	Reminder services.ReminderConfig
	Worker   worker.Config
	Redis    redisclient.Config
	Temporal temporalx.Config
}

func LoadConfig(log *logger.Logger) (Config, error) {
	reminderCfg, err := services.LoadReminderConfig()
	if err != nil {
		return Config{}, err
	}
	backend := strings.ToLower(envutil.String("REMINDER_QUEUE_BACKEND", QueueBackendAuto))
	switch backend {
	case QueueBackendRedis, QueueBackendTemporal, QueueBackendAuto:
	default:
		return Config{}, fmt.Errorf("REMINDER_QUEUE_BACKEND %q: want redis, temporal or auto", backend)
	}
	jwtSecret := envutil.String("JWT_SECRET_KEY", "")
	if jwtSecret == "" {
		if log != nil {
			log.Warn("JWT_SECRET_KEY not set; using insecure default")
		}
		jwtSecret = "defaultsecret"
	}
	cfg := Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Port:        envutil.String("PORT", "8080"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "processing-backend"),

		JWTSecretKey:   jwtSecret,
		AccessTokenTTL: time.Duration(envutil.Int("ACCESS_TOKEN_TTL", 3600)) * time.Second,
		AllowedOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		QueueBackend:         backend,
		WorkerEnabled:        envutil.Bool("REMINDER_WORKER_ENABLED", true),
		TestModeAllowed:      envutil.Bool("REMINDER_TEST_MODE_ALLOWED", false),
		ReminderSettingsFile: envutil.String("REMINDER_SETTINGS_FILE", ""),
		MetricsAddr:          envutil.String("METRICS_ADDR", ":9090"),

		Reminder: reminderCfg,
		Worker:   worker.LoadConfig(),
		Redis:    redisclient.LoadConfig(),
		Temporal: temporalx.LoadConfig(),
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
