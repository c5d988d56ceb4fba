package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/processing-backend/internal/http"
	"github.com/yungbote/processing-backend/internal/observability"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:               log,
		Metrics:           metrics,
		ServiceName:       cfg.ServiceName,
		AllowedOrigins:    cfg.AllowedOrigins,
		AuthMiddleware:    middleware.Auth,
		ProcessingHandler: handlers.Processing,
		ReminderHandler:   handlers.Reminder,
		HealthHandler:     handlers.Health,
	})
}
