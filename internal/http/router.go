package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/processing-backend/internal/http/handlers"
	httpMW "github.com/yungbote/processing-backend/internal/http/middleware"
	"github.com/yungbote/processing-backend/internal/observability"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowedOrigins []string

	AuthMiddleware    *httpMW.AuthMiddleware
	ProcessingHandler *httpH.ProcessingHandler
	ReminderHandler   *httpH.ReminderHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Processing lifecycle
	if h := cfg.ProcessingHandler; h != nil {
		protected.POST("/processing/transfer", h.Transfer)
		protected.POST("/processing/:id/start", h.Start)
		protected.GET("/processing/:id", h.Get)
		protected.GET("/processing/:id/history", h.History)
		protected.GET("/processing/:id/stages/:stepKey/requirements", h.StageRequirements)

		protected.POST("/processing/steps/:stepId/submit", h.Submit)
		protected.POST("/processing/steps/:stepId/complete", h.Complete)
		protected.POST("/processing/steps/:stepId/cancel", h.Cancel)
		protected.PATCH("/processing/steps/:stepId", h.Patch)

		protected.POST("/processing/steps/:stepId/documents", h.RecordDocument)
		protected.POST("/processing/documents/:id/verify", h.VerifyDocument)
	}

	// Reminders
	if h := cfg.ReminderHandler; h != nil {
		protected.GET("/reminders/mine", h.ListMine)
		protected.POST("/reminders/:id/dismiss", h.Dismiss)
		protected.POST("/reminders/reconcile", h.Reconcile)
		protected.POST("/processing/steps/:stepId/reminders/trigger", h.TriggerNow)
		protected.GET("/reminder-settings/:family", h.GetSettings)
		protected.PUT("/reminder-settings/:family", h.UpdateSettings)
	}

	return r
}
