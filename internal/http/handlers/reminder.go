package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	reminderdomain "github.com/yungbote/processing-backend/internal/domain/reminders"
	"github.com/yungbote/processing-backend/internal/http/response"
	"github.com/yungbote/processing-backend/internal/platform/apierr"
	"github.com/yungbote/processing-backend/internal/services"
)

type ReminderHandler struct {
	reminders services.ReminderService
	settings  services.ReminderSettingsProvider
}

func NewReminderHandler(reminders services.ReminderService, settings services.ReminderSettingsProvider) *ReminderHandler {
	return &ReminderHandler{reminders: reminders, settings: settings}
}

var errNoActor = apierr.New(http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))

// GET /api/reminders/mine?sent_only=&page=&limit=
func (h *ReminderHandler) ListMine(c *gin.Context) {
	actor := actorID(c)
	if actor == nil {
		response.RespondServiceError(c, errNoActor)
		return
	}
	page, err := h.reminders.ListMine(c.Request.Context(), *actor, services.MineQuery{
		SentOnly: queryBool(c, "sent_only"),
		Page:     queryInt(c, "page", 1),
		Limit:    queryInt(c, "limit", 0),
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// POST /api/reminders/:id/dismiss
func (h *ReminderHandler) Dismiss(c *gin.Context) {
	id, err := uuidParam(c, "id", "invalid_reminder_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	actor := actorID(c)
	if actor == nil {
		response.RespondServiceError(c, errNoActor)
		return
	}
	if err := h.reminders.Dismiss(c.Request.Context(), id, *actor); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"dismissed": true})
}

// POST /api/processing/steps/:stepId/reminders/trigger
func (h *ReminderHandler) TriggerNow(c *gin.Context) {
	stepID, err := uuidParam(c, "stepId", "invalid_step_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	rem, err := h.reminders.TriggerNow(c.Request.Context(), stepID, actorID(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reminder": rem})
}

// GET /api/reminder-settings/:family
func (h *ReminderHandler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context(), c.Param("family"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"family": c.Param("family"), "settings": s})
}

// PUT /api/reminder-settings/:family
func (h *ReminderHandler) UpdateSettings(c *gin.Context) {
	var req reminderdomain.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	s, err := h.settings.Update(c.Request.Context(), c.Param("family"), req, actorID(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"family": c.Param("family"), "settings": s})
}

// POST /api/reminders/reconcile
func (h *ReminderHandler) Reconcile(c *gin.Context) {
	res, err := h.reminders.Reconcile(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}
