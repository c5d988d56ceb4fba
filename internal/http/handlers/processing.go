package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/processing-backend/internal/domain/aggregates"
	"github.com/yungbote/processing-backend/internal/http/response"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/services"
)

type ProcessingHandler struct {
	log        *logger.Logger
	processing services.ProcessingService
	// loc is the business timezone plain dates are read in.
	loc *time.Location
}

func NewProcessingHandler(log *logger.Logger, processing services.ProcessingService, loc *time.Location) *ProcessingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ProcessingHandler{log: log.With("handler", "ProcessingHandler"), processing: processing, loc: loc}
}

type transferRequest struct {
	CandidateID              string  `json:"candidate_id"`
	ProjectID                string  `json:"project_id"`
	RoleID                   string  `json:"role_id"`
	AssignedProcessingUserID *string `json:"assigned_processing_user_id"`
	RecruiterID              *string `json:"recruiter_id"`
	Notes                    string  `json:"notes"`
}

// POST /api/processing/transfer
func (h *ProcessingHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	in := domainagg.TransferCandidateInput{Notes: req.Notes, ActorID: actorID(c)}
	var err error
	if in.CandidateID, err = requiredUUID(req.CandidateID, "candidate_id"); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_candidate_id", err)
		return
	}
	if in.ProjectID, err = requiredUUID(req.ProjectID, "project_id"); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	if in.RoleID, err = requiredUUID(req.RoleID, "role_id"); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_role_id", err)
		return
	}
	if in.AssignedProcessingUserID, err = optionalUUID(req.AssignedProcessingUserID); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_assigned_processing_user_id", err)
		return
	}
	if in.RecruiterID, err = optionalUUID(req.RecruiterID); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_recruiter_id", err)
		return
	}
	out, err := h.processing.TransferToProcessing(c.Request.Context(), in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"candidate": out.Candidate, "steps": out.Steps, "created": out.Created})
}

// POST /api/processing/:id/start
func (h *ProcessingHandler) Start(c *gin.Context) {
	id, err := uuidParam(c, "id", "invalid_processing_candidate_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	out, err := h.processing.StartProcessing(c.Request.Context(), id, actorID(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"candidate": out.Candidate, "changed": out.Changed, "activated": out.Activated})
}

// GET /api/processing/:id
func (h *ProcessingHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id", "invalid_processing_candidate_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	out, err := h.processing.GetCandidateProcessing(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"processing": out})
}

// GET /api/processing/:id/history
func (h *ProcessingHandler) History(c *gin.Context) {
	id, err := uuidParam(c, "id", "invalid_processing_candidate_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	rows, err := h.processing.ListHistory(c.Request.Context(), id, queryInt(c, "limit", 0))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"history": rows})
}

// GET /api/processing/:id/stages/:stepKey/requirements
func (h *ProcessingHandler) StageRequirements(c *gin.Context) {
	id, err := uuidParam(c, "id", "invalid_processing_candidate_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	out, err := h.processing.GetStageRequirements(c.Request.Context(), c.Param("stepKey"), id, c.Query("doc_type"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"requirements": out})
}

type submitRequest struct {
	SubmittedAt string `json:"submitted_at"`
}

// POST /api/processing/steps/:stepId/submit
func (h *ProcessingHandler) Submit(c *gin.Context) {
	stepID, err := uuidParam(c, "stepId", "invalid_step_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	at, err := parseDate(req.SubmittedAt, h.loc)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_submitted_at", err)
		return
	}
	out, err := h.processing.SubmitDate(c.Request.Context(), domainagg.SubmitDateInput{StepID: stepID, SubmittedAt: at, ActorID: actorID(c)})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"step": out.Step, "candidate": out.Candidate})
}

type completeRequest struct {
	OutcomePassed     *bool  `json:"outcome_passed"`
	OutcomeNotes      string `json:"outcome_notes"`
	ExternalReference string `json:"external_reference"`
	Notes             string `json:"notes"`
}

// POST /api/processing/steps/:stepId/complete
func (h *ProcessingHandler) Complete(c *gin.Context) {
	stepID, err := uuidParam(c, "stepId", "invalid_step_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var req completeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.processing.CompleteStep(c.Request.Context(), domainagg.CompleteStepInput{
		StepID:            stepID,
		ActorID:           actorID(c),
		OutcomePassed:     req.OutcomePassed,
		OutcomeNotes:      req.OutcomeNotes,
		ExternalReference: req.ExternalReference,
		Notes:             req.Notes,
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"step":              out.Step,
		"candidate":         out.Candidate,
		"next_step":         out.NextStep,
		"already_completed": out.AlreadyCompleted,
		"cancelled":         out.Cancelled,
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// POST /api/processing/steps/:stepId/cancel
func (h *ProcessingHandler) Cancel(c *gin.Context) {
	stepID, err := uuidParam(c, "stepId", "invalid_step_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var req cancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.processing.CancelStep(c.Request.Context(), domainagg.CancelStepInput{StepID: stepID, ActorID: actorID(c), Reason: req.Reason})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"step":              out.Step,
		"candidate":         out.Candidate,
		"already_cancelled": out.AlreadyCancelled,
		"cascaded":          out.CascadedCount,
	})
}

type patchStepRequest struct {
	Status            *string `json:"status"`
	AssignedTo        *string `json:"assigned_to"`
	ClearAssignedTo   bool    `json:"clear_assigned_to"`
	DueDate           *string `json:"due_date"`
	ClearDueDate      bool    `json:"clear_due_date"`
	RejectionReason   *string `json:"rejection_reason"`
	Notes             *string `json:"notes"`
	ExternalReference *string `json:"external_reference"`
	OutcomePassed     *bool   `json:"outcome_passed"`
	OutcomeNotes      string  `json:"outcome_notes"`
}

// PATCH /api/processing/steps/:stepId
func (h *ProcessingHandler) Patch(c *gin.Context) {
	stepID, err := uuidParam(c, "stepId", "invalid_step_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var req patchStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	patch := domainagg.StepPatch{
		Status:            req.Status,
		ClearAssignedTo:   req.ClearAssignedTo,
		ClearDueDate:      req.ClearDueDate,
		RejectionReason:   req.RejectionReason,
		Notes:             req.Notes,
		ExternalReference: req.ExternalReference,
	}
	if patch.AssignedTo, err = optionalUUID(req.AssignedTo); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_assigned_to", err)
		return
	}
	if req.DueDate != nil && strings.TrimSpace(*req.DueDate) != "" {
		due, err := parseDate(*req.DueDate, h.loc)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_due_date", err)
			return
		}
		patch.DueDate = &due
	}
	step, err := h.processing.UpdateStep(c.Request.Context(), services.UpdateStepRequest{
		StepID:        stepID,
		Patch:         patch,
		ActorID:       actorID(c),
		OutcomePassed: req.OutcomePassed,
		OutcomeNotes:  req.OutcomeNotes,
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"step": step})
}

type recordDocumentRequest struct {
	DocType  string `json:"doc_type"`
	FileName string `json:"file_name"`
}

// POST /api/processing/steps/:stepId/documents
func (h *ProcessingHandler) RecordDocument(c *gin.Context) {
	stepID, err := uuidParam(c, "stepId", "invalid_step_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var req recordDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	doc, err := h.processing.RecordDocument(c.Request.Context(), services.RecordDocumentInput{
		StepID:   stepID,
		DocType:  req.DocType,
		FileName: req.FileName,
		ActorID:  actorID(c),
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"document": doc})
}

type verifyDocumentRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// POST /api/processing/documents/:id/verify
func (h *ProcessingHandler) VerifyDocument(c *gin.Context) {
	docID, err := uuidParam(c, "id", "invalid_document_id")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var req verifyDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	doc, err := h.processing.VerifyDocument(c.Request.Context(), services.VerifyDocumentInput{
		DocumentID: docID,
		Status:     req.Status,
		Reason:     req.Reason,
		ActorID:    actorID(c),
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}
