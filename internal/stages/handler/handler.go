package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/internal/stages/service"
	"advisory_portal_backend/internal/stages/transport"
	"advisory_portal_backend/platform/httpkit"
	"advisory_portal_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for stage instances and template sync.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new stages handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes adds stage routes to the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.GET("/contract-services/:id/stages", h.ListStages)
	v1.PATCH("/stage-instances/:id/status", h.UpdateStatus)
	v1.PATCH("/stage-instances/:id/applicability", h.UpdateApplicability)
	v1.POST("/stage-instances/batch-status", h.BatchUpdateStatus)
	v1.POST("/contract-services/:id/sync", h.SyncContractService)
}

// ListStages returns a contract service's stage instances with progress.
func (h *Handler) ListStages(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.svc.ListByContractService(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// UpdateStatus sets the completion status of one stage instance and returns
// the propagated contract service result.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.SetStatus(c.Request.Context(), id, domain.InstanceStatus(req.Status))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// UpdateApplicability toggles whether a stage instance counts toward
// progress.
func (h *Handler) UpdateApplicability(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.SetApplicabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.SetNotApplicable(c.Request.Context(), id, *req.IsNotApplicable)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// BatchUpdateStatus updates several stage instances in one transaction. The
// batch may span contract services; each affected service reports one
// consolidated result.
func (h *Handler) BatchUpdateStatus(c *gin.Context) {
	var req transport.BatchUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.SetStatuses(c.Request.Context(), req.Updates)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// SyncContractService reconciles one contract service against its service's
// current stage template.
func (h *Handler) SyncContractService(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	report, err := h.svc.ReconcileContractService(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SyncReportResponse{
		Created:   report.Created,
		Removed:   report.Removed,
		Conflicts: report.Conflicts,
	})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
