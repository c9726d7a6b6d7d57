// Package handler provides HTTP handlers for the catalog API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"advisory_portal_backend/internal/catalog/service"
	"advisory_portal_backend/internal/catalog/transport"
	"advisory_portal_backend/platform/httpkit"
	"advisory_portal_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for the catalog.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new catalog handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes adds catalog routes to the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	services := v1.Group("/services")
	services.GET("", h.ListServices)
	services.POST("", h.CreateService)
	services.GET("/:id", h.GetService)
	services.PATCH("/:id", h.UpdateService)
	services.GET("/:id/stages", h.ListStageDefinitions)
	services.POST("/:id/stages", h.CreateStageDefinition)
	services.POST("/:id/sync", h.SyncService)

	definitions := v1.Group("/stage-definitions")
	definitions.PATCH("/:id", h.UpdateStageDefinition)
	definitions.DELETE("/:id", h.DeleteStageDefinition)
}

// ListServices returns services with search and pagination.
func (h *Handler) ListServices(c *gin.Context) {
	var req transport.ListServicesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	resp, err := h.svc.ListServices(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// GetService returns one service.
func (h *Handler) GetService(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	svc, err := h.svc.GetService(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, svc)
}

// CreateService creates a service.
func (h *Handler) CreateService(c *gin.Context) {
	var req transport.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	svc, err := h.svc.CreateService(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, svc)
}

// UpdateService patches a service.
func (h *Handler) UpdateService(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.UpdateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	svc, err := h.svc.UpdateService(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, svc)
}

// ListStageDefinitions lists a service's stage template. Pass
// ?includeDeleted=true to include retired definitions.
func (h *Handler) ListStageDefinitions(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.svc.ListStageDefinitions(c.Request.Context(), id, c.Query("includeDeleted") == "true")
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// CreateStageDefinition adds a stage to a service's template.
func (h *Handler) CreateStageDefinition(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.CreateStageDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.CreateStageDefinition(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, resp)
}

// UpdateStageDefinition patches a stage definition.
func (h *Handler) UpdateStageDefinition(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.UpdateStageDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.UpdateStageDefinition(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// DeleteStageDefinition retires a definition, or removes it entirely with
// ?hard=true.
func (h *Handler) DeleteStageDefinition(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if c.Query("hard") == "true" {
		resp, err := h.svc.HardDeleteStageDefinition(c.Request.Context(), id)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, resp)
		return
	}

	resp, err := h.svc.SoftDeleteStageDefinition(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// SyncService reconciles every contract service on the template.
func (h *Handler) SyncService(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	report, err := h.svc.ReconcileService(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
