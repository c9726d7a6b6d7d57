// Package handler provides HTTP handlers for the contracts API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"advisory_portal_backend/internal/contracts/service"
	"advisory_portal_backend/internal/contracts/transport"
	"advisory_portal_backend/platform/httpkit"
	"advisory_portal_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for the contracts module.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new contracts handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes adds contracts routes to the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	clients := v1.Group("/clients")
	clients.GET("", h.ListClients)
	clients.POST("", h.CreateClient)
	clients.GET("/:id", h.GetClient)
	clients.GET("/:id/contracts", h.ListContracts)
	clients.POST("/:id/contracts", h.CreateContract)

	contracts := v1.Group("/contracts")
	contracts.GET("/:id", h.GetContract)
	contracts.PATCH("/:id/status", h.UpdateContractStatus)

	services := v1.Group("/contract-services")
	services.PATCH("/:id/override-status", h.OverrideStatus)
	services.GET("/:id/routines", h.ListRoutines)
	services.POST("/:id/routines", h.CreateRoutine)
}

// ListClients returns clients with search and pagination.
func (h *Handler) ListClients(c *gin.Context) {
	var req transport.ListClientsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	resp, err := h.svc.ListClients(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// CreateClient creates a client.
func (h *Handler) CreateClient(c *gin.Context) {
	var req transport.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	client, err := h.svc.CreateClient(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, client)
}

// GetClient returns one client.
func (h *Handler) GetClient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	client, err := h.svc.GetClient(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, client)
}

// ListContracts lists a client's contracts.
func (h *Handler) ListContracts(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	contracts, err := h.svc.ListContractsByClient(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, contracts)
}

// CreateContract creates a contract with its purchased services and
// materializes their stage templates.
func (h *Handler) CreateContract(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.CreateContract(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, resp)
}

// GetContract returns a contract with its services.
func (h *Handler) GetContract(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.svc.GetContract(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// UpdateContractStatus moves a contract through its lifecycle.
func (h *Handler) UpdateContractStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.UpdateContractStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	contract, err := h.svc.UpdateContractStatus(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, contract)
}

// OverrideStatus sets a contract service status by hand.
func (h *Handler) OverrideStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.OverrideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	cs, err := h.svc.OverrideContractServiceStatus(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, cs)
}

// ListRoutines lists a contract service's routines.
func (h *Handler) ListRoutines(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.svc.ListRoutines(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// CreateRoutine links a routine to a contract service.
func (h *Handler) CreateRoutine(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.CreateRoutineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	routine, err := h.svc.CreateRoutine(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, routine)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
