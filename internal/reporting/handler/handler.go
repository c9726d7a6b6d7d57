// Package handler provides HTTP handlers for the reporting API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"advisory_portal_backend/internal/reporting/service"
	"advisory_portal_backend/platform/httpkit"
)

const msgInvalidRequest = "invalid request"

// Handler handles HTTP requests for progress reports.
type Handler struct {
	svc *service.Service
}

// New creates a new reporting handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes adds reporting routes to the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	reports := v1.Group("/reports")
	reports.GET("/contract-services/:id/progress", h.ContractServiceProgress)
	reports.GET("/contracts/:id/progress", h.ContractProgress)
	reports.GET("/clients/progress", h.ClientsRanking)
	reports.GET("/clients/:id/progress", h.ClientProgress)
}

// ContractServiceProgress reports one contract service's progress.
func (h *Handler) ContractServiceProgress(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	report, err := h.svc.ContractServiceReport(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// ContractProgress reports a contract's aggregated progress.
func (h *Handler) ContractProgress(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	report, err := h.svc.ContractReport(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// ClientProgress reports a client's rollup with per-contract breakdown.
func (h *Handler) ClientProgress(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	report, err := h.svc.ClientReport(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// ClientsRanking lists clients with active contracts, best first.
func (h *Handler) ClientsRanking(c *gin.Context) {
	ranking, err := h.svc.ClientsRanking(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ranking)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
