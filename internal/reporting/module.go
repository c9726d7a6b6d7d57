// Package reporting provides the progress reporting bounded context module.
package reporting

import (
	apphttp "advisory_portal_backend/internal/http"
	"advisory_portal_backend/internal/reporting/handler"
	"advisory_portal_backend/internal/reporting/service"
	"advisory_portal_backend/platform/cache"
	"advisory_portal_backend/platform/logger"
)

// Module is the reporting bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates and initializes the reporting module. The progress
// reader is the stage engine; the contract lister comes from the contracts
// module. cache may be nil when redis is not configured.
func NewModule(progress service.ProgressReader, contracts service.ContractLister, c *cache.Cache, log *logger.Logger) *Module {
	svc := service.New(progress, contracts, c, log)
	return &Module{handler: handler.New(svc)}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "reporting" }

// RegisterRoutes registers all reporting routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}
