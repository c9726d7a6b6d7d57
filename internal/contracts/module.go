// Package contracts provides the contracts bounded context module: clients,
// contracts, contract services and the routine mirror.
package contracts

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"advisory_portal_backend/internal/contracts/handler"
	"advisory_portal_backend/internal/contracts/repository"
	"advisory_portal_backend/internal/contracts/service"
	"advisory_portal_backend/internal/events"
	apphttp "advisory_portal_backend/internal/http"
	"advisory_portal_backend/platform/logger"
	"advisory_portal_backend/platform/validator"
)

// Module is the contracts bounded context module implementing http.Module.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

// NewModule creates and initializes the contracts module and subscribes the
// routine mirror to contract-service lifecycle events.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, log *logger.Logger, reconciler service.InstanceReconciler) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, reconciler, eventBus, log)
	svc.RegisterHandlers(eventBus)

	return &Module{svc: svc, handler: handler.New(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "contracts" }

// Service exposes the contracts service to sibling modules.
func (m *Module) Service() *service.Service {
	return m.svc
}

// RegisterRoutes registers all contracts routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}
