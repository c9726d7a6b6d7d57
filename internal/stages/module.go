// Package stages provides the stage progress bounded context module: stage
// instance reads and writes, template reconciliation, and the progress
// rollups built on top of them.
package stages

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"advisory_portal_backend/internal/events"
	apphttp "advisory_portal_backend/internal/http"
	"advisory_portal_backend/internal/stages/handler"
	"advisory_portal_backend/internal/stages/repository"
	"advisory_portal_backend/internal/stages/service"
	"advisory_portal_backend/platform/logger"
	"advisory_portal_backend/platform/validator"
)

// Module is the stages bounded context module implementing http.Module.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

// NewModule creates and initializes the stages module.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, eventBus, log)

	return &Module{
		svc:     svc,
		handler: handler.New(svc, val),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "stages" }

// RegisterRoutes registers all stage routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}

// Service exposes the stage engine to sibling modules that reconcile
// templates or read progress without going through HTTP.
func (m *Module) Service() *service.Service {
	return m.svc
}
