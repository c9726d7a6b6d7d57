// Package catalog provides the service catalog bounded context module:
// services and the stage definitions that template their delivery.
package catalog

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"advisory_portal_backend/internal/catalog/handler"
	"advisory_portal_backend/internal/catalog/repository"
	"advisory_portal_backend/internal/catalog/service"
	"advisory_portal_backend/internal/events"
	apphttp "advisory_portal_backend/internal/http"
	"advisory_portal_backend/platform/logger"
	"advisory_portal_backend/platform/validator"
)

// Module is the catalog bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates and initializes the catalog module. The reconciler is
// the stage engine; template mutations roll out through it.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, log *logger.Logger, reconciler service.TemplateReconciler) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, reconciler, eventBus, log)

	return &Module{handler: handler.New(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "catalog" }

// RegisterRoutes registers all catalog routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}
