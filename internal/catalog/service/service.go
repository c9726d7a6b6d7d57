// Package service provides business logic for the catalog: service CRUD and
// stage template mutations, each followed by a reconciliation of the
// template into every live contract service.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"advisory_portal_backend/internal/catalog/repository"
	"advisory_portal_backend/internal/catalog/transport"
	"advisory_portal_backend/internal/events"
	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/platform/apperr"
	"advisory_portal_backend/platform/logger"
)

// TemplateReconciler syncs a service's stage template into the stage
// instances of its contract services.
type TemplateReconciler interface {
	ReconcileService(ctx context.Context, serviceID uuid.UUID) (domain.SyncReport, error)
}

// Service provides business logic for catalog.
type Service struct {
	repo       repository.Repository
	reconciler TemplateReconciler
	bus        events.Bus
	log        *logger.Logger
}

// New creates a new catalog service.
func New(repo repository.Repository, reconciler TemplateReconciler, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, reconciler: reconciler, bus: bus, log: log}
}

// GetService retrieves a service by ID.
func (s *Service) GetService(ctx context.Context, id uuid.UUID) (repository.Service, error) {
	return s.repo.GetServiceByID(ctx, id)
}

// ListServices retrieves services with search and pagination.
func (s *Service) ListServices(ctx context.Context, req transport.ListServicesRequest) (transport.ServiceListResponse, error) {
	page := req.Page
	pageSize := req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	items, total, err := s.repo.ListServices(ctx, repository.ListServicesParams{
		Search:     strings.TrimSpace(req.Search),
		ActiveOnly: req.ActiveOnly,
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	})
	if err != nil {
		return transport.ServiceListResponse{}, err
	}

	return transport.ServiceListResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// CreateService creates a new service.
func (s *Service) CreateService(ctx context.Context, req transport.CreateServiceRequest) (repository.Service, error) {
	svc, err := s.repo.CreateService(ctx, repository.CreateServiceParams{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return repository.Service{}, err
	}

	s.log.Info("service created", "id", svc.ID, "name", svc.Name)
	return svc, nil
}

// UpdateService updates an existing service.
func (s *Service) UpdateService(ctx context.Context, id uuid.UUID, req transport.UpdateServiceRequest) (repository.Service, error) {
	name := req.Name
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return repository.Service{}, apperr.Validation("service name cannot be empty")
		}
		name = &trimmed
	}

	svc, err := s.repo.UpdateService(ctx, repository.UpdateServiceParams{
		ID:          id,
		Name:        name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		return repository.Service{}, err
	}

	s.log.Info("service updated", "id", svc.ID, "name", svc.Name)
	return svc, nil
}

// ListStageDefinitions lists a service's stage template.
func (s *Service) ListStageDefinitions(ctx context.Context, serviceID uuid.UUID, includeDeleted bool) (transport.DefinitionListResponse, error) {
	if _, err := s.repo.GetServiceByID(ctx, serviceID); err != nil {
		return transport.DefinitionListResponse{}, err
	}

	items, err := s.repo.ListStageDefinitions(ctx, serviceID, includeDeleted)
	if err != nil {
		return transport.DefinitionListResponse{}, err
	}
	return transport.DefinitionListResponse{Items: items}, nil
}

// CreateStageDefinition adds a stage to a service's template and rolls the
// change out to every contract service on that template.
func (s *Service) CreateStageDefinition(ctx context.Context, serviceID uuid.UUID, req transport.CreateStageDefinitionRequest) (transport.DefinitionResponse, error) {
	if _, err := s.repo.GetServiceByID(ctx, serviceID); err != nil {
		return transport.DefinitionResponse{}, err
	}

	def, err := s.repo.CreateStageDefinition(ctx, repository.CreateStageDefinitionParams{
		ServiceID:  serviceID,
		Name:       strings.TrimSpace(req.Name),
		SortOrder:  req.SortOrder,
		IsRequired: req.IsRequired,
	})
	if err != nil {
		return transport.DefinitionResponse{}, err
	}

	report, err := s.reconcile(ctx, serviceID)
	if err != nil {
		return transport.DefinitionResponse{}, err
	}

	s.log.Info("stage definition created", "id", def.ID, "service", serviceID, "instancesCreated", report.Created)
	return transport.DefinitionResponse{Definition: def, Sync: report}, nil
}

// UpdateStageDefinition patches a definition. Name and ordering edits do
// not touch existing instances; the sync run only fills structural gaps.
func (s *Service) UpdateStageDefinition(ctx context.Context, id uuid.UUID, req transport.UpdateStageDefinitionRequest) (transport.DefinitionResponse, error) {
	name := req.Name
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return transport.DefinitionResponse{}, apperr.Validation("stage name cannot be empty")
		}
		name = &trimmed
	}

	def, err := s.repo.UpdateStageDefinition(ctx, repository.UpdateStageDefinitionParams{
		ID:         id,
		Name:       name,
		SortOrder:  req.SortOrder,
		IsRequired: req.IsRequired,
	})
	if err != nil {
		return transport.DefinitionResponse{}, err
	}

	report, err := s.reconcile(ctx, def.ServiceID)
	if err != nil {
		return transport.DefinitionResponse{}, err
	}

	s.log.Info("stage definition updated", "id", def.ID, "service", def.ServiceID)
	return transport.DefinitionResponse{Definition: def, Sync: report}, nil
}

// SoftDeleteStageDefinition retires a definition from the template. Contract
// services keep their existing instances; new contract services stop
// receiving this stage.
func (s *Service) SoftDeleteStageDefinition(ctx context.Context, id uuid.UUID) (transport.DefinitionResponse, error) {
	def, err := s.repo.SoftDeleteStageDefinition(ctx, id)
	if err != nil {
		return transport.DefinitionResponse{}, err
	}

	report, err := s.reconcile(ctx, def.ServiceID)
	if err != nil {
		return transport.DefinitionResponse{}, err
	}

	s.log.Info("stage definition retired", "id", def.ID, "service", def.ServiceID)
	return transport.DefinitionResponse{Definition: def, Sync: report}, nil
}

// HardDeleteStageDefinition removes the definition row; the sync run that
// follows deletes its orphaned instances everywhere.
func (s *Service) HardDeleteStageDefinition(ctx context.Context, id uuid.UUID) (transport.DeleteDefinitionResponse, error) {
	serviceID, err := s.repo.HardDeleteStageDefinition(ctx, id)
	if err != nil {
		return transport.DeleteDefinitionResponse{}, err
	}

	report, err := s.reconcile(ctx, serviceID)
	if err != nil {
		return transport.DeleteDefinitionResponse{}, err
	}

	s.log.Info("stage definition deleted", "id", id, "service", serviceID, "instancesRemoved", report.Removed)
	return transport.DeleteDefinitionResponse{Sync: report}, nil
}

// ReconcileService runs the sync engine for a service on demand.
func (s *Service) ReconcileService(ctx context.Context, serviceID uuid.UUID) (transport.SyncReport, error) {
	if _, err := s.repo.GetServiceByID(ctx, serviceID); err != nil {
		return transport.SyncReport{}, err
	}
	report, err := s.reconcile(ctx, serviceID)
	if err != nil {
		return transport.SyncReport{}, err
	}
	return report, nil
}

func (s *Service) reconcile(ctx context.Context, serviceID uuid.UUID) (transport.SyncReport, error) {
	report, err := s.reconciler.ReconcileService(ctx, serviceID)
	if err != nil {
		return transport.SyncReport{}, err
	}

	if report.Created > 0 || report.Removed > 0 {
		s.bus.Publish(ctx, events.StageTemplateChanged{
			BaseEvent:        events.NewBaseEvent(),
			ServiceID:        serviceID,
			CreatedInstances: report.Created,
			RemovedInstances: report.Removed,
		})
	}

	return transport.SyncReport{
		Created:   report.Created,
		Removed:   report.Removed,
		Conflicts: report.Conflicts,
	}, nil
}
