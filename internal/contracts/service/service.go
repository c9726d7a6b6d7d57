// Package service provides business logic for clients, contracts and
// contract services: contract instantiation wires every purchased service
// into the stage engine, and the routine mirror follows contract-service
// lifecycle events.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"advisory_portal_backend/internal/contracts/repository"
	"advisory_portal_backend/internal/contracts/transport"
	"advisory_portal_backend/internal/events"
	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/platform/apperr"
	"advisory_portal_backend/platform/logger"
)

// InstanceReconciler materializes the stage template into one contract
// service's instance set.
type InstanceReconciler interface {
	ReconcileContractService(ctx context.Context, contractServiceID uuid.UUID) (domain.SyncReport, error)
}

// Service provides business logic for the contracts module.
type Service struct {
	repo       repository.Repository
	reconciler InstanceReconciler
	bus        events.Bus
	log        *logger.Logger
}

// New creates a new contracts service.
func New(repo repository.Repository, reconciler InstanceReconciler, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, reconciler: reconciler, bus: bus, log: log}
}

// CreateClient creates a client.
func (s *Service) CreateClient(ctx context.Context, req transport.CreateClientRequest) (repository.Client, error) {
	client, err := s.repo.CreateClient(ctx, repository.CreateClientParams{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
	})
	if err != nil {
		return repository.Client{}, err
	}

	s.log.Info("client created", "id", client.ID, "name", client.Name)
	return client, nil
}

// GetClient retrieves a client by ID.
func (s *Service) GetClient(ctx context.Context, id uuid.UUID) (repository.Client, error) {
	return s.repo.GetClientByID(ctx, id)
}

// ListClients retrieves clients with search and pagination.
func (s *Service) ListClients(ctx context.Context, req transport.ListClientsRequest) (transport.ClientListResponse, error) {
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

	items, total, err := s.repo.ListClients(ctx, repository.ListClientsParams{
		Search: strings.TrimSpace(req.Search),
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return transport.ClientListResponse{}, err
	}

	return transport.ClientListResponse{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// CreateContract creates a contract for a client, instantiates one contract
// service per purchased service and materializes each service's stage
// template.
func (s *Service) CreateContract(ctx context.Context, clientID uuid.UUID, req transport.CreateContractRequest) (transport.ContractResponse, error) {
	if _, err := s.repo.GetClientByID(ctx, clientID); err != nil {
		return transport.ContractResponse{}, err
	}

	serviceIDs := dedupe(req.ServiceIDs)
	active, err := s.repo.ActiveServiceIDs(ctx, serviceIDs)
	if err != nil {
		return transport.ContractResponse{}, err
	}
	if len(active) != len(serviceIDs) {
		return transport.ContractResponse{}, apperr.Validation("one or more services are unknown or inactive")
	}

	initial := domain.StatusNotStarted
	if req.ScheduledStartDate != nil {
		initial = domain.StatusScheduled
	}

	contract, services, err := s.repo.CreateContract(ctx, repository.CreateContractParams{
		ClientID:           clientID,
		Title:              strings.TrimSpace(req.Title),
		ServiceIDs:         serviceIDs,
		ScheduledStartDate: req.ScheduledStartDate,
		InitialStatus:      initial,
	})
	if err != nil {
		return transport.ContractResponse{}, err
	}

	var report transport.SyncReport
	for _, cs := range services {
		r, err := s.reconciler.ReconcileContractService(ctx, cs.ID)
		if err != nil {
			return transport.ContractResponse{}, err
		}
		report.Created += r.Created
		report.Removed += r.Removed
		report.Conflicts += r.Conflicts
	}

	s.log.Info("contract created", "id", contract.ID, "client", clientID,
		"services", len(services), "stagesCreated", report.Created)

	return transport.ContractResponse{Contract: contract, Services: services, Sync: report}, nil
}

// GetContract retrieves a contract with its services.
func (s *Service) GetContract(ctx context.Context, id uuid.UUID) (transport.ContractResponse, error) {
	contract, err := s.repo.GetContractByID(ctx, id)
	if err != nil {
		return transport.ContractResponse{}, err
	}
	services, err := s.repo.ListContractServices(ctx, id)
	if err != nil {
		return transport.ContractResponse{}, err
	}
	return transport.ContractResponse{Contract: contract, Services: services}, nil
}

// ListContractsByClient lists a client's contracts.
func (s *Service) ListContractsByClient(ctx context.Context, clientID uuid.UUID) ([]repository.Contract, error) {
	if _, err := s.repo.GetClientByID(ctx, clientID); err != nil {
		return nil, err
	}
	return s.repo.ListContractsByClient(ctx, clientID)
}

// UpdateContractStatus moves a contract through its lifecycle.
func (s *Service) UpdateContractStatus(ctx context.Context, id uuid.UUID, req transport.UpdateContractStatusRequest) (repository.Contract, error) {
	status := repository.ContractStatus(req.Status)
	if !repository.IsValidContractStatus(status) {
		return repository.Contract{}, apperr.Validation("invalid contract status")
	}

	contract, err := s.repo.SetContractStatus(ctx, id, status)
	if err != nil {
		return repository.Contract{}, err
	}

	s.log.Info("contract status updated", "id", id, "status", status)
	return contract, nil
}

// OverrideContractServiceStatus sets a contract service status by hand.
// Only states the propagator never enters on its own are accepted, and a
// completed service can only move to cancelled or suspended.
func (s *Service) OverrideContractServiceStatus(ctx context.Context, id uuid.UUID, req transport.OverrideStatusRequest) (repository.ContractService, error) {
	status := domain.ContractServiceStatus(req.Status)
	switch status {
	case domain.StatusNotStarted, domain.StatusScheduled, domain.StatusCancelled, domain.StatusSuspended:
	default:
		return repository.ContractService{}, apperr.Validation("status not allowed for manual override")
	}

	current, err := s.repo.GetContractService(ctx, id)
	if err != nil {
		return repository.ContractService{}, err
	}
	if current.Status == domain.StatusCompleted && !domain.IsHumanTerminal(status) {
		return repository.ContractService{}, apperr.Conflict("completed service can only be cancelled or suspended")
	}

	cs, err := s.repo.SetContractServiceStatus(ctx, id, status)
	if err != nil {
		return repository.ContractService{}, err
	}

	s.log.Info("contract service status overridden", "id", id, "status", status)
	return cs, nil
}

// CreateRoutine links a routine to a contract service. New routines start
// in the mirror state the contract service is already in, so a routine
// added to a running service is running too.
func (s *Service) CreateRoutine(ctx context.Context, contractServiceID uuid.UUID, req transport.CreateRoutineRequest) (repository.ServiceRoutine, error) {
	cs, err := s.repo.GetContractService(ctx, contractServiceID)
	if err != nil {
		return repository.ServiceRoutine{}, err
	}

	status := domain.StatusNotStarted
	if cs.Status == domain.StatusInProgress || cs.Status == domain.StatusCompleted {
		status = cs.Status
	}

	routine, err := s.repo.CreateRoutine(ctx, repository.CreateRoutineParams{
		ContractServiceID: contractServiceID,
		Name:              strings.TrimSpace(req.Name),
		ScheduledFor:      req.ScheduledFor,
		Status:            status,
	})
	if err != nil {
		return repository.ServiceRoutine{}, err
	}

	s.log.Info("routine created", "id", routine.ID, "contractService", contractServiceID)
	return routine, nil
}

// ListRoutines lists a contract service's routines.
func (s *Service) ListRoutines(ctx context.Context, contractServiceID uuid.UUID) (transport.RoutineListResponse, error) {
	if _, err := s.repo.GetContractService(ctx, contractServiceID); err != nil {
		return transport.RoutineListResponse{}, err
	}
	items, err := s.repo.ListRoutines(ctx, contractServiceID)
	if err != nil {
		return transport.RoutineListResponse{}, err
	}
	return transport.RoutineListResponse{Items: items}, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	var out []uuid.UUID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
