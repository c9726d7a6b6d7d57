// Package service orchestrates stage instance writes: every mutation runs as
// one transactional read-modify-propagate cycle, serialized per contract
// service, and reports the resulting progress and automatic status
// transitions back to the caller.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"advisory_portal_backend/internal/events"
	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/internal/stages/repository"
	"advisory_portal_backend/internal/stages/transport"
	"advisory_portal_backend/platform/apperr"
	"advisory_portal_backend/platform/logger"
)

// Service provides the stage progress engine.
type Service struct {
	store repository.Store
	bus   events.Bus
	log   *logger.Logger
}

// New creates the stage engine service.
func New(store repository.Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

// ListByContractService returns a contract service's stage instances with
// its current progress.
func (s *Service) ListByContractService(ctx context.Context, contractServiceID uuid.UUID) (transport.InstanceListResponse, error) {
	cs, err := s.store.GetContractService(ctx, contractServiceID)
	if err != nil {
		return transport.InstanceListResponse{}, err
	}

	instances, err := s.store.ListByContractService(ctx, contractServiceID)
	if err != nil {
		return transport.InstanceListResponse{}, err
	}

	return transport.InstanceListResponse{
		Items:    toInstanceResponses(instances),
		Progress: progressOf(instances, cs.Status),
	}, nil
}

// SetStatus updates one instance's completion status and propagates the
// consequences to its contract service.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus) (transport.UpdateResponse, error) {
	batch, err := s.SetStatuses(ctx, []transport.StatusUpdate{{ID: id, Status: string(status)}})
	if err != nil {
		return transport.UpdateResponse{}, err
	}
	return singleResponse(batch)
}

// SetStatuses updates several instances atomically. The distinct affected
// contract services are computed first; progress is recomputed and the
// propagator applied once per contract service, not once per instance.
func (s *Service) SetStatuses(ctx context.Context, updates []transport.StatusUpdate) (transport.BatchUpdateResponse, error) {
	if len(updates) == 0 {
		return transport.BatchUpdateResponse{}, apperr.Validation("no updates provided")
	}

	byID := make(map[uuid.UUID]domain.InstanceStatus, len(updates))
	ids := make([]uuid.UUID, 0, len(updates))
	for _, u := range updates {
		status := domain.InstanceStatus(u.Status)
		if !domain.IsValidInstanceStatus(status) {
			return transport.BatchUpdateResponse{}, apperr.Validation(fmt.Sprintf("invalid stage status %q", u.Status))
		}
		if _, dup := byID[u.ID]; dup {
			return transport.BatchUpdateResponse{}, apperr.Validation("duplicate stage instance in batch")
		}
		byID[u.ID] = status
		ids = append(ids, u.ID)
	}

	// Resolve affected contract services before opening the transaction;
	// an instance never moves between contract services, so the mapping is
	// stable.
	existing, err := s.store.InstancesByIDs(ctx, ids)
	if err != nil {
		return transport.BatchUpdateResponse{}, err
	}
	if len(existing) != len(ids) {
		return transport.BatchUpdateResponse{}, apperr.NotFound("stage instance not found")
	}

	affected := distinctContractServices(existing)

	var (
		updated []repository.StageInstance
		results []transport.ServiceResult
		pending []events.Event
	)

	err = s.store.Atomic(ctx, affected, func(tx repository.Tx) error {
		updated = updated[:0]
		for _, id := range ids {
			inst, err := tx.UpdateInstanceStatus(ctx, id, byID[id])
			if err != nil {
				return err
			}
			updated = append(updated, inst)
		}

		results, pending, err = s.propagate(ctx, tx, affected)
		return err
	})
	if err != nil {
		return transport.BatchUpdateResponse{}, err
	}

	s.publish(ctx, pending)
	s.log.Info("stage statuses updated", "instances", len(updated), "contractServices", len(affected))

	return transport.BatchUpdateResponse{
		Instances: toInstanceResponses(updated),
		Services:  results,
	}, nil
}

// SetNotApplicable toggles an instance's applicability. The instance stays
// on record for audit; it just stops counting toward progress. Removing the
// last pending stage from the applicable set can auto-complete the service.
func (s *Service) SetNotApplicable(ctx context.Context, id uuid.UUID, notApplicable bool) (transport.UpdateResponse, error) {
	existing, err := s.store.InstancesByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return transport.UpdateResponse{}, err
	}
	if len(existing) == 0 {
		return transport.UpdateResponse{}, apperr.NotFound("stage instance not found")
	}

	affected := []uuid.UUID{existing[0].ContractServiceID}

	var (
		updated repository.StageInstance
		results []transport.ServiceResult
		pending []events.Event
	)

	err = s.store.Atomic(ctx, affected, func(tx repository.Tx) error {
		updated, err = tx.UpdateInstanceApplicability(ctx, id, notApplicable)
		if err != nil {
			return err
		}

		results, pending, err = s.propagate(ctx, tx, affected)
		return err
	})
	if err != nil {
		return transport.UpdateResponse{}, err
	}

	s.publish(ctx, pending)
	s.log.Info("stage applicability updated", "instance", id, "notApplicable", notApplicable)

	return transport.UpdateResponse{
		Instance:      toInstanceResponse(updated),
		ServiceResult: results[0],
	}, nil
}

// propagate recomputes progress and applies the status state machine for
// each affected contract service, inside the caller's transaction. Events
// for committed transitions are returned for publication after commit.
func (s *Service) propagate(ctx context.Context, tx repository.Tx, affected []uuid.UUID) ([]transport.ServiceResult, []events.Event, error) {
	results := make([]transport.ServiceResult, 0, len(affected))
	var pending []events.Event

	for _, csID := range affected {
		cs, err := tx.ContractService(ctx, csID)
		if err != nil {
			return nil, nil, err
		}

		instances, err := tx.InstancesByContractService(ctx, csID)
		if err != nil {
			return nil, nil, err
		}

		progress := progressOf(instances, cs.Status)
		transition := domain.Propagate(cs.Status, progress.Percentage)

		status := cs.Status
		if transition.Changed {
			if err := tx.SetContractServiceStatus(ctx, csID, transition.Next); err != nil {
				return nil, nil, err
			}
			status = transition.Next

			// The synthetic unit of a stage-less service follows the
			// status, so recompute after the transition.
			progress = progressOf(instances, status)

			switch {
			case transition.AutoStarted:
				pending = append(pending, events.ContractServiceStarted{
					BaseEvent:         events.NewBaseEvent(),
					ContractServiceID: csID,
					ContractID:        cs.ContractID,
					Percentage:        progress.Percentage,
				})
			case transition.AutoCompleted:
				pending = append(pending, events.ContractServiceCompleted{
					BaseEvent:         events.NewBaseEvent(),
					ContractServiceID: csID,
					ContractID:        cs.ContractID,
				})
			}
		}

		results = append(results, transport.ServiceResult{
			ContractServiceID: csID,
			Status:            string(status),
			Progress:          progress,
			AutoStarted:       transition.AutoStarted,
			AutoCompleted:     transition.AutoCompleted,
		})
	}

	return results, pending, nil
}

// publish delivers transition events synchronously so downstream mirrors
// (routines) are up to date before the response returns.
func (s *Service) publish(ctx context.Context, pending []events.Event) {
	for _, ev := range pending {
		if err := s.bus.PublishSync(ctx, ev); err != nil {
			s.log.Error("status cascade failed", "event", ev.EventName(), "error", err)
		}
	}
}

func progressOf(instances []repository.StageInstance, status domain.ContractServiceStatus) domain.Progress {
	states := make([]domain.InstanceState, len(instances))
	for i, inst := range instances {
		states[i] = inst.State()
	}
	return domain.ComputeFromInstances(states, status == domain.StatusCompleted)
}

func distinctContractServices(instances []repository.StageInstance) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(instances))
	var out []uuid.UUID
	for _, inst := range instances {
		if !seen[inst.ContractServiceID] {
			seen[inst.ContractServiceID] = true
			out = append(out, inst.ContractServiceID)
		}
	}
	return out
}

func singleResponse(batch transport.BatchUpdateResponse) (transport.UpdateResponse, error) {
	if len(batch.Instances) != 1 || len(batch.Services) != 1 {
		return transport.UpdateResponse{}, apperr.Internal("unexpected batch shape for single update")
	}
	return transport.UpdateResponse{
		Instance:      batch.Instances[0],
		ServiceResult: batch.Services[0],
	}, nil
}

func toInstanceResponse(inst repository.StageInstance) transport.InstanceResponse {
	return transport.InstanceResponse{
		ID:                inst.ID,
		ContractServiceID: inst.ContractServiceID,
		StageDefinitionID: inst.StageDefinitionID,
		Name:              inst.Name,
		SortOrder:         inst.SortOrder,
		IsRequired:        inst.IsRequired,
		Status:            string(inst.Status),
		IsNotApplicable:   inst.IsNotApplicable,
		CompletedAt:       inst.CompletedAt,
		CreatedAt:         inst.CreatedAt,
		UpdatedAt:         inst.UpdatedAt,
	}
}

func toInstanceResponses(instances []repository.StageInstance) []transport.InstanceResponse {
	out := make([]transport.InstanceResponse, len(instances))
	for i, inst := range instances {
		out[i] = toInstanceResponse(inst)
	}
	return out
}
