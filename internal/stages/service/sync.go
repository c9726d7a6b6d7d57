package service

import (
	"context"

	"github.com/google/uuid"

	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/internal/stages/repository"
	"advisory_portal_backend/platform/apperr"
)

// ReconcileService brings every contract service of the given catalog
// service in line with its stage definitions: missing instances are created
// pending, instances of hard-deleted definitions are removed, and existing
// instances keep their status and applicability untouched. The run is
// idempotent; calling it redundantly reports zero work.
func (s *Service) ReconcileService(ctx context.Context, serviceID uuid.UUID) (domain.SyncReport, error) {
	exists, err := s.store.ServiceExists(ctx, serviceID)
	if err != nil {
		return domain.SyncReport{}, err
	}
	if !exists {
		return domain.SyncReport{}, apperr.NotFound("service not found")
	}

	activeDefs, err := s.store.ActiveDefinitions(ctx, serviceID)
	if err != nil {
		return domain.SyncReport{}, err
	}
	allDefIDs, err := s.store.DefinitionIDs(ctx, serviceID)
	if err != nil {
		return domain.SyncReport{}, err
	}
	contractServiceIDs, err := s.store.ContractServiceIDsByService(ctx, serviceID)
	if err != nil {
		return domain.SyncReport{}, err
	}

	var report domain.SyncReport
	for _, csID := range contractServiceIDs {
		partial, err := s.reconcileOne(ctx, csID, activeDefs, allDefIDs)
		if err != nil {
			// A contract service deleted mid-run is a conflict to skip,
			// not a failure of the whole reconciliation.
			if apperr.Is(err, apperr.KindNotFound) {
				report.Conflicts++
				continue
			}
			return report, err
		}
		report.Add(partial)
	}

	if report.Created > 0 || report.Removed > 0 {
		s.log.Info("stage template reconciled",
			"service", serviceID, "created", report.Created, "removed", report.Removed)
	}

	return report, nil
}

// ReconcileContractService syncs a single contract service against its
// service's stage definitions. Used when a contract service is first
// instantiated.
func (s *Service) ReconcileContractService(ctx context.Context, contractServiceID uuid.UUID) (domain.SyncReport, error) {
	cs, err := s.store.GetContractService(ctx, contractServiceID)
	if err != nil {
		return domain.SyncReport{}, err
	}

	activeDefs, err := s.store.ActiveDefinitions(ctx, cs.ServiceID)
	if err != nil {
		return domain.SyncReport{}, err
	}
	allDefIDs, err := s.store.DefinitionIDs(ctx, cs.ServiceID)
	if err != nil {
		return domain.SyncReport{}, err
	}

	return s.reconcileOne(ctx, contractServiceID, activeDefs, allDefIDs)
}

// reconcileOne applies the sync plan for one contract service in its own
// transaction, so a partial failure never leaves that service half-synced.
func (s *Service) reconcileOne(ctx context.Context, csID uuid.UUID, activeDefs []repository.DefinitionSnapshot, allDefIDs []uuid.UUID) (domain.SyncReport, error) {
	activeIDs := make([]uuid.UUID, len(activeDefs))
	defsByID := make(map[uuid.UUID]repository.DefinitionSnapshot, len(activeDefs))
	for i, def := range activeDefs {
		activeIDs[i] = def.ID
		defsByID[def.ID] = def
	}

	var report domain.SyncReport
	err := s.store.Atomic(ctx, []uuid.UUID{csID}, func(tx repository.Tx) error {
		instances, err := tx.InstancesByContractService(ctx, csID)
		if err != nil {
			return err
		}

		refs := make([]domain.InstanceRef, len(instances))
		for i, inst := range instances {
			refs[i] = domain.InstanceRef{ID: inst.ID, DefinitionID: inst.StageDefinitionID}
		}

		plan := domain.PlanSync(activeIDs, allDefIDs, refs)
		if plan.Empty() {
			return nil
		}

		toCreate := make([]repository.DefinitionSnapshot, 0, len(plan.CreateDefinitionIDs))
		for _, defID := range plan.CreateDefinitionIDs {
			toCreate = append(toCreate, defsByID[defID])
		}

		created, err := tx.CreateInstances(ctx, csID, toCreate)
		if err != nil {
			return err
		}
		removed, err := tx.DeleteInstances(ctx, plan.RemoveInstanceIDs)
		if err != nil {
			return err
		}

		report.Created = created
		report.Removed = removed
		return nil
	})
	if err != nil {
		return domain.SyncReport{}, err
	}

	return report, nil
}
