package domain

import "github.com/google/uuid"

// InstanceRef identifies an existing stage instance and the definition it
// was copied from.
type InstanceRef struct {
	ID           uuid.UUID
	DefinitionID uuid.UUID
}

// SyncPlan is the set of changes needed to bring one contract service's
// instances in line with its service's stage definitions.
type SyncPlan struct {
	// CreateDefinitionIDs lists active definitions missing an instance.
	CreateDefinitionIDs []uuid.UUID
	// RemoveInstanceIDs lists instances whose definition row no longer
	// exists (hard-deleted). Soft-deleted definitions keep their instances.
	RemoveInstanceIDs []uuid.UUID
}

// Empty reports whether the plan contains no work.
func (p SyncPlan) Empty() bool {
	return len(p.CreateDefinitionIDs) == 0 && len(p.RemoveInstanceIDs) == 0
}

// PlanSync diffs a contract service's instances against the service's stage
// definitions. activeDefinitionIDs are the definitions that must each have
// exactly one instance; allDefinitionIDs are every definition row still
// present for the service, soft-deleted included. Existing instances are
// never modified, only created or (for orphans) removed, so completed work
// survives template edits.
func PlanSync(activeDefinitionIDs, allDefinitionIDs []uuid.UUID, instances []InstanceRef) SyncPlan {
	existing := make(map[uuid.UUID]bool, len(allDefinitionIDs))
	for _, id := range allDefinitionIDs {
		existing[id] = true
	}

	instantiated := make(map[uuid.UUID]bool, len(instances))
	var plan SyncPlan
	for _, inst := range instances {
		instantiated[inst.DefinitionID] = true
		if !existing[inst.DefinitionID] {
			plan.RemoveInstanceIDs = append(plan.RemoveInstanceIDs, inst.ID)
		}
	}

	for _, defID := range activeDefinitionIDs {
		if !instantiated[defID] {
			plan.CreateDefinitionIDs = append(plan.CreateDefinitionIDs, defID)
		}
	}

	return plan
}

// SyncReport summarizes a reconciliation run across a service's contract
// services. Conflicts counts contract services that disappeared while the
// run was in flight; those are skipped, not failed.
type SyncReport struct {
	Created   int `json:"created"`
	Removed   int `json:"removed"`
	Conflicts int `json:"conflicts"`
}

// Add merges another report into this one.
func (r *SyncReport) Add(other SyncReport) {
	r.Created += other.Created
	r.Removed += other.Removed
	r.Conflicts += other.Conflicts
}
