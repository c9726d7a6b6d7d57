package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestPlanSyncCreatesMissingInstances(t *testing.T) {
	defA, defB, defC := uuid.New(), uuid.New(), uuid.New()
	active := []uuid.UUID{defA, defB, defC}

	plan := PlanSync(active, active, []InstanceRef{
		{ID: uuid.New(), DefinitionID: defA},
	})

	if len(plan.CreateDefinitionIDs) != 2 {
		t.Fatalf("expected 2 creates, got %d", len(plan.CreateDefinitionIDs))
	}
	if len(plan.RemoveInstanceIDs) != 0 {
		t.Fatalf("expected no removals, got %d", len(plan.RemoveInstanceIDs))
	}
}

func TestPlanSyncIdempotentWhenInSync(t *testing.T) {
	defA, defB := uuid.New(), uuid.New()
	active := []uuid.UUID{defA, defB}
	instances := []InstanceRef{
		{ID: uuid.New(), DefinitionID: defA},
		{ID: uuid.New(), DefinitionID: defB},
	}

	plan := PlanSync(active, active, instances)
	if !plan.Empty() {
		t.Fatalf("expected empty plan for synced state, got %+v", plan)
	}

	// A second run over the same inputs stays empty.
	plan = PlanSync(active, active, instances)
	if !plan.Empty() {
		t.Fatalf("expected sync planning to be idempotent, got %+v", plan)
	}
}

func TestPlanSyncRemovesOrphansOfHardDeletedDefinitions(t *testing.T) {
	defA := uuid.New()
	deletedDef := uuid.New()
	orphanID := uuid.New()

	plan := PlanSync([]uuid.UUID{defA}, []uuid.UUID{defA}, []InstanceRef{
		{ID: uuid.New(), DefinitionID: defA},
		{ID: orphanID, DefinitionID: deletedDef},
	})

	if len(plan.RemoveInstanceIDs) != 1 || plan.RemoveInstanceIDs[0] != orphanID {
		t.Fatalf("expected orphan %s removed, got %v", orphanID, plan.RemoveInstanceIDs)
	}
	if len(plan.CreateDefinitionIDs) != 0 {
		t.Fatalf("expected no creates, got %v", plan.CreateDefinitionIDs)
	}
}

func TestPlanSyncKeepsInstancesOfSoftDeletedDefinitions(t *testing.T) {
	activeDef := uuid.New()
	softDeletedDef := uuid.New()

	// The soft-deleted definition is no longer active but its row still
	// exists, so its instance must survive with its completed state.
	plan := PlanSync(
		[]uuid.UUID{activeDef},
		[]uuid.UUID{activeDef, softDeletedDef},
		[]InstanceRef{
			{ID: uuid.New(), DefinitionID: activeDef},
			{ID: uuid.New(), DefinitionID: softDeletedDef},
		},
	)

	if !plan.Empty() {
		t.Fatalf("expected soft-deleted definition's instance to be kept, got %+v", plan)
	}
}

func TestPlanSyncNewDefinitionAfterInstantiation(t *testing.T) {
	defA, defB, defC := uuid.New(), uuid.New(), uuid.New()
	newDef := uuid.New()
	all := []uuid.UUID{defA, defB, defC, newDef}

	plan := PlanSync(all, all, []InstanceRef{
		{ID: uuid.New(), DefinitionID: defA},
		{ID: uuid.New(), DefinitionID: defB},
		{ID: uuid.New(), DefinitionID: defC},
	})

	if len(plan.CreateDefinitionIDs) != 1 || plan.CreateDefinitionIDs[0] != newDef {
		t.Fatalf("expected exactly the new definition to be created, got %v", plan.CreateDefinitionIDs)
	}
}
