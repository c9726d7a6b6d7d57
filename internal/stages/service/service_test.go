package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"advisory_portal_backend/internal/events"
	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/internal/stages/repository"
	"advisory_portal_backend/internal/stages/transport"
	"advisory_portal_backend/platform/apperr"
	"advisory_portal_backend/platform/logger"
)

// =============================================================================
// In-memory fakes
// =============================================================================

type fakeStore struct {
	instances        map[uuid.UUID]*repository.StageInstance
	contractServices map[uuid.UUID]*repository.ContractService
	// activeDefs and allDefIDs are keyed by service id.
	activeDefs map[uuid.UUID][]repository.DefinitionSnapshot
	allDefIDs  map[uuid.UUID][]uuid.UUID
	// csBySvc lists contract service ids per service, including ids that
	// may no longer resolve (simulating mid-run deletion).
	csBySvc map[uuid.UUID][]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		instances:        make(map[uuid.UUID]*repository.StageInstance),
		contractServices: make(map[uuid.UUID]*repository.ContractService),
		activeDefs:       make(map[uuid.UUID][]repository.DefinitionSnapshot),
		allDefIDs:        make(map[uuid.UUID][]uuid.UUID),
		csBySvc:          make(map[uuid.UUID][]uuid.UUID),
	}
}

var _ repository.Store = (*fakeStore)(nil)

func (f *fakeStore) Atomic(_ context.Context, lockIDs []uuid.UUID, fn func(tx repository.Tx) error) error {
	for _, id := range lockIDs {
		if _, ok := f.contractServices[id]; !ok {
			return apperr.NotFound("contract service not found")
		}
	}
	return fn(&fakeTx{store: f})
}

func (f *fakeStore) InstancesByIDs(_ context.Context, ids []uuid.UUID) ([]repository.StageInstance, error) {
	var out []repository.StageInstance
	for _, id := range ids {
		if inst, ok := f.instances[id]; ok {
			out = append(out, *inst)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByContractService(_ context.Context, csID uuid.UUID) ([]repository.StageInstance, error) {
	return f.listByCS(csID), nil
}

func (f *fakeStore) GetContractService(_ context.Context, id uuid.UUID) (repository.ContractService, error) {
	cs, ok := f.contractServices[id]
	if !ok {
		return repository.ContractService{}, apperr.NotFound("contract service not found")
	}
	return *cs, nil
}

func (f *fakeStore) ActiveDefinitions(_ context.Context, serviceID uuid.UUID) ([]repository.DefinitionSnapshot, error) {
	return f.activeDefs[serviceID], nil
}

func (f *fakeStore) DefinitionIDs(_ context.Context, serviceID uuid.UUID) ([]uuid.UUID, error) {
	return f.allDefIDs[serviceID], nil
}

func (f *fakeStore) ContractServiceIDsByService(_ context.Context, serviceID uuid.UUID) ([]uuid.UUID, error) {
	return f.csBySvc[serviceID], nil
}

func (f *fakeStore) ServiceExists(_ context.Context, serviceID uuid.UUID) (bool, error) {
	_, ok := f.activeDefs[serviceID]
	return ok, nil
}

func (f *fakeStore) CountsForContractService(_ context.Context, csID uuid.UUID) (repository.ServiceCounts, error) {
	cs, ok := f.contractServices[csID]
	if !ok {
		return repository.ServiceCounts{}, apperr.NotFound("contract service not found")
	}
	return f.countsOf(*cs), nil
}

func (f *fakeStore) CountsForContract(_ context.Context, contractID uuid.UUID) ([]repository.ServiceCounts, error) {
	var out []repository.ServiceCounts
	for _, cs := range f.contractServices {
		if cs.ContractID == contractID {
			out = append(out, f.countsOf(*cs))
		}
	}
	return out, nil
}

func (f *fakeStore) CountsForClient(context.Context, uuid.UUID) ([]repository.ServiceCounts, repository.ClientContractCounts, error) {
	return nil, repository.ClientContractCounts{}, nil
}

func (f *fakeStore) CountsForAllClients(context.Context) ([]repository.ClientRollup, error) {
	return nil, nil
}

func (f *fakeStore) listByCS(csID uuid.UUID) []repository.StageInstance {
	var out []repository.StageInstance
	for _, inst := range f.instances {
		if inst.ContractServiceID == csID {
			out = append(out, *inst)
		}
	}
	return out
}

func (f *fakeStore) countsOf(cs repository.ContractService) repository.ServiceCounts {
	c := repository.ServiceCounts{ContractServiceID: cs.ID, Status: cs.Status}
	for _, inst := range f.listByCS(cs.ID) {
		if inst.IsNotApplicable {
			continue
		}
		c.Total++
		if inst.Status == domain.InstanceCompleted {
			c.Completed++
		}
	}
	return c
}

type fakeTx struct {
	store *fakeStore
}

var _ repository.Tx = (*fakeTx)(nil)

func (t *fakeTx) InstancesByIDs(ctx context.Context, ids []uuid.UUID) ([]repository.StageInstance, error) {
	return t.store.InstancesByIDs(ctx, ids)
}

func (t *fakeTx) InstancesByContractService(_ context.Context, csID uuid.UUID) ([]repository.StageInstance, error) {
	return t.store.listByCS(csID), nil
}

func (t *fakeTx) UpdateInstanceStatus(_ context.Context, id uuid.UUID, status domain.InstanceStatus) (repository.StageInstance, error) {
	inst, ok := t.store.instances[id]
	if !ok {
		return repository.StageInstance{}, apperr.NotFound("stage instance not found")
	}
	inst.Status = status
	return *inst, nil
}

func (t *fakeTx) UpdateInstanceApplicability(_ context.Context, id uuid.UUID, notApplicable bool) (repository.StageInstance, error) {
	inst, ok := t.store.instances[id]
	if !ok {
		return repository.StageInstance{}, apperr.NotFound("stage instance not found")
	}
	inst.IsNotApplicable = notApplicable
	return *inst, nil
}

func (t *fakeTx) CreateInstances(_ context.Context, csID uuid.UUID, defs []repository.DefinitionSnapshot) (int, error) {
	created := 0
	for _, def := range defs {
		exists := false
		for _, inst := range t.store.listByCS(csID) {
			if inst.StageDefinitionID == def.ID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		id := uuid.New()
		t.store.instances[id] = &repository.StageInstance{
			ID:                id,
			ContractServiceID: csID,
			StageDefinitionID: def.ID,
			Name:              def.Name,
			SortOrder:         def.SortOrder,
			IsRequired:        def.IsRequired,
			Status:            domain.InstancePending,
		}
		created++
	}
	return created, nil
}

func (t *fakeTx) DeleteInstances(_ context.Context, ids []uuid.UUID) (int, error) {
	removed := 0
	for _, id := range ids {
		if _, ok := t.store.instances[id]; ok {
			delete(t.store.instances, id)
			removed++
		}
	}
	return removed, nil
}

func (t *fakeTx) ContractService(ctx context.Context, id uuid.UUID) (repository.ContractService, error) {
	return t.store.GetContractService(ctx, id)
}

func (t *fakeTx) SetContractServiceStatus(_ context.Context, id uuid.UUID, status domain.ContractServiceStatus) error {
	cs, ok := t.store.contractServices[id]
	if !ok {
		return apperr.NotFound("contract service not found")
	}
	cs.Status = status
	return nil
}

type recordingBus struct {
	published []events.Event
}

var _ events.Bus = (*recordingBus)(nil)

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	out := make([]string, len(b.published))
	for i, ev := range b.published {
		out[i] = ev.EventName()
	}
	return out
}

// =============================================================================
// Fixtures
// =============================================================================

type fixture struct {
	store     *fakeStore
	bus       *recordingBus
	svc       *Service
	serviceID uuid.UUID
	csID      uuid.UUID
}

// newFixture builds service S with stage definitions A, B, C and one
// contract service X already reconciled against the template.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newFakeStore()
	bus := &recordingBus{}
	svc := New(store, bus, logger.New("development"))

	serviceID := uuid.New()
	defs := []repository.DefinitionSnapshot{
		{ID: uuid.New(), Name: "Intake", SortOrder: 1, IsRequired: true},
		{ID: uuid.New(), Name: "Analysis", SortOrder: 2, IsRequired: true},
		{ID: uuid.New(), Name: "Delivery", SortOrder: 3, IsRequired: false},
	}
	store.activeDefs[serviceID] = defs
	store.allDefIDs[serviceID] = defIDs(defs)

	csID := uuid.New()
	store.contractServices[csID] = &repository.ContractService{
		ID:         csID,
		ContractID: uuid.New(),
		ServiceID:  serviceID,
		Status:     domain.StatusNotStarted,
	}
	store.csBySvc[serviceID] = []uuid.UUID{csID}

	report, err := svc.ReconcileContractService(context.Background(), csID)
	if err != nil {
		t.Fatalf("initial reconcile failed: %v", err)
	}
	if report.Created != 3 || report.Removed != 0 {
		t.Fatalf("expected {created:3, removed:0}, got %+v", report)
	}

	return &fixture{store: store, bus: bus, svc: svc, serviceID: serviceID, csID: csID}
}

func defIDs(defs []repository.DefinitionSnapshot) []uuid.UUID {
	ids := make([]uuid.UUID, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return ids
}

func (f *fixture) instanceByName(t *testing.T, name string) repository.StageInstance {
	t.Helper()
	for _, inst := range f.store.listByCS(f.csID) {
		if inst.Name == name {
			return inst
		}
	}
	t.Fatalf("no instance named %q", name)
	return repository.StageInstance{}
}

// =============================================================================
// Scenario tests
// =============================================================================

func TestCompletionFlowPromotesAndCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Completing the first stage starts the service.
	res, err := f.svc.SetStatus(ctx, f.instanceByName(t, "Intake").ID, domain.InstanceCompleted)
	if err != nil {
		t.Fatalf("set status failed: %v", err)
	}
	if res.Progress.Percentage != 33 {
		t.Fatalf("expected 33%%, got %d%%", res.Progress.Percentage)
	}
	if !res.AutoStarted || res.Status != string(domain.StatusInProgress) {
		t.Fatalf("expected auto-start to in_progress, got %+v", res.ServiceResult)
	}

	// Completing the rest in one batch completes the service.
	batch, err := f.svc.SetStatuses(ctx, []transport.StatusUpdate{
		{ID: f.instanceByName(t, "Analysis").ID, Status: "completed"},
		{ID: f.instanceByName(t, "Delivery").ID, Status: "completed"},
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(batch.Services) != 1 {
		t.Fatalf("expected one consolidated service result, got %d", len(batch.Services))
	}
	sr := batch.Services[0]
	if sr.Progress.Percentage != 100 || !sr.AutoCompleted || sr.Status != string(domain.StatusCompleted) {
		t.Fatalf("expected auto-completion at 100%%, got %+v", sr)
	}

	wantEvents := []string{"contracts.service.started", "contracts.service.completed"}
	got := f.bus.names()
	if len(got) != len(wantEvents) {
		t.Fatalf("expected events %v, got %v", wantEvents, got)
	}
	for i, name := range wantEvents {
		if got[i] != name {
			t.Fatalf("expected events %v, got %v", wantEvents, got)
		}
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.ReconcileService(context.Background(), f.serviceID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.Created != 0 || report.Removed != 0 || report.Conflicts != 0 {
		t.Fatalf("expected no-op report on synced state, got %+v", report)
	}
}

func TestLateDefinitionKeepsCompletionSticky(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Complete everything.
	updates := make([]transport.StatusUpdate, 0, 3)
	for _, name := range []string{"Intake", "Analysis", "Delivery"} {
		updates = append(updates, transport.StatusUpdate{ID: f.instanceByName(t, name).ID, Status: "completed"})
	}
	if _, err := f.svc.SetStatuses(ctx, updates); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	// Add definition D to the template and reconcile.
	newDef := repository.DefinitionSnapshot{ID: uuid.New(), Name: "Review", SortOrder: 4}
	f.store.activeDefs[f.serviceID] = append(f.store.activeDefs[f.serviceID], newDef)
	f.store.allDefIDs[f.serviceID] = append(f.store.allDefIDs[f.serviceID], newDef.ID)

	report, err := f.svc.ReconcileService(ctx, f.serviceID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.Created != 1 || report.Removed != 0 {
		t.Fatalf("expected {created:1, removed:0}, got %+v", report)
	}

	// Progress drops to 3/4 but the completed status is a one-way ratchet.
	progress, err := f.svc.ProgressForContractService(ctx, f.csID)
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if progress.Percentage != 75 {
		t.Fatalf("expected 75%%, got %d%%", progress.Percentage)
	}
	if f.store.contractServices[f.csID].Status != domain.StatusCompleted {
		t.Fatalf("expected status to stay completed, got %s", f.store.contractServices[f.csID].Status)
	}
}

func TestHardDeletedDefinitionRemovesOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Hard-delete "Delivery": it vanishes from both active and existing sets.
	defs := f.store.activeDefs[f.serviceID]
	f.store.activeDefs[f.serviceID] = defs[:2]
	f.store.allDefIDs[f.serviceID] = defIDs(defs[:2])

	report, err := f.svc.ReconcileService(ctx, f.serviceID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.Created != 0 || report.Removed != 1 {
		t.Fatalf("expected {created:0, removed:1}, got %+v", report)
	}
	if len(f.store.listByCS(f.csID)) != 2 {
		t.Fatalf("expected 2 instances after orphan cleanup, got %d", len(f.store.listByCS(f.csID)))
	}
}

func TestSoftDeletedDefinitionKeepsInstance(t *testing.T) {
	f := newFixture(t)

	// Soft-delete "Delivery": it leaves the active set but its row remains.
	defs := f.store.activeDefs[f.serviceID]
	f.store.activeDefs[f.serviceID] = defs[:2]

	report, err := f.svc.ReconcileService(context.Background(), f.serviceID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.Created != 0 || report.Removed != 0 {
		t.Fatalf("expected no-op for soft delete, got %+v", report)
	}
	if len(f.store.listByCS(f.csID)) != 3 {
		t.Fatalf("expected instance of soft-deleted definition to survive")
	}
}

func TestReconcileSkipsVanishedContractService(t *testing.T) {
	f := newFixture(t)

	// A second contract service is listed for the template but its row is
	// gone by the time the run reaches it.
	ghost := uuid.New()
	f.store.csBySvc[f.serviceID] = append(f.store.csBySvc[f.serviceID], ghost)

	report, err := f.svc.ReconcileService(context.Background(), f.serviceID)
	if err != nil {
		t.Fatalf("reconcile should skip conflicts, got %v", err)
	}
	if report.Conflicts != 1 {
		t.Fatalf("expected 1 conflict, got %+v", report)
	}
}

func TestNotApplicableExclusionAndAutoComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Complete two of three stages.
	if _, err := f.svc.SetStatuses(ctx, []transport.StatusUpdate{
		{ID: f.instanceByName(t, "Intake").ID, Status: "completed"},
		{ID: f.instanceByName(t, "Analysis").ID, Status: "completed"},
	}); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	// Marking the remaining pending stage N/A shrinks the applicable set
	// to 2/2 and auto-completes the service.
	res, err := f.svc.SetNotApplicable(ctx, f.instanceByName(t, "Delivery").ID, true)
	if err != nil {
		t.Fatalf("set applicability failed: %v", err)
	}
	if res.Progress.Total != 2 || res.Progress.Completed != 2 {
		t.Fatalf("expected 2/2 applicable, got %d/%d", res.Progress.Completed, res.Progress.Total)
	}
	if !res.AutoCompleted || res.Status != string(domain.StatusCompleted) {
		t.Fatalf("expected auto-completion after N/A shrink, got %+v", res.ServiceResult)
	}

	// The instance survives for audit.
	if _, ok := f.store.instances[res.Instance.ID]; !ok {
		t.Fatalf("N/A instance must not be deleted")
	}
}

func TestUncompletingDoesNotDemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updates := make([]transport.StatusUpdate, 0, 3)
	for _, name := range []string{"Intake", "Analysis", "Delivery"} {
		updates = append(updates, transport.StatusUpdate{ID: f.instanceByName(t, name).ID, Status: "completed"})
	}
	if _, err := f.svc.SetStatuses(ctx, updates); err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	f.bus.published = nil

	res, err := f.svc.SetStatus(ctx, f.instanceByName(t, "Intake").ID, domain.InstancePending)
	if err != nil {
		t.Fatalf("set status failed: %v", err)
	}
	if res.Progress.Percentage != 67 {
		t.Fatalf("expected 67%% after un-completing, got %d%%", res.Progress.Percentage)
	}
	if res.Status != string(domain.StatusCompleted) || res.AutoStarted || res.AutoCompleted {
		t.Fatalf("completed status must be sticky, got %+v", res.ServiceResult)
	}
	if len(f.bus.published) != 0 {
		t.Fatalf("no events expected for a sticky status, got %v", f.bus.names())
	}
}

func TestBatchSpanningServicesPropagatesOncePerService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Second contract service on the same template.
	otherCS := uuid.New()
	f.store.contractServices[otherCS] = &repository.ContractService{
		ID:         otherCS,
		ContractID: uuid.New(),
		ServiceID:  f.serviceID,
		Status:     domain.StatusNotStarted,
	}
	f.store.csBySvc[f.serviceID] = append(f.store.csBySvc[f.serviceID], otherCS)
	if _, err := f.svc.ReconcileContractService(ctx, otherCS); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	var otherIntake uuid.UUID
	for _, inst := range f.store.listByCS(otherCS) {
		if inst.Name == "Intake" {
			otherIntake = inst.ID
		}
	}

	batch, err := f.svc.SetStatuses(ctx, []transport.StatusUpdate{
		{ID: f.instanceByName(t, "Intake").ID, Status: "completed"},
		{ID: f.instanceByName(t, "Analysis").ID, Status: "completed"},
		{ID: otherIntake, Status: "completed"},
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if len(batch.Services) != 2 {
		t.Fatalf("expected one result per affected contract service, got %d", len(batch.Services))
	}
	for _, sr := range batch.Services {
		if !sr.AutoStarted {
			t.Fatalf("both services should auto-start, got %+v", sr)
		}
	}
	// One started event per service; no duplicates from per-instance loops.
	if len(f.bus.published) != 2 {
		t.Fatalf("expected 2 events, got %v", f.bus.names())
	}
}

func TestBatchValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.instanceByName(t, "Intake").ID

	if _, err := f.svc.SetStatuses(ctx, []transport.StatusUpdate{{ID: id, Status: "done"}}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for bad status, got %v", err)
	}
	if _, err := f.svc.SetStatuses(ctx, []transport.StatusUpdate{
		{ID: id, Status: "completed"},
		{ID: id, Status: "pending"},
	}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for duplicate ids, got %v", err)
	}
	if _, err := f.svc.SetStatuses(ctx, []transport.StatusUpdate{{ID: uuid.New(), Status: "completed"}}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown instance, got %v", err)
	}
}

func TestStageLessServiceFallback(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &recordingBus{}, logger.New("development"))
	ctx := context.Background()

	csID := uuid.New()
	store.contractServices[csID] = &repository.ContractService{
		ID: csID, ContractID: uuid.New(), ServiceID: uuid.New(), Status: domain.StatusNotStarted,
	}

	progress, err := svc.ProgressForContractService(ctx, csID)
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if progress.Percentage != 0 || progress.Total != 1 {
		t.Fatalf("expected synthetic 0%% unit, got %+v", progress)
	}

	store.contractServices[csID].Status = domain.StatusCompleted
	progress, err = svc.ProgressForContractService(ctx, csID)
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if progress.Percentage != 100 {
		t.Fatalf("expected synthetic 100%% unit when completed, got %+v", progress)
	}
}

func TestContractAggregationAcrossServices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	contractID := f.store.contractServices[f.csID].ContractID

	// Second service on the same contract: 3 stages, all completed.
	otherCS := uuid.New()
	f.store.contractServices[otherCS] = &repository.ContractService{
		ID: otherCS, ContractID: contractID, ServiceID: f.serviceID, Status: domain.StatusNotStarted,
	}
	if _, err := f.svc.ReconcileContractService(ctx, otherCS); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	var updates []transport.StatusUpdate
	for _, inst := range f.store.listByCS(otherCS) {
		updates = append(updates, transport.StatusUpdate{ID: inst.ID, Status: "completed"})
	}
	if _, err := f.svc.SetStatuses(ctx, updates); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	// First service: add a fourth stage and complete two, then mark two
	// N/A... keep it simple: complete 2 of 3 applicable minus one N/A.
	if _, err := f.svc.SetStatuses(ctx, []transport.StatusUpdate{
		{ID: f.instanceByName(t, "Intake").ID, Status: "completed"},
		{ID: f.instanceByName(t, "Analysis").ID, Status: "completed"},
	}); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	// (2/3) + (3/3) = 5/6 = 83%
	result, err := f.svc.ProgressForContract(ctx, contractID)
	if err != nil {
		t.Fatalf("contract progress failed: %v", err)
	}
	if result.Progress.Total != 6 || result.Progress.Completed != 5 {
		t.Fatalf("expected 5/6, got %d/%d", result.Progress.Completed, result.Progress.Total)
	}
	if result.Progress.Percentage != 83 {
		t.Fatalf("expected 83%%, got %d%%", result.Progress.Percentage)
	}
	if result.Services != 2 {
		t.Fatalf("expected 2 services, got %d", result.Services)
	}
}
