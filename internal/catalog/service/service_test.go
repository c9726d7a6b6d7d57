package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"advisory_portal_backend/internal/catalog/repository"
	"advisory_portal_backend/internal/catalog/transport"
	"advisory_portal_backend/internal/events"
	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/platform/apperr"
	"advisory_portal_backend/platform/logger"
)

type fakeRepo struct {
	services    map[uuid.UUID]*repository.Service
	definitions map[uuid.UUID]*repository.StageDefinition
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		services:    make(map[uuid.UUID]*repository.Service),
		definitions: make(map[uuid.UUID]*repository.StageDefinition),
	}
}

var _ repository.Repository = (*fakeRepo)(nil)

func (f *fakeRepo) CreateService(_ context.Context, params repository.CreateServiceParams) (repository.Service, error) {
	now := time.Now().Format(time.RFC3339)
	svc := repository.Service{ID: uuid.New(), Name: params.Name, Description: params.Description, IsActive: true, CreatedAt: now, UpdatedAt: now}
	f.services[svc.ID] = &svc
	return svc, nil
}

func (f *fakeRepo) UpdateService(_ context.Context, params repository.UpdateServiceParams) (repository.Service, error) {
	svc, ok := f.services[params.ID]
	if !ok {
		return repository.Service{}, apperr.NotFound("service not found")
	}
	if params.Name != nil {
		svc.Name = *params.Name
	}
	if params.Description != nil {
		svc.Description = *params.Description
	}
	if params.IsActive != nil {
		svc.IsActive = *params.IsActive
	}
	return *svc, nil
}

func (f *fakeRepo) GetServiceByID(_ context.Context, id uuid.UUID) (repository.Service, error) {
	svc, ok := f.services[id]
	if !ok {
		return repository.Service{}, apperr.NotFound("service not found")
	}
	return *svc, nil
}

func (f *fakeRepo) ListServices(_ context.Context, params repository.ListServicesParams) ([]repository.Service, int, error) {
	var items []repository.Service
	for _, svc := range f.services {
		if params.ActiveOnly && !svc.IsActive {
			continue
		}
		items = append(items, *svc)
	}
	return items, len(items), nil
}

func (f *fakeRepo) CreateStageDefinition(_ context.Context, params repository.CreateStageDefinitionParams) (repository.StageDefinition, error) {
	def := repository.StageDefinition{
		ID: uuid.New(), ServiceID: params.ServiceID, Name: params.Name,
		SortOrder: params.SortOrder, IsRequired: params.IsRequired,
	}
	f.definitions[def.ID] = &def
	return def, nil
}

func (f *fakeRepo) UpdateStageDefinition(_ context.Context, params repository.UpdateStageDefinitionParams) (repository.StageDefinition, error) {
	def, ok := f.definitions[params.ID]
	if !ok || def.IsDeleted {
		return repository.StageDefinition{}, apperr.NotFound("stage definition not found")
	}
	if params.Name != nil {
		def.Name = *params.Name
	}
	if params.SortOrder != nil {
		def.SortOrder = *params.SortOrder
	}
	if params.IsRequired != nil {
		def.IsRequired = *params.IsRequired
	}
	return *def, nil
}

func (f *fakeRepo) SoftDeleteStageDefinition(_ context.Context, id uuid.UUID) (repository.StageDefinition, error) {
	def, ok := f.definitions[id]
	if !ok || def.IsDeleted {
		return repository.StageDefinition{}, apperr.NotFound("stage definition not found")
	}
	def.IsDeleted = true
	return *def, nil
}

func (f *fakeRepo) HardDeleteStageDefinition(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	def, ok := f.definitions[id]
	if !ok {
		return uuid.Nil, apperr.NotFound("stage definition not found")
	}
	delete(f.definitions, id)
	return def.ServiceID, nil
}

func (f *fakeRepo) GetStageDefinitionByID(_ context.Context, id uuid.UUID) (repository.StageDefinition, error) {
	def, ok := f.definitions[id]
	if !ok {
		return repository.StageDefinition{}, apperr.NotFound("stage definition not found")
	}
	return *def, nil
}

func (f *fakeRepo) ListStageDefinitions(_ context.Context, serviceID uuid.UUID, includeDeleted bool) ([]repository.StageDefinition, error) {
	var items []repository.StageDefinition
	for _, def := range f.definitions {
		if def.ServiceID != serviceID {
			continue
		}
		if def.IsDeleted && !includeDeleted {
			continue
		}
		items = append(items, *def)
	}
	return items, nil
}

type fakeReconciler struct {
	report domain.SyncReport
	calls  []uuid.UUID
}

func (f *fakeReconciler) ReconcileService(_ context.Context, serviceID uuid.UUID) (domain.SyncReport, error) {
	f.calls = append(f.calls, serviceID)
	return f.report, nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func setup(t *testing.T) (*Service, *fakeRepo, *fakeReconciler, *recordingBus, repository.Service) {
	t.Helper()
	repo := newFakeRepo()
	rec := &fakeReconciler{}
	bus := &recordingBus{}
	svc := New(repo, rec, bus, logger.New("development"))

	owner, err := svc.CreateService(context.Background(), transport.CreateServiceRequest{Name: "Tax Advisory"})
	if err != nil {
		t.Fatalf("create service failed: %v", err)
	}
	return svc, repo, rec, bus, owner
}

func TestCreateDefinitionReconcilesAndPublishes(t *testing.T) {
	svc, _, rec, bus, owner := setup(t)
	rec.report = domain.SyncReport{Created: 4}

	resp, err := svc.CreateStageDefinition(context.Background(), owner.ID, transport.CreateStageDefinitionRequest{
		Name: "Intake", SortOrder: 1, IsRequired: true,
	})
	if err != nil {
		t.Fatalf("create definition failed: %v", err)
	}
	if resp.Sync.Created != 4 {
		t.Fatalf("expected sync report in response, got %+v", resp.Sync)
	}
	if len(rec.calls) != 1 || rec.calls[0] != owner.ID {
		t.Fatalf("expected one reconcile call for the owning service, got %v", rec.calls)
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(bus.published))
	}
	ev, ok := bus.published[0].(events.StageTemplateChanged)
	if !ok {
		t.Fatalf("expected StageTemplateChanged, got %T", bus.published[0])
	}
	if ev.ServiceID != owner.ID || ev.CreatedInstances != 4 {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
}

func TestNoOpReconcileSkipsEvent(t *testing.T) {
	svc, _, rec, bus, owner := setup(t)

	def, err := svc.CreateStageDefinition(context.Background(), owner.ID, transport.CreateStageDefinitionRequest{Name: "Intake"})
	if err != nil {
		t.Fatalf("create definition failed: %v", err)
	}
	bus.published = nil
	rec.report = domain.SyncReport{}

	name := "Client Intake"
	if _, err := svc.UpdateStageDefinition(context.Background(), def.Definition.ID, transport.UpdateStageDefinitionRequest{Name: &name}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(bus.published) != 0 {
		t.Fatalf("a no-op sync must not publish, got %d events", len(bus.published))
	}
}

func TestSoftDeleteRetiresDefinition(t *testing.T) {
	svc, repo, rec, _, owner := setup(t)

	def, err := svc.CreateStageDefinition(context.Background(), owner.ID, transport.CreateStageDefinitionRequest{Name: "Review"})
	if err != nil {
		t.Fatalf("create definition failed: %v", err)
	}
	rec.calls = nil

	resp, err := svc.SoftDeleteStageDefinition(context.Background(), def.Definition.ID)
	if err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}
	if !resp.Definition.IsDeleted {
		t.Fatalf("expected definition marked deleted")
	}
	if len(rec.calls) != 1 {
		t.Fatalf("soft delete must still reconcile, got %v", rec.calls)
	}
	// Row survives.
	if _, ok := repo.definitions[def.Definition.ID]; !ok {
		t.Fatalf("soft delete must keep the row")
	}

	// Retired definitions cannot be edited.
	name := "x"
	if _, err := svc.UpdateStageDefinition(context.Background(), def.Definition.ID, transport.UpdateStageDefinitionRequest{Name: &name}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found editing retired definition, got %v", err)
	}
}

func TestHardDeleteRemovesRowAndReportsOrphans(t *testing.T) {
	svc, repo, rec, _, owner := setup(t)

	def, err := svc.CreateStageDefinition(context.Background(), owner.ID, transport.CreateStageDefinitionRequest{Name: "Review"})
	if err != nil {
		t.Fatalf("create definition failed: %v", err)
	}
	rec.report = domain.SyncReport{Removed: 7}

	resp, err := svc.HardDeleteStageDefinition(context.Background(), def.Definition.ID)
	if err != nil {
		t.Fatalf("hard delete failed: %v", err)
	}
	if resp.Sync.Removed != 7 {
		t.Fatalf("expected orphan count in report, got %+v", resp.Sync)
	}
	if _, ok := repo.definitions[def.Definition.ID]; ok {
		t.Fatalf("hard delete must remove the row")
	}
}

func TestCreateDefinitionUnknownService(t *testing.T) {
	svc, _, _, _, _ := setup(t)

	_, err := svc.CreateStageDefinition(context.Background(), uuid.New(), transport.CreateStageDefinitionRequest{Name: "Intake"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown service, got %v", err)
	}
}

func TestUpdateServiceRejectsEmptyName(t *testing.T) {
	svc, _, _, _, owner := setup(t)

	empty := "   "
	_, err := svc.UpdateService(context.Background(), owner.ID, transport.UpdateServiceRequest{Name: &empty})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
