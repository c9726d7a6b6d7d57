package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"advisory_portal_backend/platform/apperr"
)

const (
	serviceNotFoundMessage    = "service not found"
	definitionNotFoundMessage = "stage definition not found"
)

// Repo implements the catalog repository.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new catalog repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// CreateService creates a service.
func (r *Repo) CreateService(ctx context.Context, params CreateServiceParams) (Service, error) {
	query := `
		INSERT INTO services (name, description)
		VALUES ($1, $2)
		RETURNING id, name, description, is_active, created_at, updated_at`

	svc, err := scanService(r.pool.QueryRow(ctx, query, params.Name, params.Description))
	if err != nil {
		return Service{}, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// UpdateService updates a service.
func (r *Repo) UpdateService(ctx context.Context, params UpdateServiceParams) (Service, error) {
	query := `
		UPDATE services
		SET name = COALESCE($2, name),
			description = COALESCE($3, description),
			is_active = COALESCE($4, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, is_active, created_at, updated_at`

	svc, err := scanService(r.pool.QueryRow(ctx, query, params.ID, params.Name, params.Description, params.IsActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Service{}, apperr.NotFound(serviceNotFoundMessage)
		}
		return Service{}, fmt.Errorf("update service: %w", err)
	}
	return svc, nil
}

// GetServiceByID retrieves a service by ID.
func (r *Repo) GetServiceByID(ctx context.Context, id uuid.UUID) (Service, error) {
	query := `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM services
		WHERE id = $1`

	svc, err := scanService(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Service{}, apperr.NotFound(serviceNotFoundMessage)
		}
		return Service{}, fmt.Errorf("get service by id: %w", err)
	}
	return svc, nil
}

// ListServices lists services with filters and pagination.
func (r *Repo) ListServices(ctx context.Context, params ListServicesParams) ([]Service, int, error) {
	whereClauses := []string{"true"}
	args := []interface{}{}
	argIdx := 1

	if params.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("name ILIKE $%d", argIdx))
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}
	if params.ActiveOnly {
		whereClauses = append(whereClauses, "is_active")
	}

	whereClause := strings.Join(whereClauses, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM services WHERE " + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count services: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, name, description, is_active, created_at, updated_at
		FROM services
		WHERE %s
		ORDER BY name
		OFFSET $%d LIMIT $%d`, whereClause, argIdx, argIdx+1)
	args = append(args, params.Offset, params.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var items []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan service: %w", err)
		}
		items = append(items, svc)
	}
	return items, total, rows.Err()
}

// CreateStageDefinition creates a stage definition for a service.
func (r *Repo) CreateStageDefinition(ctx context.Context, params CreateStageDefinitionParams) (StageDefinition, error) {
	query := `
		INSERT INTO service_stage_definitions (service_id, name, sort_order, is_required)
		VALUES ($1, $2, $3, $4)
		RETURNING id, service_id, name, sort_order, is_required, deleted_at IS NOT NULL, created_at, updated_at`

	def, err := scanDefinition(r.pool.QueryRow(ctx, query,
		params.ServiceID, params.Name, params.SortOrder, params.IsRequired))
	if err != nil {
		return StageDefinition{}, fmt.Errorf("create stage definition: %w", err)
	}
	return def, nil
}

// UpdateStageDefinition updates a stage definition. Soft-deleted
// definitions cannot be edited.
func (r *Repo) UpdateStageDefinition(ctx context.Context, params UpdateStageDefinitionParams) (StageDefinition, error) {
	query := `
		UPDATE service_stage_definitions
		SET name = COALESCE($2, name),
			sort_order = COALESCE($3, sort_order),
			is_required = COALESCE($4, is_required),
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id, service_id, name, sort_order, is_required, deleted_at IS NOT NULL, created_at, updated_at`

	def, err := scanDefinition(r.pool.QueryRow(ctx, query,
		params.ID, params.Name, params.SortOrder, params.IsRequired))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StageDefinition{}, apperr.NotFound(definitionNotFoundMessage)
		}
		return StageDefinition{}, fmt.Errorf("update stage definition: %w", err)
	}
	return def, nil
}

// SoftDeleteStageDefinition retires a definition from the active template.
// Existing stage instances keep counting toward progress.
func (r *Repo) SoftDeleteStageDefinition(ctx context.Context, id uuid.UUID) (StageDefinition, error) {
	query := `
		UPDATE service_stage_definitions
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id, service_id, name, sort_order, is_required, deleted_at IS NOT NULL, created_at, updated_at`

	def, err := scanDefinition(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StageDefinition{}, apperr.NotFound(definitionNotFoundMessage)
		}
		return StageDefinition{}, fmt.Errorf("soft delete stage definition: %w", err)
	}
	return def, nil
}

// HardDeleteStageDefinition removes the definition row entirely and returns
// the owning service id. Orphaned instances are cleaned up by the sync run
// that follows.
func (r *Repo) HardDeleteStageDefinition(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	query := `DELETE FROM service_stage_definitions WHERE id = $1 RETURNING service_id`

	var serviceID uuid.UUID
	if err := r.pool.QueryRow(ctx, query, id).Scan(&serviceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperr.NotFound(definitionNotFoundMessage)
		}
		return uuid.Nil, fmt.Errorf("hard delete stage definition: %w", err)
	}
	return serviceID, nil
}

// GetStageDefinitionByID retrieves a stage definition by ID, deleted or not.
func (r *Repo) GetStageDefinitionByID(ctx context.Context, id uuid.UUID) (StageDefinition, error) {
	query := `
		SELECT id, service_id, name, sort_order, is_required, deleted_at IS NOT NULL, created_at, updated_at
		FROM service_stage_definitions
		WHERE id = $1`

	def, err := scanDefinition(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StageDefinition{}, apperr.NotFound(definitionNotFoundMessage)
		}
		return StageDefinition{}, fmt.Errorf("get stage definition by id: %w", err)
	}
	return def, nil
}

// ListStageDefinitions lists a service's definitions in template order.
func (r *Repo) ListStageDefinitions(ctx context.Context, serviceID uuid.UUID, includeDeleted bool) ([]StageDefinition, error) {
	query := `
		SELECT id, service_id, name, sort_order, is_required, deleted_at IS NOT NULL, created_at, updated_at
		FROM service_stage_definitions
		WHERE service_id = $1 AND (deleted_at IS NULL OR $2)
		ORDER BY sort_order, name`

	rows, err := r.pool.Query(ctx, query, serviceID, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("list stage definitions: %w", err)
	}
	defer rows.Close()

	var items []StageDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage definition: %w", err)
		}
		items = append(items, def)
	}
	return items, rows.Err()
}

func scanService(row pgx.Row) (Service, error) {
	var svc Service
	var createdAt, updatedAt time.Time
	if err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.IsActive, &createdAt, &updatedAt); err != nil {
		return Service{}, err
	}
	svc.CreatedAt = createdAt.Format(time.RFC3339)
	svc.UpdatedAt = updatedAt.Format(time.RFC3339)
	return svc, nil
}

func scanDefinition(row pgx.Row) (StageDefinition, error) {
	var def StageDefinition
	var createdAt, updatedAt time.Time
	if err := row.Scan(&def.ID, &def.ServiceID, &def.Name, &def.SortOrder, &def.IsRequired, &def.IsDeleted, &createdAt, &updatedAt); err != nil {
		return StageDefinition{}, err
	}
	def.CreatedAt = createdAt.Format(time.RFC3339)
	def.UpdatedAt = updatedAt.Format(time.RFC3339)
	return def, nil
}
