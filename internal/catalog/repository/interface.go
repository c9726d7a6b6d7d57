// Package repository provides data access for the service catalog: the
// services on offer and the stage definitions that template their delivery.
package repository

import (
	"context"

	"github.com/google/uuid"
)

// Service is a sellable advisory service owned by the catalog.
type Service struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   string    `json:"createdAt"`
	UpdatedAt   string    `json:"updatedAt"`
}

// StageDefinition is one template step of a service. A soft-deleted
// definition keeps its row (and its instances) but leaves the active
// template; only a hard delete removes the row.
type StageDefinition struct {
	ID         uuid.UUID `json:"id"`
	ServiceID  uuid.UUID `json:"serviceId"`
	Name       string    `json:"name"`
	SortOrder  int       `json:"sortOrder"`
	IsRequired bool      `json:"isRequired"`
	IsDeleted  bool      `json:"isDeleted"`
	CreatedAt  string    `json:"createdAt"`
	UpdatedAt  string    `json:"updatedAt"`
}

// CreateServiceParams holds fields for creating a service.
type CreateServiceParams struct {
	Name        string
	Description string
}

// UpdateServiceParams holds the patch for updating a service. Nil fields
// are left unchanged.
type UpdateServiceParams struct {
	ID          uuid.UUID
	Name        *string
	Description *string
	IsActive    *bool
}

// ListServicesParams filters the service listing.
type ListServicesParams struct {
	Search     string
	ActiveOnly bool
	Offset     int
	Limit      int
}

// CreateStageDefinitionParams holds fields for creating a stage definition.
type CreateStageDefinitionParams struct {
	ServiceID  uuid.UUID
	Name       string
	SortOrder  int
	IsRequired bool
}

// UpdateStageDefinitionParams holds the patch for updating a stage
// definition. Nil fields are left unchanged.
type UpdateStageDefinitionParams struct {
	ID         uuid.UUID
	Name       *string
	SortOrder  *int
	IsRequired *bool
}

// Repository defines data access for the catalog module.
type Repository interface {
	CreateService(ctx context.Context, params CreateServiceParams) (Service, error)
	UpdateService(ctx context.Context, params UpdateServiceParams) (Service, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (Service, error)
	ListServices(ctx context.Context, params ListServicesParams) ([]Service, int, error)

	CreateStageDefinition(ctx context.Context, params CreateStageDefinitionParams) (StageDefinition, error)
	UpdateStageDefinition(ctx context.Context, params UpdateStageDefinitionParams) (StageDefinition, error)
	SoftDeleteStageDefinition(ctx context.Context, id uuid.UUID) (StageDefinition, error)
	HardDeleteStageDefinition(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	GetStageDefinitionByID(ctx context.Context, id uuid.UUID) (StageDefinition, error)
	ListStageDefinitions(ctx context.Context, serviceID uuid.UUID, includeDeleted bool) ([]StageDefinition, error)
}
