// Package transport defines request and response DTOs for the catalog API.
package transport

import (
	"advisory_portal_backend/internal/catalog/repository"
)

// CreateServiceRequest creates a new catalog service.
type CreateServiceRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateServiceRequest patches a catalog service.
type UpdateServiceRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	IsActive    *bool   `json:"isActive"`
}

// ListServicesRequest filters the service listing.
type ListServicesRequest struct {
	Search     string `form:"search"`
	ActiveOnly bool   `form:"activeOnly"`
	Page       int    `form:"page"`
	PageSize   int    `form:"pageSize"`
}

// ServiceListResponse is a paginated service listing.
type ServiceListResponse struct {
	Items    []repository.Service `json:"items"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

// CreateStageDefinitionRequest adds a stage to a service's template.
type CreateStageDefinitionRequest struct {
	Name       string `json:"name" validate:"required,min=1,max=200"`
	SortOrder  int    `json:"sortOrder" validate:"gte=0"`
	IsRequired bool   `json:"isRequired"`
}

// UpdateStageDefinitionRequest patches a stage definition.
type UpdateStageDefinitionRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=1,max=200"`
	SortOrder  *int    `json:"sortOrder" validate:"omitempty,gte=0"`
	IsRequired *bool   `json:"isRequired"`
}

// SyncReport mirrors the reconciliation outcome of a template mutation.
type SyncReport struct {
	Created   int `json:"created"`
	Removed   int `json:"removed"`
	Conflicts int `json:"conflicts"`
}

// DefinitionResponse pairs a stage definition with the reconciliation
// report of the sync run its mutation triggered.
type DefinitionResponse struct {
	Definition repository.StageDefinition `json:"definition"`
	Sync       SyncReport                 `json:"sync"`
}

// DeleteDefinitionResponse reports the outcome of a hard delete.
type DeleteDefinitionResponse struct {
	Sync SyncReport `json:"sync"`
}

// DefinitionListResponse lists a service's stage definitions.
type DefinitionListResponse struct {
	Items []repository.StageDefinition `json:"items"`
}
