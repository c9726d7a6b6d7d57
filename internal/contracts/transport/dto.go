// Package transport defines request and response DTOs for the contracts API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"advisory_portal_backend/internal/contracts/repository"
)

// CreateClientRequest creates a client.
type CreateClientRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

// ListClientsRequest filters the client listing.
type ListClientsRequest struct {
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// ClientListResponse is a paginated client listing.
type ClientListResponse struct {
	Items    []repository.Client `json:"items"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

// CreateContractRequest creates a contract with its purchased services.
type CreateContractRequest struct {
	Title              string      `json:"title" validate:"required,min=1,max=300"`
	ServiceIDs         []uuid.UUID `json:"serviceIds" validate:"required,min=1"`
	ScheduledStartDate *time.Time  `json:"scheduledStartDate"`
}

// SyncReport mirrors the stage reconciliation outcome per contract service.
type SyncReport struct {
	Created   int `json:"created"`
	Removed   int `json:"removed"`
	Conflicts int `json:"conflicts"`
}

// ContractResponse pairs a contract with its services and the stage
// instantiation report.
type ContractResponse struct {
	Contract repository.Contract          `json:"contract"`
	Services []repository.ContractService `json:"services"`
	Sync     SyncReport                   `json:"sync"`
}

// UpdateContractStatusRequest moves a contract through its lifecycle.
type UpdateContractStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active completed cancelled"`
}

// OverrideStatusRequest sets a contract service status by hand. Only the
// states the progress engine never enters on its own are accepted here;
// in_progress and completed belong to the propagator.
type OverrideStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=not_started scheduled cancelled suspended"`
}

// CreateRoutineRequest links a routine to a contract service.
type CreateRoutineRequest struct {
	Name         string     `json:"name" validate:"required,min=1,max=200"`
	ScheduledFor *time.Time `json:"scheduledFor"`
}

// RoutineListResponse lists a contract service's routines.
type RoutineListResponse struct {
	Items []repository.ServiceRoutine `json:"items"`
}
