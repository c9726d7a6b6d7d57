// Package repository provides data access for clients, contracts, the
// contract services purchased under them, and the routines mirroring
// contract-service lifecycle.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"advisory_portal_backend/internal/stages/domain"
)

// Client is the top of the aggregation hierarchy.
type Client struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"isActive"`
	CreatedAt string    `json:"createdAt"`
	UpdatedAt string    `json:"updatedAt"`
}

// ContractStatus is the lifecycle state of a contract.
type ContractStatus string

const (
	ContractDraft     ContractStatus = "draft"
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
)

// IsValidContractStatus reports whether s is a known contract status.
func IsValidContractStatus(s ContractStatus) bool {
	switch s {
	case ContractDraft, ContractActive, ContractCompleted, ContractCancelled:
		return true
	}
	return false
}

// Contract groups the services a client purchased in one engagement.
type Contract struct {
	ID        uuid.UUID      `json:"id"`
	ClientID  uuid.UUID      `json:"clientId"`
	Title     string         `json:"title"`
	Status    ContractStatus `json:"status"`
	SignedAt  *time.Time     `json:"signedAt,omitempty"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}

// ContractService is one purchased service under a contract.
type ContractService struct {
	ID                 uuid.UUID                    `json:"id"`
	ContractID         uuid.UUID                    `json:"contractId"`
	ServiceID          uuid.UUID                    `json:"serviceId"`
	Status             domain.ContractServiceStatus `json:"status"`
	ScheduledStartDate *time.Time                   `json:"scheduledStartDate,omitempty"`
	CreatedAt          string                       `json:"createdAt"`
	UpdatedAt          string                       `json:"updatedAt"`
}

// ServiceRoutine is a recurring obligation linked to a contract service.
// Its status mirrors the contract service's lifecycle.
type ServiceRoutine struct {
	ID                uuid.UUID                    `json:"id"`
	ContractServiceID uuid.UUID                    `json:"contractServiceId"`
	Name              string                       `json:"name"`
	Status            domain.ContractServiceStatus `json:"status"`
	ScheduledFor      *time.Time                   `json:"scheduledFor,omitempty"`
	CreatedAt         string                       `json:"createdAt"`
	UpdatedAt         string                       `json:"updatedAt"`
}

// CreateClientParams holds fields for creating a client.
type CreateClientParams struct {
	Name  string
	Email string
}

// ListClientsParams filters the client listing.
type ListClientsParams struct {
	Search string
	Offset int
	Limit  int
}

// CreateContractParams creates a contract together with one contract
// service per purchased service, in one transaction.
type CreateContractParams struct {
	ClientID           uuid.UUID
	Title              string
	ServiceIDs         []uuid.UUID
	ScheduledStartDate *time.Time
	InitialStatus      domain.ContractServiceStatus
}

// CreateRoutineParams holds fields for creating a routine.
type CreateRoutineParams struct {
	ContractServiceID uuid.UUID
	Name              string
	ScheduledFor      *time.Time
	Status            domain.ContractServiceStatus
}

// Repository defines data access for the contracts module.
type Repository interface {
	// ActiveServiceIDs returns which of the given ids are active catalog
	// services.
	ActiveServiceIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	CreateClient(ctx context.Context, params CreateClientParams) (Client, error)
	GetClientByID(ctx context.Context, id uuid.UUID) (Client, error)
	ListClients(ctx context.Context, params ListClientsParams) ([]Client, int, error)

	CreateContract(ctx context.Context, params CreateContractParams) (Contract, []ContractService, error)
	GetContractByID(ctx context.Context, id uuid.UUID) (Contract, error)
	ListContractsByClient(ctx context.Context, clientID uuid.UUID) ([]Contract, error)
	SetContractStatus(ctx context.Context, id uuid.UUID, status ContractStatus) (Contract, error)

	GetContractService(ctx context.Context, id uuid.UUID) (ContractService, error)
	ListContractServices(ctx context.Context, contractID uuid.UUID) ([]ContractService, error)
	SetContractServiceStatus(ctx context.Context, id uuid.UUID, status domain.ContractServiceStatus) (ContractService, error)

	CreateRoutine(ctx context.Context, params CreateRoutineParams) (ServiceRoutine, error)
	ListRoutines(ctx context.Context, contractServiceID uuid.UUID) ([]ServiceRoutine, error)
	PromoteRoutines(ctx context.Context, contractServiceID uuid.UUID, from, to domain.ContractServiceStatus) (int, error)
	CompleteRoutines(ctx context.Context, contractServiceID uuid.UUID) (int, error)
}
