package repository

import (
	"context"
	"time"

	"advisory_portal_backend/internal/stages/domain"

	"github.com/google/uuid"
)

// StageInstance is a per-contract copy of a stage definition, carrying the
// actual completion state. The definition reference is weak: it is used only
// for sync matching, never as ownership.
type StageInstance struct {
	ID                uuid.UUID                    `db:"id"`
	ContractServiceID uuid.UUID                    `db:"contract_service_id"`
	StageDefinitionID uuid.UUID                    `db:"stage_definition_id"`
	Name              string                       `db:"name"`
	SortOrder         int                          `db:"sort_order"`
	IsRequired        bool                         `db:"is_required"`
	Status            domain.InstanceStatus        `db:"status"`
	IsNotApplicable   bool                         `db:"is_not_applicable"`
	CompletedAt       *time.Time                   `db:"completed_at"`
	CreatedAt         string                       `db:"created_at"`
	UpdatedAt         string                       `db:"updated_at"`
}

// State projects the instance onto the progress-math view.
func (i StageInstance) State() domain.InstanceState {
	return domain.InstanceState{
		Completed:     i.Status == domain.InstanceCompleted,
		NotApplicable: i.IsNotApplicable,
	}
}

// ContractService is the engine's view of a service purchased within a
// contract.
type ContractService struct {
	ID         uuid.UUID                    `db:"id"`
	ContractID uuid.UUID                    `db:"contract_id"`
	ServiceID  uuid.UUID                    `db:"service_id"`
	Status     domain.ContractServiceStatus `db:"status"`
}

// DefinitionSnapshot carries the template fields copied onto a new instance.
type DefinitionSnapshot struct {
	ID         uuid.UUID
	Name       string
	SortOrder  int
	IsRequired bool
}

// ServiceCounts is one row of a progress rollup: the applicable stage counts
// for a single contract service.
type ServiceCounts struct {
	ContractServiceID uuid.UUID
	Status            domain.ContractServiceStatus
	Total             int
	Completed         int
}

// Progress converts the counts into progress, applying the stage-less
// synthetic-unit fallback.
func (c ServiceCounts) Progress() domain.Progress {
	return domain.ComputeFromCounts(c.Total, c.Completed, c.Status == domain.StatusCompleted)
}

// ClientContractCounts reports how many of a client's contracts exist and
// how many are active.
type ClientContractCounts struct {
	ActiveContracts int
	TotalContracts  int
}

// ClientRollup is one client's aggregated progress across its active
// contracts, produced by a single grouped query.
type ClientRollup struct {
	ClientID        uuid.UUID
	ClientName      string
	ActiveContracts int
	Total           int
	Completed       int
}

// Tx exposes the write operations available inside an Atomic block. Every
// method operates within the transaction that already holds the row locks.
type Tx interface {
	InstancesByIDs(ctx context.Context, ids []uuid.UUID) ([]StageInstance, error)
	InstancesByContractService(ctx context.Context, contractServiceID uuid.UUID) ([]StageInstance, error)
	UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus) (StageInstance, error)
	UpdateInstanceApplicability(ctx context.Context, id uuid.UUID, notApplicable bool) (StageInstance, error)
	CreateInstances(ctx context.Context, contractServiceID uuid.UUID, defs []DefinitionSnapshot) (int, error)
	DeleteInstances(ctx context.Context, ids []uuid.UUID) (int, error)
	ContractService(ctx context.Context, id uuid.UUID) (ContractService, error)
	SetContractServiceStatus(ctx context.Context, id uuid.UUID, status domain.ContractServiceStatus) error
}

// Store combines the engine's reads with the transactional write entry
// point. The read-modify-propagate sequence of every stage write runs inside
// Atomic, serialized per contract service by row locks.
type Store interface {
	// Atomic runs fn in a single transaction, first locking the given
	// contract services in ascending id order. A missing id aborts the
	// transaction with a NotFound error.
	Atomic(ctx context.Context, lockContractServiceIDs []uuid.UUID, fn func(tx Tx) error) error

	InstancesByIDs(ctx context.Context, ids []uuid.UUID) ([]StageInstance, error)
	ListByContractService(ctx context.Context, contractServiceID uuid.UUID) ([]StageInstance, error)
	GetContractService(ctx context.Context, id uuid.UUID) (ContractService, error)

	ActiveDefinitions(ctx context.Context, serviceID uuid.UUID) ([]DefinitionSnapshot, error)
	DefinitionIDs(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error)
	ContractServiceIDsByService(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error)
	ServiceExists(ctx context.Context, serviceID uuid.UUID) (bool, error)

	CountsForContractService(ctx context.Context, contractServiceID uuid.UUID) (ServiceCounts, error)
	CountsForContract(ctx context.Context, contractID uuid.UUID) ([]ServiceCounts, error)
	CountsForClient(ctx context.Context, clientID uuid.UUID) ([]ServiceCounts, ClientContractCounts, error)
	CountsForAllClients(ctx context.Context) ([]ClientRollup, error)
}
