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

	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/platform/apperr"
)

const (
	clientNotFoundMessage          = "client not found"
	contractNotFoundMessage        = "contract not found"
	contractServiceNotFoundMessage = "contract service not found"
)

// Repo implements the contracts repository.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new contracts repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// ActiveServiceIDs returns which of the given ids are active catalog
// services.
func (r *Repo) ActiveServiceIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT id FROM services WHERE id = ANY($1) AND is_active`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("active service ids: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan service id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CreateClient creates a client.
func (r *Repo) CreateClient(ctx context.Context, params CreateClientParams) (Client, error) {
	query := `
		INSERT INTO clients (name, email)
		VALUES ($1, $2)
		RETURNING id, name, email, is_active, created_at, updated_at`

	client, err := scanClient(r.pool.QueryRow(ctx, query, params.Name, params.Email))
	if err != nil {
		return Client{}, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

// GetClientByID retrieves a client by ID.
func (r *Repo) GetClientByID(ctx context.Context, id uuid.UUID) (Client, error) {
	query := `
		SELECT id, name, email, is_active, created_at, updated_at
		FROM clients
		WHERE id = $1`

	client, err := scanClient(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, apperr.NotFound(clientNotFoundMessage)
		}
		return Client{}, fmt.Errorf("get client by id: %w", err)
	}
	return client, nil
}

// ListClients lists clients with search and pagination.
func (r *Repo) ListClients(ctx context.Context, params ListClientsParams) ([]Client, int, error) {
	whereClauses := []string{"true"}
	args := []interface{}{}
	argIdx := 1

	if params.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}

	whereClause := strings.Join(whereClauses, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM clients WHERE " + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, name, email, is_active, created_at, updated_at
		FROM clients
		WHERE %s
		ORDER BY name
		OFFSET $%d LIMIT $%d`, whereClause, argIdx, argIdx+1)
	args = append(args, params.Offset, params.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var items []Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, client)
	}
	return items, total, rows.Err()
}

// CreateContract creates a contract and one contract service per purchased
// service in a single transaction.
func (r *Repo) CreateContract(ctx context.Context, params CreateContractParams) (Contract, []ContractService, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Contract{}, nil, apperr.Wrap(apperr.KindUnavailable, "could not create contract", err)
	}
	defer tx.Rollback(ctx)

	contractQuery := `
		INSERT INTO contracts (client_id, title, status)
		VALUES ($1, $2, $3)
		RETURNING id, client_id, title, status, signed_at, created_at, updated_at`

	contract, err := scanContract(tx.QueryRow(ctx, contractQuery, params.ClientID, params.Title, ContractActive))
	if err != nil {
		return Contract{}, nil, fmt.Errorf("create contract: %w", err)
	}

	csQuery := `
		INSERT INTO contract_services (contract_id, service_id, status, scheduled_start_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id, contract_id, service_id, status, scheduled_start_date, created_at, updated_at`

	services := make([]ContractService, 0, len(params.ServiceIDs))
	for _, serviceID := range params.ServiceIDs {
		cs, err := scanContractService(tx.QueryRow(ctx, csQuery,
			contract.ID, serviceID, params.InitialStatus, params.ScheduledStartDate))
		if err != nil {
			return Contract{}, nil, fmt.Errorf("create contract service: %w", err)
		}
		services = append(services, cs)
	}

	if err := tx.Commit(ctx); err != nil {
		return Contract{}, nil, apperr.Wrap(apperr.KindUnavailable, "could not create contract", err)
	}
	return contract, services, nil
}

// GetContractByID retrieves a contract by ID.
func (r *Repo) GetContractByID(ctx context.Context, id uuid.UUID) (Contract, error) {
	query := `
		SELECT id, client_id, title, status, signed_at, created_at, updated_at
		FROM contracts
		WHERE id = $1`

	contract, err := scanContract(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, apperr.NotFound(contractNotFoundMessage)
		}
		return Contract{}, fmt.Errorf("get contract by id: %w", err)
	}
	return contract, nil
}

// ListContractsByClient lists a client's contracts, newest first.
func (r *Repo) ListContractsByClient(ctx context.Context, clientID uuid.UUID) ([]Contract, error) {
	query := `
		SELECT id, client_id, title, status, signed_at, created_at, updated_at
		FROM contracts
		WHERE client_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var items []Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		items = append(items, contract)
	}
	return items, rows.Err()
}

// SetContractStatus updates a contract's lifecycle status. Activation
// stamps signed_at if unset.
func (r *Repo) SetContractStatus(ctx context.Context, id uuid.UUID, status ContractStatus) (Contract, error) {
	query := `
		UPDATE contracts
		SET status = $2,
			signed_at = CASE WHEN $2 = 'active' AND signed_at IS NULL THEN now() ELSE signed_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING id, client_id, title, status, signed_at, created_at, updated_at`

	contract, err := scanContract(r.pool.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, apperr.NotFound(contractNotFoundMessage)
		}
		return Contract{}, fmt.Errorf("set contract status: %w", err)
	}
	return contract, nil
}

// GetContractService retrieves one contract service.
func (r *Repo) GetContractService(ctx context.Context, id uuid.UUID) (ContractService, error) {
	query := `
		SELECT id, contract_id, service_id, status, scheduled_start_date, created_at, updated_at
		FROM contract_services
		WHERE id = $1`

	cs, err := scanContractService(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContractService{}, apperr.NotFound(contractServiceNotFoundMessage)
		}
		return ContractService{}, fmt.Errorf("get contract service: %w", err)
	}
	return cs, nil
}

// ListContractServices lists the contract's services.
func (r *Repo) ListContractServices(ctx context.Context, contractID uuid.UUID) ([]ContractService, error) {
	query := `
		SELECT id, contract_id, service_id, status, scheduled_start_date, created_at, updated_at
		FROM contract_services
		WHERE contract_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("list contract services: %w", err)
	}
	defer rows.Close()

	var items []ContractService
	for rows.Next() {
		cs, err := scanContractService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract service: %w", err)
		}
		items = append(items, cs)
	}
	return items, rows.Err()
}

// SetContractServiceStatus writes a contract service status directly. The
// service layer restricts which statuses a human may set this way.
func (r *Repo) SetContractServiceStatus(ctx context.Context, id uuid.UUID, status domain.ContractServiceStatus) (ContractService, error) {
	query := `
		UPDATE contract_services
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, contract_id, service_id, status, scheduled_start_date, created_at, updated_at`

	cs, err := scanContractService(r.pool.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContractService{}, apperr.NotFound(contractServiceNotFoundMessage)
		}
		return ContractService{}, fmt.Errorf("set contract service status: %w", err)
	}
	return cs, nil
}

// CreateRoutine creates a routine linked to a contract service.
func (r *Repo) CreateRoutine(ctx context.Context, params CreateRoutineParams) (ServiceRoutine, error) {
	query := `
		INSERT INTO service_routines (contract_service_id, name, status, scheduled_for)
		VALUES ($1, $2, $3, $4)
		RETURNING id, contract_service_id, name, status, scheduled_for, created_at, updated_at`

	routine, err := scanRoutine(r.pool.QueryRow(ctx, query,
		params.ContractServiceID, params.Name, params.Status, params.ScheduledFor))
	if err != nil {
		return ServiceRoutine{}, fmt.Errorf("create routine: %w", err)
	}
	return routine, nil
}

// ListRoutines lists a contract service's routines.
func (r *Repo) ListRoutines(ctx context.Context, contractServiceID uuid.UUID) ([]ServiceRoutine, error) {
	query := `
		SELECT id, contract_service_id, name, status, scheduled_for, created_at, updated_at
		FROM service_routines
		WHERE contract_service_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, contractServiceID)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer rows.Close()

	var items []ServiceRoutine
	for rows.Next() {
		routine, err := scanRoutine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		items = append(items, routine)
	}
	return items, rows.Err()
}

// PromoteRoutines moves routines in status from to status to and returns
// how many moved.
func (r *Repo) PromoteRoutines(ctx context.Context, contractServiceID uuid.UUID, from, to domain.ContractServiceStatus) (int, error) {
	query := `
		UPDATE service_routines
		SET status = $3, updated_at = now()
		WHERE contract_service_id = $1 AND status = $2`

	tag, err := r.pool.Exec(ctx, query, contractServiceID, from, to)
	if err != nil {
		return 0, fmt.Errorf("promote routines: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CompleteRoutines completes every routine of the contract service that is
// not already in a terminal state.
func (r *Repo) CompleteRoutines(ctx context.Context, contractServiceID uuid.UUID) (int, error) {
	query := `
		UPDATE service_routines
		SET status = $2, updated_at = now()
		WHERE contract_service_id = $1 AND status NOT IN ('completed', 'cancelled', 'suspended')`

	tag, err := r.pool.Exec(ctx, query, contractServiceID, domain.StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("complete routines: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanClient(row pgx.Row) (Client, error) {
	var client Client
	var createdAt, updatedAt time.Time
	if err := row.Scan(&client.ID, &client.Name, &client.Email, &client.IsActive, &createdAt, &updatedAt); err != nil {
		return Client{}, err
	}
	client.CreatedAt = createdAt.Format(time.RFC3339)
	client.UpdatedAt = updatedAt.Format(time.RFC3339)
	return client, nil
}

func scanContract(row pgx.Row) (Contract, error) {
	var contract Contract
	var createdAt, updatedAt time.Time
	if err := row.Scan(&contract.ID, &contract.ClientID, &contract.Title, &contract.Status,
		&contract.SignedAt, &createdAt, &updatedAt); err != nil {
		return Contract{}, err
	}
	contract.CreatedAt = createdAt.Format(time.RFC3339)
	contract.UpdatedAt = updatedAt.Format(time.RFC3339)
	return contract, nil
}

func scanContractService(row pgx.Row) (ContractService, error) {
	var cs ContractService
	var createdAt, updatedAt time.Time
	if err := row.Scan(&cs.ID, &cs.ContractID, &cs.ServiceID, &cs.Status,
		&cs.ScheduledStartDate, &createdAt, &updatedAt); err != nil {
		return ContractService{}, err
	}
	cs.CreatedAt = createdAt.Format(time.RFC3339)
	cs.UpdatedAt = updatedAt.Format(time.RFC3339)
	return cs, nil
}

func scanRoutine(row pgx.Row) (ServiceRoutine, error) {
	var routine ServiceRoutine
	var createdAt, updatedAt time.Time
	if err := row.Scan(&routine.ID, &routine.ContractServiceID, &routine.Name, &routine.Status,
		&routine.ScheduledFor, &createdAt, &updatedAt); err != nil {
		return ServiceRoutine{}, err
	}
	routine.CreatedAt = createdAt.Format(time.RFC3339)
	routine.UpdatedAt = updatedAt.Format(time.RFC3339)
	return routine, nil
}
