package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/platform/apperr"
	"advisory_portal_backend/platform/db"
)

const (
	instanceNotFoundMessage        = "stage instance not found"
	contractServiceNotFoundMessage = "contract service not found"
)

const instanceColumns = `id, contract_service_id, stage_definition_id, name, sort_order, is_required, status, is_not_applicable, completed_at, created_at, updated_at`

// Repo implements the Store interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new stage instance repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Store.
var _ Store = (*Repo)(nil)

// Atomic runs fn in one transaction, locking the given contract services in
// ascending id order first. Lock ordering keeps concurrent batches that
// touch overlapping services from deadlocking.
func (r *Repo) Atomic(ctx context.Context, lockContractServiceIDs []uuid.UUID, fn func(tx Tx) error) error {
	ids := dedupe(lockContractServiceIDs)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "could not update progress", err)
	}
	defer tx.Rollback(ctx)

	if len(ids) > 0 {
		rows, err := tx.Query(ctx,
			`SELECT id FROM contract_services WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
		if err != nil {
			return fmt.Errorf("lock contract services: %w", err)
		}
		locked, err := scanIDs(rows)
		if err != nil {
			return err
		}
		if len(locked) != len(ids) {
			return apperr.NotFound(contractServiceNotFoundMessage)
		}
	}

	if err := fn(&pgxTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "could not update progress", err)
	}
	return nil
}

// pgxTx adapts a pgx transaction to the Tx interface.
type pgxTx struct {
	tx pgx.Tx
}

var _ Tx = (*pgxTx)(nil)

func (t *pgxTx) InstancesByIDs(ctx context.Context, ids []uuid.UUID) ([]StageInstance, error) {
	return instancesByIDs(ctx, t.tx, ids)
}

func (t *pgxTx) InstancesByContractService(ctx context.Context, contractServiceID uuid.UUID) ([]StageInstance, error) {
	return instancesByContractService(ctx, t.tx, contractServiceID)
}

func (t *pgxTx) UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus) (StageInstance, error) {
	query := `
		UPDATE contract_service_stage_instances SET
			status = $2,
			completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE NULL END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + instanceColumns

	inst, err := scanInstance(t.tx.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StageInstance{}, apperr.NotFound(instanceNotFoundMessage)
		}
		return StageInstance{}, fmt.Errorf("update stage instance status: %w", err)
	}
	return inst, nil
}

func (t *pgxTx) UpdateInstanceApplicability(ctx context.Context, id uuid.UUID, notApplicable bool) (StageInstance, error) {
	query := `
		UPDATE contract_service_stage_instances SET
			is_not_applicable = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + instanceColumns

	inst, err := scanInstance(t.tx.QueryRow(ctx, query, id, notApplicable))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StageInstance{}, apperr.NotFound(instanceNotFoundMessage)
		}
		return StageInstance{}, fmt.Errorf("update stage instance applicability: %w", err)
	}
	return inst, nil
}

func (t *pgxTx) CreateInstances(ctx context.Context, contractServiceID uuid.UUID, defs []DefinitionSnapshot) (int, error) {
	created := 0
	for _, def := range defs {
		query := `
			INSERT INTO contract_service_stage_instances
				(contract_service_id, stage_definition_id, name, sort_order, is_required, status, is_not_applicable)
			VALUES ($1, $2, $3, $4, $5, 'pending', false)
			ON CONFLICT (contract_service_id, stage_definition_id) DO NOTHING`

		tag, err := t.tx.Exec(ctx, query, contractServiceID, def.ID, def.Name, def.SortOrder, def.IsRequired)
		if err != nil {
			return created, fmt.Errorf("create stage instance: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

func (t *pgxTx) DeleteInstances(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := t.tx.Exec(ctx, `DELETE FROM contract_service_stage_instances WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete stage instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgxTx) ContractService(ctx context.Context, id uuid.UUID) (ContractService, error) {
	return contractServiceByID(ctx, t.tx, id)
}

func (t *pgxTx) SetContractServiceStatus(ctx context.Context, id uuid.UUID, status domain.ContractServiceStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE contract_services SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set contract service status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(contractServiceNotFoundMessage)
	}
	return nil
}

// =============================================================================
// Pool-level reads
// =============================================================================

// InstancesByIDs retrieves instances by id outside any transaction.
func (r *Repo) InstancesByIDs(ctx context.Context, ids []uuid.UUID) ([]StageInstance, error) {
	return instancesByIDs(ctx, r.pool, ids)
}

// ListByContractService retrieves all instances for a contract service in
// template order.
func (r *Repo) ListByContractService(ctx context.Context, contractServiceID uuid.UUID) ([]StageInstance, error) {
	var out []StageInstance
	err := db.WithReadRetry(ctx, func(ctx context.Context) error {
		var err error
		out, err = instancesByContractService(ctx, r.pool, contractServiceID)
		return err
	})
	return out, err
}

// GetContractService retrieves the engine's view of a contract service.
func (r *Repo) GetContractService(ctx context.Context, id uuid.UUID) (ContractService, error) {
	return contractServiceByID(ctx, r.pool, id)
}

// ActiveDefinitions returns the active stage definitions of a service in
// sort order, as snapshots ready to copy onto instances.
func (r *Repo) ActiveDefinitions(ctx context.Context, serviceID uuid.UUID) ([]DefinitionSnapshot, error) {
	query := `
		SELECT id, name, sort_order, is_required
		FROM service_stage_definitions
		WHERE service_id = $1 AND deleted_at IS NULL
		ORDER BY sort_order ASC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list active stage definitions: %w", err)
	}
	defer rows.Close()

	var defs []DefinitionSnapshot
	for rows.Next() {
		var d DefinitionSnapshot
		if err := rows.Scan(&d.ID, &d.Name, &d.SortOrder, &d.IsRequired); err != nil {
			return nil, fmt.Errorf("scan stage definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// DefinitionIDs returns every definition row still present for the service,
// soft-deleted included. Instances whose definition is absent from this set
// are orphans.
func (r *Repo) DefinitionIDs(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM service_stage_definitions WHERE service_id = $1`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list stage definition ids: %w", err)
	}
	return scanIDs(rows)
}

// ContractServiceIDsByService returns the contract services instantiated
// from the given service.
func (r *Repo) ContractServiceIDsByService(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM contract_services WHERE service_id = $1 ORDER BY id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list contract services for service: %w", err)
	}
	return scanIDs(rows)
}

// ServiceExists checks whether the catalog service exists.
func (r *Repo) ServiceExists(ctx context.Context, serviceID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM services WHERE id = $1)`, serviceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check service exists: %w", err)
	}
	return exists, nil
}

// CountsForContractService returns the applicable stage counts for one
// contract service in a single grouped query.
func (r *Repo) CountsForContractService(ctx context.Context, contractServiceID uuid.UUID) (ServiceCounts, error) {
	query := `
		SELECT cs.id, cs.status,
			COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable),
			COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable AND i.status = 'completed')
		FROM contract_services cs
		LEFT JOIN contract_service_stage_instances i ON i.contract_service_id = cs.id
		WHERE cs.id = $1
		GROUP BY cs.id, cs.status`

	var c ServiceCounts
	err := db.WithReadRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, query, contractServiceID).Scan(
			&c.ContractServiceID, &c.Status, &c.Total, &c.Completed,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServiceCounts{}, apperr.NotFound(contractServiceNotFoundMessage)
		}
		return ServiceCounts{}, fmt.Errorf("count stages for contract service: %w", err)
	}
	return c, nil
}

// CountsForContract returns one counts row per contract service of the
// contract. An empty result for an existing contract is valid.
func (r *Repo) CountsForContract(ctx context.Context, contractID uuid.UUID) ([]ServiceCounts, error) {
	exists := false
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM contracts WHERE id = $1)`, contractID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check contract exists: %w", err)
	}
	if !exists {
		return nil, apperr.NotFound("contract not found")
	}

	query := `
		SELECT cs.id, cs.status,
			COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable),
			COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable AND i.status = 'completed')
		FROM contract_services cs
		LEFT JOIN contract_service_stage_instances i ON i.contract_service_id = cs.id
		WHERE cs.contract_id = $1
		GROUP BY cs.id, cs.status
		ORDER BY cs.id`

	var out []ServiceCounts
	err := db.WithReadRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query, contractID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var c ServiceCounts
			if err := rows.Scan(&c.ContractServiceID, &c.Status, &c.Total, &c.Completed); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("count stages for contract: %w", err)
	}
	return out, nil
}

// CountsForClient returns counts rows for every contract service belonging
// to the client's active contracts, plus the contract tally.
func (r *Repo) CountsForClient(ctx context.Context, clientID uuid.UUID) ([]ServiceCounts, ClientContractCounts, error) {
	exists := false
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM clients WHERE id = $1)`, clientID).Scan(&exists); err != nil {
		return nil, ClientContractCounts{}, fmt.Errorf("check client exists: %w", err)
	}
	if !exists {
		return nil, ClientContractCounts{}, apperr.NotFound("client not found")
	}

	var tally ClientContractCounts
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'active'), COUNT(*)
		FROM contracts WHERE client_id = $1`, clientID).Scan(&tally.ActiveContracts, &tally.TotalContracts); err != nil {
		return nil, ClientContractCounts{}, fmt.Errorf("count client contracts: %w", err)
	}

	query := `
		SELECT cs.id, cs.status,
			COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable),
			COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable AND i.status = 'completed')
		FROM contracts c
		JOIN contract_services cs ON cs.contract_id = c.id
		LEFT JOIN contract_service_stage_instances i ON i.contract_service_id = cs.id
		WHERE c.client_id = $1 AND c.status = 'active'
		GROUP BY cs.id, cs.status
		ORDER BY cs.id`

	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, ClientContractCounts{}, fmt.Errorf("count stages for client: %w", err)
	}
	defer rows.Close()

	var out []ServiceCounts
	for rows.Next() {
		var c ServiceCounts
		if err := rows.Scan(&c.ContractServiceID, &c.Status, &c.Total, &c.Completed); err != nil {
			return nil, ClientContractCounts{}, fmt.Errorf("scan client counts: %w", err)
		}
		out = append(out, c)
	}
	return out, tally, rows.Err()
}

// CountsForAllClients aggregates active-contract progress for every client
// with at least one active contract, in one grouped query. Stage-less
// contract services contribute their synthetic unit via the CASE arms.
func (r *Repo) CountsForAllClients(ctx context.Context) ([]ClientRollup, error) {
	query := `
		SELECT cl.id, cl.name,
			COUNT(DISTINCT c.id),
			SUM(per_cs.total),
			SUM(per_cs.completed)
		FROM clients cl
		JOIN contracts c ON c.client_id = cl.id AND c.status = 'active'
		JOIN LATERAL (
			SELECT
				CASE WHEN COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable) = 0
					THEN 1
					ELSE COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable)
				END AS total,
				CASE WHEN COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable) = 0
					THEN (cs.status = 'completed')::int
					ELSE COUNT(i.id) FILTER (WHERE NOT i.is_not_applicable AND i.status = 'completed')
				END AS completed
			FROM contract_services cs
			LEFT JOIN contract_service_stage_instances i ON i.contract_service_id = cs.id
			WHERE cs.contract_id = c.id
			GROUP BY cs.id, cs.status
		) per_cs ON true
		GROUP BY cl.id, cl.name
		ORDER BY cl.name`

	var out []ClientRollup
	err := db.WithReadRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var c ClientRollup
			if err := rows.Scan(&c.ClientID, &c.ClientName, &c.ActiveContracts, &c.Total, &c.Completed); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("roll up client progress: %w", err)
	}
	return out, nil
}

// =============================================================================
// Shared scan helpers
// =============================================================================

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func instancesByIDs(ctx context.Context, q rowQuerier, ids []uuid.UUID) ([]StageInstance, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + instanceColumns + `
		FROM contract_service_stage_instances
		WHERE id = ANY($1)
		ORDER BY sort_order ASC, created_at ASC`

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list stage instances by ids: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

func instancesByContractService(ctx context.Context, q rowQuerier, contractServiceID uuid.UUID) ([]StageInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM contract_service_stage_instances
		WHERE contract_service_id = $1
		ORDER BY sort_order ASC, created_at ASC`

	rows, err := q.Query(ctx, query, contractServiceID)
	if err != nil {
		return nil, fmt.Errorf("list stage instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

func contractServiceByID(ctx context.Context, q rowQuerier, id uuid.UUID) (ContractService, error) {
	var cs ContractService
	err := q.QueryRow(ctx,
		`SELECT id, contract_id, service_id, status FROM contract_services WHERE id = $1`, id,
	).Scan(&cs.ID, &cs.ContractID, &cs.ServiceID, &cs.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContractService{}, apperr.NotFound(contractServiceNotFoundMessage)
		}
		return ContractService{}, fmt.Errorf("get contract service: %w", err)
	}
	return cs, nil
}

func scanInstance(row pgx.Row) (StageInstance, error) {
	var inst StageInstance
	var createdAt, updatedAt time.Time
	err := row.Scan(
		&inst.ID, &inst.ContractServiceID, &inst.StageDefinitionID, &inst.Name,
		&inst.SortOrder, &inst.IsRequired, &inst.Status, &inst.IsNotApplicable,
		&inst.CompletedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return StageInstance{}, err
	}
	inst.CreatedAt = createdAt.Format(time.RFC3339)
	inst.UpdatedAt = updatedAt.Format(time.RFC3339)
	return inst, nil
}

func scanInstances(rows pgx.Rows) ([]StageInstance, error) {
	var results []StageInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage instance: %w", err)
		}
		results = append(results, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage instances: %w", err)
	}
	return results, nil
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
