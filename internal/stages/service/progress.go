package service

import (
	"context"

	"github.com/google/uuid"

	"advisory_portal_backend/internal/stages/domain"
	"advisory_portal_backend/internal/stages/repository"
)

// ContractProgress is the aggregated progress of a contract across its
// contract services.
type ContractProgress struct {
	ContractID uuid.UUID       `json:"contractId"`
	Progress   domain.Progress `json:"progress"`
	Services   int             `json:"services"`
}

// ClientProgress is the aggregated progress of a client across its active
// contracts.
type ClientProgress struct {
	ClientID        uuid.UUID       `json:"clientId"`
	Progress        domain.Progress `json:"progress"`
	ActiveContracts int             `json:"activeContracts"`
	TotalContracts  int             `json:"totalContracts"`
}

// ClientProgressRow is one entry of the all-clients rollup used by the
// reporting dashboards.
type ClientProgressRow struct {
	ClientID        uuid.UUID       `json:"clientId"`
	ClientName      string          `json:"clientName"`
	Progress        domain.Progress `json:"progress"`
	ActiveContracts int             `json:"activeContracts"`
}

// ProgressForContractService computes completion for a single contract
// service from a grouped count query.
func (s *Service) ProgressForContractService(ctx context.Context, contractServiceID uuid.UUID) (domain.Progress, error) {
	counts, err := s.store.CountsForContractService(ctx, contractServiceID)
	if err != nil {
		return domain.Progress{}, err
	}
	return counts.Progress(), nil
}

// ProgressForContract sums applicable units across the contract's services.
// Stage-less services contribute their synthetic unit, so an empty contract
// still reports coherent zeros.
func (s *Service) ProgressForContract(ctx context.Context, contractID uuid.UUID) (ContractProgress, error) {
	counts, err := s.store.CountsForContract(ctx, contractID)
	if err != nil {
		return ContractProgress{}, err
	}

	return ContractProgress{
		ContractID: contractID,
		Progress:   aggregateCounts(counts),
		Services:   len(counts),
	}, nil
}

// ProgressForClient aggregates over the client's active contracts only. A
// client with zero active contracts reports zero progress, not an error.
func (s *Service) ProgressForClient(ctx context.Context, clientID uuid.UUID) (ClientProgress, error) {
	counts, tally, err := s.store.CountsForClient(ctx, clientID)
	if err != nil {
		return ClientProgress{}, err
	}

	return ClientProgress{
		ClientID:        clientID,
		Progress:        aggregateCounts(counts),
		ActiveContracts: tally.ActiveContracts,
		TotalContracts:  tally.TotalContracts,
	}, nil
}

// ProgressForAllClients rolls up every client with at least one active
// contract in a single query; clients without active contracts are simply
// absent from the listing.
func (s *Service) ProgressForAllClients(ctx context.Context) ([]ClientProgressRow, error) {
	rollups, err := s.store.CountsForAllClients(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ClientProgressRow, len(rollups))
	for i, r := range rollups {
		out[i] = ClientProgressRow{
			ClientID:   r.ClientID,
			ClientName: r.ClientName,
			Progress: domain.Progress{
				Total:      r.Total,
				Completed:  r.Completed,
				Percentage: domain.Percent(r.Completed, r.Total),
			},
			ActiveContracts: r.ActiveContracts,
		}
	}
	return out, nil
}

func aggregateCounts(counts []repository.ServiceCounts) domain.Progress {
	parts := make([]domain.Progress, len(counts))
	for i, c := range counts {
		parts[i] = c.Progress()
	}
	return domain.Aggregate(parts)
}
