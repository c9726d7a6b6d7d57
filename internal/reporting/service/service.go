// Package service assembles progress reports from the stage engine's
// rollups: per contract service, per contract, per client, and the ranked
// all-clients dashboard listing.
package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"advisory_portal_backend/internal/contracts/repository"
	stages "advisory_portal_backend/internal/stages/service"
	"advisory_portal_backend/platform/cache"
	"advisory_portal_backend/platform/logger"

	"advisory_portal_backend/internal/stages/domain"
)

const (
	clientsRankingKey = "reports:clients:progress"

	// contractFanOut bounds the parallel per-contract rollups of a client
	// report.
	contractFanOut = 4
)

// ProgressReader is the slice of the stage engine the reports are built on.
type ProgressReader interface {
	ProgressForContractService(ctx context.Context, contractServiceID uuid.UUID) (domain.Progress, error)
	ProgressForContract(ctx context.Context, contractID uuid.UUID) (stages.ContractProgress, error)
	ProgressForClient(ctx context.Context, clientID uuid.UUID) (stages.ClientProgress, error)
	ProgressForAllClients(ctx context.Context) ([]stages.ClientProgressRow, error)
}

// ContractLister resolves a client's contracts for the per-contract
// breakdown of the client report.
type ContractLister interface {
	ListContractsByClient(ctx context.Context, clientID uuid.UUID) ([]repository.Contract, error)
}

// ContractServiceReport is the progress report for one contract service.
type ContractServiceReport struct {
	ContractServiceID uuid.UUID       `json:"contractServiceId"`
	Progress          domain.Progress `json:"progress"`
}

// ContractEntry is one contract's progress within a client report.
type ContractEntry struct {
	Contract repository.Contract `json:"contract"`
	Progress domain.Progress     `json:"progress"`
	Services int                 `json:"services"`
}

// ClientReport combines the client rollup with a per-contract breakdown.
type ClientReport struct {
	ClientID        uuid.UUID       `json:"clientId"`
	Progress        domain.Progress `json:"progress"`
	ActiveContracts int             `json:"activeContracts"`
	TotalContracts  int             `json:"totalContracts"`
	Contracts       []ContractEntry `json:"contracts"`
}

// ClientsRanking is the all-clients dashboard listing, ordered by
// completion percentage descending.
type ClientsRanking struct {
	Items []stages.ClientProgressRow `json:"items"`
}

// Service assembles progress reports.
type Service struct {
	progress  ProgressReader
	contracts ContractLister
	cache     *cache.Cache
	log       *logger.Logger
}

// New creates a new reporting service. cache may be nil; reports then
// always compute directly.
func New(progress ProgressReader, contracts ContractLister, c *cache.Cache, log *logger.Logger) *Service {
	return &Service{progress: progress, contracts: contracts, cache: c, log: log}
}

// ContractServiceReport reports one contract service's progress.
func (s *Service) ContractServiceReport(ctx context.Context, contractServiceID uuid.UUID) (ContractServiceReport, error) {
	progress, err := s.progress.ProgressForContractService(ctx, contractServiceID)
	if err != nil {
		return ContractServiceReport{}, err
	}
	return ContractServiceReport{ContractServiceID: contractServiceID, Progress: progress}, nil
}

// ContractReport reports one contract's aggregated progress.
func (s *Service) ContractReport(ctx context.Context, contractID uuid.UUID) (stages.ContractProgress, error) {
	return s.progress.ProgressForContract(ctx, contractID)
}

// ClientReport reports a client's rollup plus a per-contract breakdown. The
// breakdown fans out one rollup query per contract, bounded by
// contractFanOut.
func (s *Service) ClientReport(ctx context.Context, clientID uuid.UUID) (ClientReport, error) {
	rollup, err := s.progress.ProgressForClient(ctx, clientID)
	if err != nil {
		return ClientReport{}, err
	}

	contracts, err := s.contracts.ListContractsByClient(ctx, clientID)
	if err != nil {
		return ClientReport{}, err
	}

	entries := make([]ContractEntry, len(contracts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(contractFanOut)
	for i, contract := range contracts {
		g.Go(func() error {
			cp, err := s.progress.ProgressForContract(gctx, contract.ID)
			if err != nil {
				return err
			}
			entries[i] = ContractEntry{Contract: contract, Progress: cp.Progress, Services: cp.Services}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ClientReport{}, err
	}

	return ClientReport{
		ClientID:        clientID,
		Progress:        rollup.Progress,
		ActiveContracts: rollup.ActiveContracts,
		TotalContracts:  rollup.TotalContracts,
		Contracts:       entries,
	}, nil
}

// ClientsRanking lists every client with at least one active contract,
// descending by completion percentage. Served from cache when fresh; a
// redis outage degrades to direct computation.
func (s *Service) ClientsRanking(ctx context.Context) (ClientsRanking, error) {
	var ranking ClientsRanking
	if err := s.cache.Get(ctx, clientsRankingKey, &ranking); err == nil {
		return ranking, nil
	}

	rows, err := s.progress.ProgressForAllClients(ctx)
	if err != nil {
		return ClientsRanking{}, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Progress.Percentage > rows[j].Progress.Percentage
	})
	ranking = ClientsRanking{Items: rows}

	if err := s.cache.Set(ctx, clientsRankingKey, ranking); err != nil {
		s.log.Error("ranking cache write failed", "error", err)
	}
	return ranking, nil
}
