package service

import (
	"context"

	"advisory_portal_backend/internal/events"
	"advisory_portal_backend/internal/stages/domain"
)

// RegisterHandlers subscribes the routine mirror to contract-service
// lifecycle events. The stage engine publishes these synchronously, so the
// mirror is consistent before the originating request returns.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ContractServiceStarted{}.EventName(), events.HandlerFunc(s.onServiceStarted))
	bus.Subscribe(events.ContractServiceCompleted{}.EventName(), events.HandlerFunc(s.onServiceCompleted))
}

// onServiceStarted promotes routines still waiting on the service to
// in_progress. Scheduled, cancelled and suspended routines are left alone.
func (s *Service) onServiceStarted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.ContractServiceStarted)
	if !ok {
		return nil
	}

	moved, err := s.repo.PromoteRoutines(ctx, e.ContractServiceID, domain.StatusNotStarted, domain.StatusInProgress)
	if err != nil {
		return err
	}
	if moved > 0 {
		s.log.Info("routines started", "contractService", e.ContractServiceID, "count", moved)
	}
	return nil
}

// onServiceCompleted completes every non-terminal routine of the service.
func (s *Service) onServiceCompleted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.ContractServiceCompleted)
	if !ok {
		return nil
	}

	moved, err := s.repo.CompleteRoutines(ctx, e.ContractServiceID)
	if err != nil {
		return err
	}
	if moved > 0 {
		s.log.Info("routines completed", "contractService", e.ContractServiceID, "count", moved)
	}
	return nil
}
