// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"advisory_portal_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Contract-Service Lifecycle Events
// =============================================================================

// ContractServiceStarted is published when the status propagator promotes a
// contract service from not_started to in_progress.
type ContractServiceStarted struct {
	BaseEvent
	ContractServiceID uuid.UUID `json:"contractServiceId"`
	ContractID        uuid.UUID `json:"contractId"`
	Percentage        int       `json:"percentage"`
}

func (e ContractServiceStarted) EventName() string { return "contracts.service.started" }

// ContractServiceCompleted is published when the status propagator marks a
// contract service completed at 100% progress.
type ContractServiceCompleted struct {
	BaseEvent
	ContractServiceID uuid.UUID `json:"contractServiceId"`
	ContractID        uuid.UUID `json:"contractId"`
}

func (e ContractServiceCompleted) EventName() string { return "contracts.service.completed" }

// StageTemplateChanged is published after a stage definition mutation has
// been reconciled into the service's contract services.
type StageTemplateChanged struct {
	BaseEvent
	ServiceID        uuid.UUID `json:"serviceId"`
	CreatedInstances int       `json:"createdInstances"`
	RemovedInstances int       `json:"removedInstances"`
}

func (e StageTemplateChanged) EventName() string { return "catalog.stage_template.changed" }
