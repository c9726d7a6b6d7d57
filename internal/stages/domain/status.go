// Package domain provides the core business rules for stage progress and
// contract-service status propagation. Everything here is a pure function
// over already-fetched data; persistence lives in the repository layer.
package domain

// ContractServiceStatus is the lifecycle status of a service within a contract.
type ContractServiceStatus string

const (
	StatusNotStarted ContractServiceStatus = "not_started"
	StatusScheduled  ContractServiceStatus = "scheduled"
	StatusInProgress ContractServiceStatus = "in_progress"
	StatusCompleted  ContractServiceStatus = "completed"

	// Human-set terminal states. The propagator never enters or leaves these.
	StatusCancelled ContractServiceStatus = "cancelled"
	StatusSuspended ContractServiceStatus = "suspended"
)

// InstanceStatus is the completion status of a single stage instance.
type InstanceStatus string

const (
	InstancePending   InstanceStatus = "pending"
	InstanceCompleted InstanceStatus = "completed"
)

// IsValidInstanceStatus reports whether s is a recognized instance status.
func IsValidInstanceStatus(s InstanceStatus) bool {
	return s == InstancePending || s == InstanceCompleted
}

// IsValidContractServiceStatus reports whether s is a recognized
// contract-service status.
func IsValidContractServiceStatus(s ContractServiceStatus) bool {
	switch s {
	case StatusNotStarted, StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusSuspended:
		return true
	}
	return false
}

// IsHumanTerminal reports whether s is a terminal state set by a person.
// Automatic propagation must leave these untouched.
func IsHumanTerminal(s ContractServiceStatus) bool {
	return s == StatusCancelled || s == StatusSuspended
}

// Transition is the outcome of applying the propagation rules to a
// contract service after its progress changed.
type Transition struct {
	Next          ContractServiceStatus
	Changed       bool
	AutoStarted   bool
	AutoCompleted bool
}

// Propagate applies the status state machine to the current status given the
// freshly computed progress percentage:
//
//   - 100% promotes any non-terminal status to completed
//   - partial progress promotes not_started to in_progress
//   - completion is a one-way ratchet: dropping below 100% afterwards
//     never demotes the status
func Propagate(current ContractServiceStatus, percentage int) Transition {
	t := Transition{Next: current}

	if IsHumanTerminal(current) {
		return t
	}

	if percentage >= 100 {
		if current != StatusCompleted {
			t.Next = StatusCompleted
			t.Changed = true
			t.AutoCompleted = true
		}
		return t
	}

	if percentage > 0 && current == StatusNotStarted {
		t.Next = StatusInProgress
		t.Changed = true
		t.AutoStarted = true
	}

	return t
}
