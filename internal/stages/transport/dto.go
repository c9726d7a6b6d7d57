package transport

import (
	"time"

	"advisory_portal_backend/internal/stages/domain"

	"github.com/google/uuid"
)

// UpdateStatusRequest sets the completion status of a single stage instance.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending completed"`
}

// StatusUpdate is one entry of a batch status update.
type StatusUpdate struct {
	ID     uuid.UUID `json:"id" validate:"required"`
	Status string    `json:"status" validate:"required,oneof=pending completed"`
}

// BatchUpdateRequest updates several stage instances atomically. The batch
// may span multiple contract services.
type BatchUpdateRequest struct {
	Updates []StatusUpdate `json:"updates" validate:"required,min=1,dive"`
}

// SetApplicabilityRequest toggles a stage instance's inclusion in progress
// math. The instance itself is never deleted.
type SetApplicabilityRequest struct {
	IsNotApplicable *bool `json:"isNotApplicable" validate:"required"`
}

// InstanceResponse represents a stage instance in API responses.
type InstanceResponse struct {
	ID                uuid.UUID  `json:"id"`
	ContractServiceID uuid.UUID  `json:"contractServiceId"`
	StageDefinitionID uuid.UUID  `json:"stageDefinitionId"`
	Name              string     `json:"name"`
	SortOrder         int        `json:"sortOrder"`
	IsRequired        bool       `json:"isRequired"`
	Status            string     `json:"status"`
	IsNotApplicable   bool       `json:"isNotApplicable"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CreatedAt         string     `json:"createdAt"`
	UpdatedAt         string     `json:"updatedAt"`
}

// InstanceListResponse wraps a contract service's stage instances.
type InstanceListResponse struct {
	Items    []InstanceResponse `json:"items"`
	Progress domain.Progress    `json:"progress"`
}

// ServiceResult reports what happened to one contract service as a side
// effect of a stage write: its recomputed progress and any automatic status
// transition.
type ServiceResult struct {
	ContractServiceID uuid.UUID       `json:"contractServiceId"`
	Status            string          `json:"status"`
	Progress          domain.Progress `json:"progress"`
	AutoStarted       bool            `json:"autoStarted"`
	AutoCompleted     bool            `json:"autoCompleted"`
}

// UpdateResponse is returned by the single-instance write endpoints.
type UpdateResponse struct {
	Instance InstanceResponse `json:"instance"`
	ServiceResult
}

// BatchUpdateResponse is returned by the batch write endpoint, with one
// consolidated result per affected contract service.
type BatchUpdateResponse struct {
	Instances []InstanceResponse `json:"instances"`
	Services  []ServiceResult    `json:"services"`
}

// SyncReportResponse mirrors the reconciliation report for API consumers.
type SyncReportResponse struct {
	Created   int `json:"created"`
	Removed   int `json:"removed"`
	Conflicts int `json:"conflicts"`
}
