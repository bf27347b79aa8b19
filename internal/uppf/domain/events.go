package uppf

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimCreated is emitted when a draft claim is built.
type ClaimCreated struct {
	ClaimID     string          `json:"claim_id"`
	ClaimNumber string          `json:"claim_number"`
	StationID   string          `json:"station_id"`
	WindowID    string          `json:"window_id"`
	ClaimAmount decimal.Decimal `json:"claim_amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// ClaimStatusChanged is emitted on every claim state transition.
type ClaimStatusChanged struct {
	ClaimID    string      `json:"claim_id"`
	StationID  string      `json:"station_id"`
	From       ClaimStatus `json:"from"`
	To         ClaimStatus `json:"to"`
	Actor      string      `json:"actor,omitempty"`
	Note       string      `json:"note,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// ClaimReconciled is emitted after a three-way volume reconciliation.
type ClaimReconciled struct {
	ClaimID     string               `json:"claim_id"`
	Status      ReconciliationStatus `json:"status"`
	VariancePct decimal.Decimal      `json:"variance_pct"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// SubmissionCreated is emitted when a batch is persisted with its documents.
type SubmissionCreated struct {
	SubmissionID string          `json:"submission_id"`
	Reference    string          `json:"reference"`
	WindowID     string          `json:"window_id"`
	ClaimCount   int             `json:"claim_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// SubmissionStatusChanged is emitted on every submission state transition.
type SubmissionStatusChanged struct {
	SubmissionID string           `json:"submission_id"`
	WindowID     string           `json:"window_id"`
	From         SubmissionStatus `json:"from"`
	To           SubmissionStatus `json:"to"`
	Actor        string           `json:"actor,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
