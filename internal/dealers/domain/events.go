package dealers

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementCalculated is emitted when a settlement is created or recalculated.
type SettlementCalculated struct {
	SettlementID     string          `json:"settlement_id"`
	SettlementNumber string          `json:"settlement_number"`
	StationID        string          `json:"station_id"`
	WindowID         string          `json:"window_id"`
	NetPayable       decimal.Decimal `json:"net_payable"`
	NegativeBalance  bool            `json:"negative_balance"`
	Version          int             `json:"version"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// SettlementStatusChanged is emitted on every settlement state transition.
type SettlementStatusChanged struct {
	SettlementID string    `json:"settlement_id"`
	StationID    string    `json:"station_id"`
	From         Status    `json:"from"`
	To           Status    `json:"to"`
	Actor        string    `json:"actor,omitempty"`
	Note         string    `json:"note,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// LoanDisbursed is emitted when a dealer loan schedule is created.
type LoanDisbursed struct {
	LoanID     string          `json:"loan_id"`
	StationID  string          `json:"station_id"`
	Principal  decimal.Decimal `json:"principal"`
	TermMonths int             `json:"term_months"`
	OccurredAt time.Time       `json:"occurred_at"`
}
