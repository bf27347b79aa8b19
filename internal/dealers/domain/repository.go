package dealers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementRepository persists settlements with optimistic versioning.
type SettlementRepository interface {
	// Get returns the settlement or a NotFound error.
	Get(ctx context.Context, id string) (*Settlement, error)
	// FindLatest returns the highest-sequence settlement for a station and window, or nil.
	FindLatest(ctx context.Context, stationID, windowID string) (*Settlement, error)
	// ListByStation returns every settlement of a station ordered by period end.
	ListByStation(ctx context.Context, stationID string) ([]*Settlement, error)
	// Create inserts a new settlement at version 1.
	Create(ctx context.Context, s *Settlement) error
	// Update writes s if the stored version equals expectedVersion and bumps s.Version.
	Update(ctx context.Context, s *Settlement, expectedVersion int) error
}

// LoanRepository persists dealer loan schedules.
type LoanRepository interface {
	Save(ctx context.Context, loan *LoanSchedule) error
	ListByStation(ctx context.Context, stationID string) ([]*LoanSchedule, error)
}

// SalesVolumeReader returns litres sold per product in [from, to].
type SalesVolumeReader interface {
	SalesByProduct(ctx context.Context, stationID string, from, to time.Time) (map[string]decimal.Decimal, error)
}

// MarginRateReader returns the dealer margin component priced for a station and window.
// ok is false when no valid station price exists.
type MarginRateReader interface {
	DealerMarginRate(ctx context.Context, stationID, productID, windowID string) (rate decimal.Decimal, ok bool, err error)
}

// LoanScheduleReader returns unpaid installments due in [from, to].
type LoanScheduleReader interface {
	InstallmentsDue(ctx context.Context, stationID string, from, to time.Time) ([]DueInstallment, error)
}

// ChargeReader returns chargebacks, shortages, penalties and adjustments in [from, to].
type ChargeReader interface {
	Charges(ctx context.Context, stationID string, from, to time.Time) ([]Deduction, error)
}
