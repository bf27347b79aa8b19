package dealers

import "errors"

var (
	// ErrEmptyStationID is returned when a settlement has no station.
	ErrEmptyStationID = errors.New("dealers: empty station id")
	// ErrEmptyWindowID is returned when a settlement has no window.
	ErrEmptyWindowID = errors.New("dealers: empty window id")
	// ErrInvalidPeriod is returned when the period end precedes its start.
	ErrInvalidPeriod = errors.New("dealers: period end before start")
	// ErrSettlementFinalized is returned when recalculating an approved or paid settlement.
	ErrSettlementFinalized = errors.New("dealers: settlement is finalized")
	// ErrNotReadyForPayment is returned when paying a settlement that is not approved with a positive balance.
	ErrNotReadyForPayment = errors.New("dealers: settlement not ready for payment")
	// ErrReasonRequired is returned when disputing or cancelling without a reason.
	ErrReasonRequired = errors.New("dealers: reason required")
	// ErrPaymentReferenceRequired is returned when paying without a reference.
	ErrPaymentReferenceRequired = errors.New("dealers: payment reference required")
	// ErrNilSettlement is returned when saving a nil settlement.
	ErrNilSettlement = errors.New("dealers: nil settlement")
	// ErrInvalidLoan is returned for a loan with a non-positive principal or term.
	ErrInvalidLoan = errors.New("dealers: invalid loan terms")
)
