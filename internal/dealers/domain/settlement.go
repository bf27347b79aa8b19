package dealers

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"omc-erp/internal/apperrors"
)

// MoneyPlaces is the rounding applied to settlement amounts.
const MoneyPlaces = 2

// Status is the lifecycle state of a dealer settlement.
type Status string

const (
	StatusCalculated Status = "calculated"
	StatusApproved   Status = "approved"
	StatusPaid       Status = "paid"
	StatusDisputed   Status = "disputed"
	StatusCancelled  Status = "cancelled"
)

// DeductionKind classifies an itemised deduction.
type DeductionKind string

const (
	DeductionLoan           DeductionKind = "loan_installment"
	DeductionChargeback     DeductionKind = "chargeback"
	DeductionShortage       DeductionKind = "shortage"
	DeductionPenalty        DeductionKind = "penalty"
	DeductionAdjustment     DeductionKind = "adjustment"
	DeductionWithholdingTax DeductionKind = "withholding_tax"
	DeductionCarriedDebt    DeductionKind = "carried_forward_debt"
)

// ProductLine is the margin earned on one product.
type ProductLine struct {
	ProductID  string          `json:"product_id"`
	Litres     decimal.Decimal `json:"litres"`
	MarginRate decimal.Decimal `json:"margin_rate"`
	Margin     decimal.Decimal `json:"margin"`
}

// Deduction is one itemised amount withheld from the dealer.
type Deduction struct {
	Kind      DeductionKind   `json:"kind"`
	Reference string          `json:"reference,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// HistoryEntry records one status transition.
type HistoryEntry struct {
	From  Status    `json:"from,omitempty"`
	To    Status    `json:"to"`
	At    time.Time `json:"at"`
	Actor string    `json:"actor,omitempty"`
	Note  string    `json:"note,omitempty"`
}

// Calculation holds the inputs of one settlement computation.
type Calculation struct {
	Lines              []ProductLine
	Installments       []Deduction
	Charges            []Deduction
	CarriedDebt        *Deduction
	WithholdingTaxRate decimal.Decimal
}

// Settlement is the net amount owed to a dealer for one station and period.
// Versions are assigned by the repository on each save.
type Settlement struct {
	ID                string
	SettlementNumber  string
	Sequence          int
	TenantID          string
	StationID         string
	DealerID          string
	WindowID          string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	Lines             []ProductLine
	TotalLitresSold   decimal.Decimal
	GrossDealerMargin decimal.Decimal
	LoanDeduction     decimal.Decimal
	OtherDeductions   decimal.Decimal
	Deductions        []Deduction
	Status            Status
	Version           int
	ApprovedBy        string
	ApprovedAt        time.Time
	PaidAt            time.Time
	PaymentReference  string
	DisputeReason     string
	CancelReason      string
	CalculatedAt      time.Time
	History           []HistoryEntry

	events []any
}

// BuildSettlementNumber formats the human readable settlement number.
func BuildSettlementNumber(windowID, stationID string, sequence int) string {
	return fmt.Sprintf("SETT-%s-%s-%02d", windowID, stationID, sequence)
}

// NewSettlement creates an empty settlement awaiting its first calculation.
func NewSettlement(tenantID, stationID, dealerID, windowID string, periodStart, periodEnd time.Time, sequence int) (*Settlement, error) {
	if stationID == "" {
		return nil, ErrEmptyStationID
	}
	if windowID == "" {
		return nil, ErrEmptyWindowID
	}
	if periodEnd.Before(periodStart) {
		return nil, ErrInvalidPeriod
	}
	if sequence < 1 {
		sequence = 1
	}
	return &Settlement{
		ID:               uuid.NewString(),
		SettlementNumber: BuildSettlementNumber(windowID, stationID, sequence),
		Sequence:         sequence,
		TenantID:         tenantID,
		StationID:        stationID,
		DealerID:         dealerID,
		WindowID:         windowID,
		PeriodStart:      periodStart.UTC(),
		PeriodEnd:        periodEnd.UTC(),
		Status:           StatusCalculated,
	}, nil
}

// IsNew reports whether the settlement has never been saved.
func (s *Settlement) IsNew() bool { return s.Version == 0 }

// TotalDeductions is the loan deduction plus other deductions.
func (s *Settlement) TotalDeductions() decimal.Decimal {
	return s.LoanDeduction.Add(s.OtherDeductions)
}

// NetPayable is the gross dealer margin less total deductions. It may be negative.
func (s *Settlement) NetPayable() decimal.Decimal {
	return s.GrossDealerMargin.Sub(s.TotalDeductions())
}

// IsNegativeBalance reports a dealer debt.
func (s *Settlement) IsNegativeBalance() bool { return s.NetPayable().IsNegative() }

// IsReadyForPayment holds only for an approved settlement with a positive balance.
func (s *Settlement) IsReadyForPayment() bool {
	return s.Status == StatusApproved && s.NetPayable().IsPositive()
}

// RequiresApproval reports whether |netPayable| exceeds the threshold.
func (s *Settlement) RequiresApproval(threshold decimal.Decimal) bool {
	return s.NetPayable().Abs().GreaterThan(threshold)
}

// IsFinalized reports whether the amounts can no longer change.
func (s *Settlement) IsFinalized() bool {
	return s.Status == StatusApproved || s.Status == StatusPaid
}

// Recalculate replaces all amounts from calc. A disputed settlement returns to calculated.
func (s *Settlement) Recalculate(calc Calculation, now time.Time) error {
	switch s.Status {
	case StatusApproved, StatusPaid:
		return ErrSettlementFinalized
	case StatusCancelled:
		return apperrors.InvalidTransition("dealer settlement", string(s.Status), string(StatusCalculated))
	}

	lines := make([]ProductLine, 0, len(calc.Lines))
	litres := decimal.Zero
	gross := decimal.Zero
	for _, line := range calc.Lines {
		line.Margin = line.Litres.Mul(line.MarginRate).Round(MoneyPlaces)
		litres = litres.Add(line.Litres)
		gross = gross.Add(line.Margin)
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	var deductions []Deduction
	loan := decimal.Zero
	for _, d := range calc.Installments {
		d.Kind = DeductionLoan
		deductions = append(deductions, d)
		loan = loan.Add(d.Amount)
	}
	other := decimal.Zero
	for _, d := range calc.Charges {
		deductions = append(deductions, d)
		other = other.Add(d.Amount)
	}
	if calc.CarriedDebt != nil && calc.CarriedDebt.Amount.IsPositive() {
		debt := *calc.CarriedDebt
		debt.Kind = DeductionCarriedDebt
		deductions = append(deductions, debt)
		other = other.Add(debt.Amount)
	}
	if calc.WithholdingTaxRate.IsPositive() && gross.IsPositive() {
		tax := gross.Mul(calc.WithholdingTaxRate).Round(MoneyPlaces)
		deductions = append(deductions, Deduction{Kind: DeductionWithholdingTax, Amount: tax})
		other = other.Add(tax)
	}

	s.Lines = lines
	s.TotalLitresSold = litres
	s.GrossDealerMargin = gross
	s.LoanDeduction = loan
	s.OtherDeductions = other
	s.Deductions = deductions
	s.CalculatedAt = now.UTC()
	if s.Status == StatusDisputed {
		s.transition(StatusCalculated, "", "recalculated", now)
		s.DisputeReason = ""
	}
	if len(s.History) == 0 {
		s.History = append(s.History, HistoryEntry{To: StatusCalculated, At: now.UTC()})
	}
	s.events = append(s.events, SettlementCalculated{
		SettlementID:     s.ID,
		SettlementNumber: s.SettlementNumber,
		StationID:        s.StationID,
		WindowID:         s.WindowID,
		NetPayable:       s.NetPayable(),
		NegativeBalance:  s.IsNegativeBalance(),
		Version:          s.Version + 1,
		OccurredAt:       now.UTC(),
	})
	return nil
}

// Approve moves calculated to approved.
func (s *Settlement) Approve(actor string, now time.Time) error {
	if s.Status != StatusCalculated {
		return s.invalid(StatusApproved)
	}
	s.ApprovedBy = actor
	s.ApprovedAt = now.UTC()
	s.transition(StatusApproved, actor, "", now)
	return nil
}

// MarkPaid moves approved to paid when the settlement is ready for payment.
func (s *Settlement) MarkPaid(paymentRef, actor string, now time.Time) error {
	if s.Status != StatusApproved {
		return s.invalid(StatusPaid)
	}
	if paymentRef == "" {
		return ErrPaymentReferenceRequired
	}
	if !s.IsReadyForPayment() {
		return apperrors.Wrap(ErrNotReadyForPayment, apperrors.CodeInvalidTransition, apperrors.ErrInvalidTransition.Status,
			fmt.Sprintf("settlement %s has net payable %s", s.SettlementNumber, s.NetPayable().StringFixed(MoneyPlaces)))
	}
	s.PaymentReference = paymentRef
	s.PaidAt = now.UTC()
	s.transition(StatusPaid, actor, paymentRef, now)
	return nil
}

// Dispute moves calculated or approved to disputed.
func (s *Settlement) Dispute(reason, actor string, now time.Time) error {
	if s.Status != StatusCalculated && s.Status != StatusApproved {
		return s.invalid(StatusDisputed)
	}
	if reason == "" {
		return ErrReasonRequired
	}
	s.DisputeReason = reason
	s.transition(StatusDisputed, actor, reason, now)
	return nil
}

// Cancel moves any non-paid, non-cancelled settlement to cancelled.
func (s *Settlement) Cancel(reason, actor string, now time.Time) error {
	if s.Status == StatusPaid || s.Status == StatusCancelled {
		return s.invalid(StatusCancelled)
	}
	if reason == "" {
		return ErrReasonRequired
	}
	s.CancelReason = reason
	s.transition(StatusCancelled, actor, reason, now)
	return nil
}

// PullEvents returns and clears pending events.
func (s *Settlement) PullEvents() []any {
	events := s.events
	s.events = nil
	return events
}

func (s *Settlement) transition(to Status, actor, note string, now time.Time) {
	from := s.Status
	s.Status = to
	s.History = append(s.History, HistoryEntry{From: from, To: to, At: now.UTC(), Actor: actor, Note: note})
	s.events = append(s.events, SettlementStatusChanged{
		SettlementID: s.ID,
		StationID:    s.StationID,
		From:         from,
		To:           to,
		Actor:        actor,
		Note:         note,
		OccurredAt:   now.UTC(),
	})
}

func (s *Settlement) invalid(to Status) error {
	return apperrors.InvalidTransition("dealer settlement", string(s.Status), string(to))
}

// Clone returns a detached copy without pending events.
func (s *Settlement) Clone() *Settlement {
	if s == nil {
		return nil
	}
	c := *s
	c.Lines = append([]ProductLine(nil), s.Lines...)
	c.Deductions = append([]Deduction(nil), s.Deductions...)
	c.History = append([]HistoryEntry(nil), s.History...)
	c.events = nil
	return &c
}
