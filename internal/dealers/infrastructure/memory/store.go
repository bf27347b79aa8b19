package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"omc-erp/internal/apperrors"
	dealers "omc-erp/internal/dealers/domain"
)

// SettlementRepository is an in-memory settlement repository.
type SettlementRepository struct {
	mu          sync.Mutex
	settlements map[string]*dealers.Settlement
}

// NewSettlementRepository constructs an empty repository.
func NewSettlementRepository() *SettlementRepository {
	return &SettlementRepository{settlements: make(map[string]*dealers.Settlement)}
}

// Get returns a copy of the settlement.
func (r *SettlementRepository) Get(_ context.Context, id string) (*dealers.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settlements[id]
	if !ok {
		return nil, apperrors.NotFound("dealer settlement", id)
	}
	return s.Clone(), nil
}

// FindLatest returns the highest sequence for a station and window.
func (r *SettlementRepository) FindLatest(_ context.Context, stationID, windowID string) (*dealers.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *dealers.Settlement
	for _, s := range r.settlements {
		if s.StationID != stationID || s.WindowID != windowID {
			continue
		}
		if latest == nil || s.Sequence > latest.Sequence {
			latest = s
		}
	}
	return latest.Clone(), nil
}

// ListByStation returns settlements ordered by period end then sequence.
func (r *SettlementRepository) ListByStation(_ context.Context, stationID string) ([]*dealers.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*dealers.Settlement
	for _, s := range r.settlements {
		if s.StationID == stationID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodEnd.Equal(out[j].PeriodEnd) {
			return out[i].PeriodEnd.Before(out[j].PeriodEnd)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

// Create stores a new settlement at version 1.
func (r *SettlementRepository) Create(_ context.Context, s *dealers.Settlement) error {
	if s == nil {
		return dealers.ErrNilSettlement
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.settlements {
		if existing.ID == s.ID || existing.SettlementNumber == s.SettlementNumber {
			return apperrors.Conflict("dealer settlement", s.SettlementNumber)
		}
	}
	s.Version = 1
	r.settlements[s.ID] = s.Clone()
	return nil
}

// Update stores s when the stored version matches expectedVersion.
func (r *SettlementRepository) Update(_ context.Context, s *dealers.Settlement, expectedVersion int) error {
	if s == nil {
		return dealers.ErrNilSettlement
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.settlements[s.ID]
	if !ok {
		return apperrors.NotFound("dealer settlement", s.ID)
	}
	if stored.Version != expectedVersion {
		return apperrors.Conflict("dealer settlement", s.SettlementNumber)
	}
	s.Version = expectedVersion + 1
	r.settlements[s.ID] = s.Clone()
	return nil
}

// LoanRepository keeps loan schedules and answers installment lookups.
type LoanRepository struct {
	mu    sync.RWMutex
	loans []*dealers.LoanSchedule
}

// NewLoanRepository constructs an empty repository.
func NewLoanRepository() *LoanRepository {
	return &LoanRepository{}
}

// Save stores a loan schedule.
func (r *LoanRepository) Save(_ context.Context, loan *dealers.LoanSchedule) error {
	if loan == nil {
		return dealers.ErrInvalidLoan
	}
	c := *loan
	c.Installments = append([]dealers.Installment(nil), loan.Installments...)
	r.mu.Lock()
	r.loans = append(r.loans, &c)
	r.mu.Unlock()
	return nil
}

// ListByStation returns the loans of a station.
func (r *LoanRepository) ListByStation(_ context.Context, stationID string) ([]*dealers.LoanSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*dealers.LoanSchedule
	for _, loan := range r.loans {
		if loan.StationID == stationID {
			c := *loan
			out = append(out, &c)
		}
	}
	return out, nil
}

// InstallmentsDue returns unpaid installments due in [from, to] ordered by due date.
func (r *LoanRepository) InstallmentsDue(_ context.Context, stationID string, from, to time.Time) ([]dealers.DueInstallment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []dealers.DueInstallment
	for _, loan := range r.loans {
		if loan.StationID == stationID {
			out = append(out, loan.DueWithin(from, to)...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// Sale is one recorded sale volume.
type Sale struct {
	StationID string
	ProductID string
	SoldOn    time.Time
	Litres    decimal.Decimal
}

// Charge is one recorded dealer charge.
type Charge struct {
	StationID string
	ChargedOn time.Time
	Deduction dealers.Deduction
}

// Ledger records sales and charges for settlement lookups.
type Ledger struct {
	mu      sync.RWMutex
	sales   []Sale
	charges []Charge
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordSale appends a sale.
func (l *Ledger) RecordSale(sale Sale) {
	l.mu.Lock()
	l.sales = append(l.sales, sale)
	l.mu.Unlock()
}

// RecordCharge appends a charge.
func (l *Ledger) RecordCharge(charge Charge) {
	l.mu.Lock()
	l.charges = append(l.charges, charge)
	l.mu.Unlock()
}

// SalesByProduct sums litres per product sold in [from, to].
func (l *Ledger) SalesByProduct(_ context.Context, stationID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]decimal.Decimal)
	for _, s := range l.sales {
		if s.StationID != stationID || s.SoldOn.Before(from) || s.SoldOn.After(to) {
			continue
		}
		out[s.ProductID] = out[s.ProductID].Add(s.Litres)
	}
	return out, nil
}

// Charges returns charges booked in [from, to].
func (l *Ledger) Charges(_ context.Context, stationID string, from, to time.Time) ([]dealers.Deduction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []dealers.Deduction
	for _, c := range l.charges {
		if c.StationID != stationID || c.ChargedOn.Before(from) || c.ChargedOn.After(to) {
			continue
		}
		out = append(out, c.Deduction)
	}
	return out, nil
}
