package dealers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Installment is one scheduled loan repayment.
type Installment struct {
	Number    int             `json:"number"`
	DueDate   time.Time       `json:"due_date"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Amount    decimal.Decimal `json:"amount"`
	Paid      bool            `json:"paid"`
}

// LoanSchedule is an equal-installment dealer loan.
type LoanSchedule struct {
	LoanID        string
	TenantID      string
	StationID     string
	Principal     decimal.Decimal
	AnnualRatePct decimal.Decimal
	TermMonths    int
	DisbursedAt   time.Time
	Installments  []Installment
}

// DueInstallment is an unpaid installment falling inside a settlement period.
type DueInstallment struct {
	LoanID  string
	Number  int
	DueDate time.Time
	Amount  decimal.Decimal
}

// NewLoanSchedule amortises principal over termMonths monthly installments,
// the first due on firstDue. The final installment absorbs rounding.
func NewLoanSchedule(stationID string, principal, annualRatePct decimal.Decimal, termMonths int, firstDue, now time.Time) (*LoanSchedule, error) {
	if stationID == "" {
		return nil, ErrEmptyStationID
	}
	if !principal.IsPositive() || termMonths < 1 || annualRatePct.IsNegative() || firstDue.IsZero() {
		return nil, ErrInvalidLoan
	}
	loan := &LoanSchedule{
		LoanID:        uuid.NewString(),
		StationID:     stationID,
		Principal:     principal,
		AnnualRatePct: annualRatePct,
		TermMonths:    termMonths,
		DisbursedAt:   now.UTC(),
	}

	payment := MonthlyPayment(principal, annualRatePct, termMonths)
	monthly := annualRatePct.Div(hundred).Div(twelve)
	balance := principal
	for n := 1; n <= termMonths; n++ {
		interest := balance.Mul(monthly).Round(MoneyPlaces)
		part := payment.Sub(interest)
		if n == termMonths {
			part = balance
		}
		balance = balance.Sub(part)
		loan.Installments = append(loan.Installments, Installment{
			Number:    n,
			DueDate:   firstDue.UTC().AddDate(0, n-1, 0),
			Principal: part,
			Interest:  interest,
			Amount:    part.Add(interest),
		})
	}
	return loan, nil
}

// MonthlyPayment is the annuity payment P·r / (1 − (1+r)^−n), rounded to cents.
func MonthlyPayment(principal, annualRatePct decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths < 1 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(termMonths))
	r := annualRatePct.Div(hundred).Div(twelve)
	if r.IsZero() {
		return principal.Div(n).Round(MoneyPlaces)
	}
	growth := decimal.NewFromInt(1).Add(r).Pow(n)
	return principal.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1))).Round(MoneyPlaces)
}

// DueWithin returns unpaid installments due in [from, to], both inclusive.
func (l *LoanSchedule) DueWithin(from, to time.Time) []DueInstallment {
	var out []DueInstallment
	for _, inst := range l.Installments {
		if inst.Paid || inst.DueDate.Before(from) || inst.DueDate.After(to) {
			continue
		}
		out = append(out, DueInstallment{LoanID: l.LoanID, Number: inst.Number, DueDate: inst.DueDate, Amount: inst.Amount})
	}
	return out
}

// Outstanding is the sum of unpaid installment amounts.
func (l *LoanSchedule) Outstanding() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range l.Installments {
		if !inst.Paid {
			total = total.Add(inst.Amount)
		}
	}
	return total
}
