package dealers

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
)

var now = time.Date(2025, 3, 16, 10, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newSettlement(t *testing.T) *Settlement {
	t.Helper()
	s, err := NewSettlement("omc-gh", "S1", "D1", "2025-W05", now.AddDate(0, 0, -14), now, 1)
	require.NoError(t, err)
	return s
}

// grossOf builds a single line whose margin equals gross exactly.
func grossOf(gross string) []ProductLine {
	return []ProductLine{{ProductID: "PMS", Litres: d(gross), MarginRate: decimal.NewFromInt(1)}}
}

func TestSettlementNetPayable(t *testing.T) {
	s := newSettlement(t)
	require.NoError(t, s.Recalculate(Calculation{
		Lines:        grossOf("1000"),
		Installments: []Deduction{{Reference: "L1#1", Amount: d("600")}},
		Charges:      []Deduction{{Kind: DeductionShortage, Amount: d("150")}},
	}, now))

	assert.Equal(t, "1000", s.GrossDealerMargin.String())
	assert.Equal(t, "750", s.TotalDeductions().String())
	assert.Equal(t, "250", s.NetPayable().String())
	assert.False(t, s.IsNegativeBalance())
	assert.Equal(t, DeductionLoan, s.Deductions[0].Kind)
}

func TestSettlementNegativeBalanceNeverReadyForPayment(t *testing.T) {
	s := newSettlement(t)
	require.NoError(t, s.Recalculate(Calculation{
		Lines:        grossOf("200"),
		Installments: []Deduction{{Amount: d("600")}},
	}, now))
	assert.Equal(t, "-400", s.NetPayable().String())
	assert.True(t, s.IsNegativeBalance())

	require.NoError(t, s.Approve("kofi", now))
	assert.False(t, s.IsReadyForPayment())

	err := s.MarkPaid("PAY-1", "kofi", now)
	assert.ErrorIs(t, err, ErrNotReadyForPayment)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	assert.Equal(t, StatusApproved, s.Status)
}

func TestSettlementWithholdingTaxAndCarriedDebt(t *testing.T) {
	s := newSettlement(t)
	require.NoError(t, s.Recalculate(Calculation{
		Lines: []ProductLine{
			{ProductID: "PMS", Litres: d("1000"), MarginRate: d("0.35")},
			{ProductID: "AGO", Litres: d("400"), MarginRate: d("0.35")},
		},
		CarriedDebt:        &Deduction{Reference: "SETT-2025-W04-S1-01", Amount: d("40")},
		WithholdingTaxRate: d("0.075"),
	}, now))

	assert.Equal(t, "AGO", s.Lines[0].ProductID)
	assert.Equal(t, "1400", s.TotalLitresSold.String())
	assert.Equal(t, "490", s.GrossDealerMargin.String())
	require.Len(t, s.Deductions, 2)
	assert.Equal(t, DeductionCarriedDebt, s.Deductions[0].Kind)
	assert.Equal(t, DeductionWithholdingTax, s.Deductions[1].Kind)
	assert.Equal(t, "36.75", s.Deductions[1].Amount.String())
	assert.Equal(t, "76.75", s.OtherDeductions.String())
}

func TestSettlementNoTaxOnZeroGross(t *testing.T) {
	s := newSettlement(t)
	require.NoError(t, s.Recalculate(Calculation{WithholdingTaxRate: d("0.075")}, now))
	assert.Empty(t, s.Deductions)
	assert.True(t, s.NetPayable().IsZero())
}

func TestSettlementStateMachine(t *testing.T) {
	s := newSettlement(t)
	require.NoError(t, s.Recalculate(Calculation{Lines: grossOf("500")}, now))

	assert.Error(t, s.MarkPaid("PAY-1", "ama", now), "paid only from approved")
	require.NoError(t, s.Dispute("volume mismatch", "ama", now))
	assert.Equal(t, StatusDisputed, s.Status)

	require.NoError(t, s.Recalculate(Calculation{Lines: grossOf("480")}, now))
	assert.Equal(t, StatusCalculated, s.Status)
	assert.Empty(t, s.DisputeReason)

	require.NoError(t, s.Approve("kofi", now))
	assert.ErrorIs(t, s.Recalculate(Calculation{}, now), ErrSettlementFinalized)
	require.NoError(t, s.MarkPaid("PAY-1", "kofi", now))
	assert.Equal(t, StatusPaid, s.Status)

	assert.Error(t, s.Cancel("late", "kofi", now))
	assert.Error(t, s.Dispute("late", "kofi", now))
	assert.ErrorIs(t, s.Recalculate(Calculation{}, now), ErrSettlementFinalized)

	var to []Status
	for _, h := range s.History {
		to = append(to, h.To)
	}
	assert.Equal(t, []Status{StatusCalculated, StatusDisputed, StatusCalculated, StatusApproved, StatusPaid}, to)
}

func TestSettlementCancelRequiresReason(t *testing.T) {
	s := newSettlement(t)
	assert.ErrorIs(t, s.Cancel("", "ama", now), ErrReasonRequired)
	require.NoError(t, s.Cancel("duplicate", "ama", now))
	assert.Error(t, s.Recalculate(Calculation{}, now))
}

func TestRequiresApproval(t *testing.T) {
	s := newSettlement(t)
	require.NoError(t, s.Recalculate(Calculation{Lines: grossOf("12000")}, now))
	assert.True(t, s.RequiresApproval(d("10000")))
	require.NoError(t, s.Recalculate(Calculation{Lines: grossOf("1000"), Charges: []Deduction{{Amount: d("12000")}}}, now))
	assert.True(t, s.RequiresApproval(d("10000")))
	require.NoError(t, s.Recalculate(Calculation{Lines: grossOf("10000")}, now))
	assert.False(t, s.RequiresApproval(d("10000")))
}

func TestPullEventsClears(t *testing.T) {
	s := newSettlement(t)
	require.NoError(t, s.Recalculate(Calculation{Lines: grossOf("10")}, now))
	require.NoError(t, s.Approve("kofi", now))
	events := s.PullEvents()
	require.Len(t, events, 2)
	assert.IsType(t, SettlementCalculated{}, events[0])
	assert.Equal(t, StatusApproved, events[1].(SettlementStatusChanged).To)
	assert.Empty(t, s.PullEvents())
}
