package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
	dealers "omc-erp/internal/dealers/domain"
)

var periodStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func sampleSettlement(t *testing.T) *dealers.Settlement {
	t.Helper()
	s, err := dealers.NewSettlement("omc-gh", "S1", "D1", "2025-W05", periodStart, periodStart.AddDate(0, 0, 13), 1)
	require.NoError(t, err)
	require.NoError(t, s.Recalculate(dealers.Calculation{
		Lines: []dealers.ProductLine{{ProductID: "PMS", Litres: decimal.NewFromInt(1000), MarginRate: decimal.RequireFromString("0.35")}},
	}, periodStart))
	return s
}

func TestSettlementUpdateChecksVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := sampleSettlement(t)
	repo := NewSettlementRepository(db)

	mock.ExpectExec(`UPDATE dealer_settlements SET .* WHERE id = \$1 AND version = \$26`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), s, 3))
	assert.Equal(t, 4, s.Version)

	mock.ExpectExec(`UPDATE dealer_settlements SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.Update(context.Background(), s, 3)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementCreateConflictOnDuplicateNumber(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := sampleSettlement(t)
	repo := NewSettlementRepository(db, WithSettlementsTable("settlements_v2"))

	mock.ExpectExec(`INSERT INTO settlements_v2 .* ON CONFLICT \(settlement_number\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), s))
	assert.Equal(t, 1, s.Version)

	mock.ExpectExec(`INSERT INTO settlements_v2`).WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.Create(context.Background(), s)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementFindLatestMissingIsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM dealer_settlements WHERE station_id = \$1 AND window_id = \$2 ORDER BY sequence DESC`).
		WithArgs("S1", "2025-W05").
		WillReturnError(sql.ErrNoRows)
	s, err := NewSettlementRepository(db).FindLatest(context.Background(), "S1", "2025-W05")
	require.NoError(t, err)
	assert.Nil(t, s)

	mock.ExpectQuery(`FROM dealer_settlements WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = NewSettlementRepository(db).Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementGetScansJSONColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "tenant_id", "settlement_number", "sequence", "station_id", "dealer_id", "window_id",
		"period_start", "period_end", "lines", "total_litres_sold", "gross_dealer_margin", "loan_deduction",
		"other_deductions", "deductions", "status", "version", "approved_by", "approved_at", "paid_at",
		"payment_reference", "dispute_reason", "cancel_reason", "calculated_at", "history"}
	mock.ExpectQuery(`FROM dealer_settlements WHERE id = \$1`).
		WithArgs("set-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"set-1", "omc-gh", "SETT-2025-W05-S1-01", 1, "S1", "D1", "2025-W05",
			periodStart, periodStart.AddDate(0, 0, 13),
			[]byte(`[{"product_id":"PMS","litres":"1000","margin_rate":"0.35","margin":"350"}]`),
			"1000", "350", "600", "0",
			[]byte(`[{"kind":"loan_installment","reference":"L1#1","amount":"600"}]`),
			"approved", 2, "kofi", periodStart, nil, "", "", "", periodStart,
			[]byte(`[{"to":"calculated","at":"2025-03-01T00:00:00Z"}]`),
		))

	s, err := NewSettlementRepository(db).Get(context.Background(), "set-1")
	require.NoError(t, err)
	assert.Equal(t, dealers.StatusApproved, s.Status)
	assert.Equal(t, "-250", s.NetPayable().String())
	assert.False(t, s.IsReadyForPayment())
	require.Len(t, s.Lines, 1)
	assert.Equal(t, dealers.DeductionLoan, s.Deductions[0].Kind)
	assert.True(t, s.PaidAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstallmentsDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	to := periodStart.AddDate(0, 0, 13)
	mock.ExpectQuery(`FROM dealer_loan_installments i JOIN dealer_loans l .* i.paid = FALSE AND i.due_date BETWEEN \$2 AND \$3`).
		WithArgs("S1", periodStart, to).
		WillReturnRows(sqlmock.NewRows([]string{"loan_id", "number", "due_date", "amount"}).
			AddRow("L1", 3, periodStart.AddDate(0, 0, 5), "1066.19"))

	due, err := NewLoanRepository(db).InstallmentsDue(context.Background(), "S1", periodStart, to)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "1066.19", due[0].Amount.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSalesByProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	to := periodStart.AddDate(0, 0, 13)
	mock.ExpectQuery(`FROM station_sales WHERE station_id = \$1 AND sold_on BETWEEN \$2 AND \$3 GROUP BY product_id`).
		WithArgs("S1", periodStart, to).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "sum"}).
			AddRow("PMS", "12000.5").
			AddRow("AGO", "800"))
	mock.ExpectQuery(`FROM dealer_charges`).
		WithArgs("S1", periodStart, to).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "reference", "amount"}).
			AddRow("shortage", "DLV-9", "150"))

	reader := NewLedgerReader(db)
	sales, err := reader.SalesByProduct(context.Background(), "S1", periodStart, to)
	require.NoError(t, err)
	assert.Equal(t, "12000.5", sales["PMS"].String())

	charges, err := reader.Charges(context.Background(), "S1", periodStart, to)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, dealers.DeductionShortage, charges[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
