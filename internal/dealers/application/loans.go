package application

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/auth"
	dealers "omc-erp/internal/dealers/domain"
)

// LoanInput describes a loan disbursed to a dealer.
type LoanInput struct {
	StationID     string          `validate:"required"`
	Principal     decimal.Decimal `validate:"-"`
	AnnualRatePct decimal.Decimal `validate:"-"`
	TermMonths    int             `validate:"required,min=1,max=120"`
	FirstDueDate  time.Time       `validate:"required"`
}

// LoanService disburses dealer loans whose installments settlements deduct.
type LoanService struct {
	loans    dealers.LoanRepository
	validate *validator.Validate
	clock    Clock
	logger   *zap.Logger
}

// NewLoanService constructs the service.
func NewLoanService(loans dealers.LoanRepository, clock Clock, logger *zap.Logger) (*LoanService, error) {
	if loans == nil {
		return nil, errors.New("loan service: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{loans: loans, validate: validator.New(), clock: clock, logger: logger}, nil
}

// DisburseLoan amortises and persists a loan schedule.
func (s *LoanService) DisburseLoan(ctx context.Context, in LoanInput) (*dealers.LoanSchedule, []any, error) {
	if err := auth.Authorize(ctx, auth.OpManageLoans); err != nil {
		return nil, nil, err
	}
	if err := apperrors.ValidateStruct(s.validate, in); err != nil {
		return nil, nil, err
	}
	now := s.clock.Now()
	loan, err := dealers.NewLoanSchedule(in.StationID, in.Principal, in.AnnualRatePct, in.TermMonths, in.FirstDueDate, now)
	if err != nil {
		return nil, nil, err
	}
	loan.TenantID = auth.TenantIDFromContext(ctx)
	if err := s.loans.Save(ctx, loan); err != nil {
		return nil, nil, err
	}
	s.logger.Info("dealer loan disbursed",
		zap.String("loan_id", loan.LoanID),
		zap.String("station_id", loan.StationID),
		zap.String("principal", loan.Principal.StringFixed(dealers.MoneyPlaces)),
		zap.Int("term_months", loan.TermMonths))
	return loan, []any{dealers.LoanDisbursed{
		LoanID:     loan.LoanID,
		StationID:  loan.StationID,
		Principal:  loan.Principal,
		TermMonths: loan.TermMonths,
		OccurredAt: now.UTC(),
	}}, nil
}
