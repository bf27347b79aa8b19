package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/audit"
	"omc-erp/internal/auth"
	dealers "omc-erp/internal/dealers/domain"
	masterdata "omc-erp/internal/masterdata/domain"
	"omc-erp/internal/observability/metrics"
)

const defaultConcurrency = 4

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// StationDirectory resolves stations and lists the active ones.
type StationDirectory interface {
	masterdata.StationRegistry
	Get(ctx context.Context, id string) (*masterdata.Station, error)
}

// SettlementRequest identifies the station, window and period to settle.
type SettlementRequest struct {
	StationID   string    `validate:"required"`
	WindowID    string    `validate:"required"`
	PeriodStart time.Time `validate:"required"`
	PeriodEnd   time.Time `validate:"required,gtefield=PeriodStart"`
}

// Option configures a SettlementService.
type Option func(*SettlementService)

// WithPolicy overrides the settlement policy.
func WithPolicy(policy dealers.Policy) Option {
	return func(s *SettlementService) { s.policy = policy }
}

// WithAuditLogger records settlement transitions.
func WithAuditLogger(logger audit.Logger) Option {
	return func(s *SettlementService) { s.audit = logger }
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *SettlementService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SettlementService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConcurrency bounds CalculateForWindow.
func WithConcurrency(n int) Option {
	return func(s *SettlementService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// SettlementService calculates dealer settlements and drives their lifecycle.
type SettlementService struct {
	repo        dealers.SettlementRepository
	sales       dealers.SalesVolumeReader
	margins     dealers.MarginRateReader
	loans       dealers.LoanScheduleReader
	charges     dealers.ChargeReader
	stations    StationDirectory
	policy      dealers.Policy
	validate    *validator.Validate
	audit       audit.Logger
	clock       Clock
	logger      *zap.Logger
	concurrency int
}

// NewSettlementService constructs the service. margins, loans and charges are optional.
func NewSettlementService(
	repo dealers.SettlementRepository,
	sales dealers.SalesVolumeReader,
	margins dealers.MarginRateReader,
	loans dealers.LoanScheduleReader,
	charges dealers.ChargeReader,
	stations StationDirectory,
	opts ...Option,
) (*SettlementService, error) {
	if repo == nil {
		return nil, errors.New("settlement service: nil repository")
	}
	if sales == nil {
		return nil, errors.New("settlement service: nil sales volume reader")
	}
	if stations == nil {
		return nil, errors.New("settlement service: nil station directory")
	}
	s := &SettlementService{
		repo:        repo,
		sales:       sales,
		margins:     margins,
		loans:       loans,
		charges:     charges,
		stations:    stations,
		policy:      dealers.DefaultPolicy(),
		validate:    validator.New(),
		clock:       SystemClock{},
		logger:      zap.NewNop(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CalculateSettlement computes the settlement for a station and window.
// A calculated or disputed settlement is recalculated in place; a cancelled one
// is superseded by the next sequence; approved and paid settlements are final.
func (s *SettlementService) CalculateSettlement(ctx context.Context, req SettlementRequest) (*dealers.Settlement, []any, error) {
	start := time.Now()
	settlement, events, err := s.calculate(ctx, req)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveSettlementCalculation(result, time.Since(start))
	return settlement, events, err
}

func (s *SettlementService) calculate(ctx context.Context, req SettlementRequest) (*dealers.Settlement, []any, error) {
	if err := auth.Authorize(ctx, auth.OpCalculateSettle); err != nil {
		return nil, nil, err
	}
	if err := apperrors.ValidateStruct(s.validate, req); err != nil {
		return nil, nil, err
	}
	station, err := s.stations.Get(ctx, req.StationID)
	if err != nil {
		return nil, nil, err
	}
	if station == nil {
		return nil, nil, apperrors.NotFound("station", req.StationID)
	}

	existing, err := s.repo.FindLatest(ctx, req.StationID, req.WindowID)
	if err != nil {
		return nil, nil, err
	}
	agg := existing
	expected := 0
	switch {
	case existing == nil:
		agg, err = dealers.NewSettlement(station.TenantID, station.ID, station.DealerID, req.WindowID, req.PeriodStart, req.PeriodEnd, 1)
	case existing.Status == dealers.StatusCancelled:
		agg, err = dealers.NewSettlement(station.TenantID, station.ID, station.DealerID, req.WindowID, req.PeriodStart, req.PeriodEnd, existing.Sequence+1)
	case existing.IsFinalized():
		return nil, nil, apperrors.Wrap(dealers.ErrSettlementFinalized, apperrors.CodeInvalidTransition, apperrors.ErrInvalidTransition.Status,
			fmt.Sprintf("settlement %s is %s", existing.SettlementNumber, existing.Status))
	default:
		expected = existing.Version
		agg.PeriodStart = req.PeriodStart.UTC()
		agg.PeriodEnd = req.PeriodEnd.UTC()
	}
	if err != nil {
		return nil, nil, err
	}

	calc, err := s.gather(ctx, agg)
	if err != nil {
		return nil, nil, err
	}
	if err := agg.Recalculate(calc, s.clock.Now()); err != nil {
		return nil, nil, err
	}
	if expected == 0 {
		err = s.repo.Create(ctx, agg)
	} else {
		err = s.repo.Update(ctx, agg, expected)
	}
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("dealer settlement calculated",
		zap.String("settlement_number", agg.SettlementNumber),
		zap.String("station_id", agg.StationID),
		zap.String("window_id", agg.WindowID),
		zap.String("net_payable", agg.NetPayable().StringFixed(dealers.MoneyPlaces)),
		zap.Bool("negative_balance", agg.IsNegativeBalance()),
		zap.Int("version", agg.Version))
	return agg, agg.PullEvents(), nil
}

func (s *SettlementService) gather(ctx context.Context, agg *dealers.Settlement) (dealers.Calculation, error) {
	calc := dealers.Calculation{WithholdingTaxRate: s.policy.WithholdingTaxRate}

	volumes, err := s.sales.SalesByProduct(ctx, agg.StationID, agg.PeriodStart, agg.PeriodEnd)
	if err != nil {
		return calc, fmt.Errorf("sales volumes: %w", err)
	}
	products := make([]string, 0, len(volumes))
	for product := range volumes {
		products = append(products, product)
	}
	sort.Strings(products)
	for _, product := range products {
		rate, ok := decimal.Zero, false
		if s.margins != nil {
			rate, ok, err = s.margins.DealerMarginRate(ctx, agg.StationID, product, agg.WindowID)
			if err != nil {
				return calc, fmt.Errorf("dealer margin %s: %w", product, err)
			}
		}
		if !ok {
			rate = s.policy.DefaultMargin(product)
		}
		calc.Lines = append(calc.Lines, dealers.ProductLine{ProductID: product, Litres: volumes[product], MarginRate: rate})
	}

	if s.loans != nil {
		due, err := s.loans.InstallmentsDue(ctx, agg.StationID, agg.PeriodStart, agg.PeriodEnd)
		if err != nil {
			return calc, fmt.Errorf("loan installments: %w", err)
		}
		for _, inst := range due {
			calc.Installments = append(calc.Installments, dealers.Deduction{
				Reference: fmt.Sprintf("%s#%d", inst.LoanID, inst.Number),
				Amount:    inst.Amount,
			})
		}
	}
	if s.charges != nil {
		charges, err := s.charges.Charges(ctx, agg.StationID, agg.PeriodStart, agg.PeriodEnd)
		if err != nil {
			return calc, fmt.Errorf("charges: %w", err)
		}
		calc.Charges = charges
	}

	debt, err := s.carriedDebt(ctx, agg)
	if err != nil {
		return calc, err
	}
	calc.CarriedDebt = debt
	return calc, nil
}

// carriedDebt returns the negative balance of the station's previous approved or
// paid settlement as a deduction, or nil.
func (s *SettlementService) carriedDebt(ctx context.Context, agg *dealers.Settlement) (*dealers.Deduction, error) {
	history, err := s.repo.ListByStation(ctx, agg.StationID)
	if err != nil {
		return nil, err
	}
	var previous *dealers.Settlement
	for _, prior := range history {
		if prior.WindowID == agg.WindowID || prior.Status == dealers.StatusCancelled {
			continue
		}
		if prior.PeriodEnd.After(agg.PeriodStart) {
			continue
		}
		if previous == nil || prior.PeriodEnd.After(previous.PeriodEnd) {
			previous = prior
		}
	}
	if previous == nil || !previous.IsFinalized() || !previous.IsNegativeBalance() {
		return nil, nil
	}
	return &dealers.Deduction{
		Kind:      dealers.DeductionCarriedDebt,
		Reference: previous.SettlementNumber,
		Amount:    previous.NetPayable().Neg(),
	}, nil
}

// Approve moves a calculated settlement to approved. Settlements above the
// approval threshold need an approver identity.
func (s *SettlementService) Approve(ctx context.Context, id string, expectedVersion int) (*dealers.Settlement, []any, error) {
	return s.transition(ctx, id, expectedVersion, dealers.StatusApproved, func(agg *dealers.Settlement, actor string, now time.Time) error {
		if auth.RoleFromContext(ctx) == "" && agg.RequiresApproval(s.policy.ApprovalThreshold) {
			return apperrors.New(apperrors.CodeForbidden, apperrors.ErrForbidden.Status,
				fmt.Sprintf("settlement %s exceeds the approval threshold and needs an approver", agg.SettlementNumber))
		}
		if err := auth.Authorize(ctx, auth.OpApproveSettlement); err != nil {
			return err
		}
		return agg.Approve(actor, now)
	})
}

// MarkPaid moves an approved settlement with a positive balance to paid.
func (s *SettlementService) MarkPaid(ctx context.Context, id string, expectedVersion int, paymentRef string) (*dealers.Settlement, []any, error) {
	return s.transition(ctx, id, expectedVersion, dealers.StatusPaid, func(agg *dealers.Settlement, actor string, now time.Time) error {
		if err := auth.Authorize(ctx, auth.OpPaySettlement); err != nil {
			return err
		}
		return agg.MarkPaid(paymentRef, actor, now)
	})
}

// Dispute moves a calculated or approved settlement to disputed.
func (s *SettlementService) Dispute(ctx context.Context, id string, expectedVersion int, reason string) (*dealers.Settlement, []any, error) {
	return s.transition(ctx, id, expectedVersion, dealers.StatusDisputed, func(agg *dealers.Settlement, actor string, now time.Time) error {
		if err := auth.Authorize(ctx, auth.OpCalculateSettle); err != nil {
			return err
		}
		return agg.Dispute(reason, actor, now)
	})
}

// Cancel moves any non-paid settlement to cancelled.
func (s *SettlementService) Cancel(ctx context.Context, id string, expectedVersion int, reason string) (*dealers.Settlement, []any, error) {
	return s.transition(ctx, id, expectedVersion, dealers.StatusCancelled, func(agg *dealers.Settlement, actor string, now time.Time) error {
		if err := auth.Authorize(ctx, auth.OpApproveSettlement); err != nil {
			return err
		}
		return agg.Cancel(reason, actor, now)
	})
}

func (s *SettlementService) transition(
	ctx context.Context,
	id string,
	expectedVersion int,
	to dealers.Status,
	apply func(agg *dealers.Settlement, actor string, now time.Time) error,
) (*dealers.Settlement, []any, error) {
	agg, events, err := s.applyTransition(ctx, id, expectedVersion, apply)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.IncSettlementTransition(string(to), result)
	if err != nil {
		return nil, nil, err
	}
	return agg, events, nil
}

func (s *SettlementService) applyTransition(
	ctx context.Context,
	id string,
	expectedVersion int,
	apply func(agg *dealers.Settlement, actor string, now time.Time) error,
) (*dealers.Settlement, []any, error) {
	agg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if agg.Version != expectedVersion {
		return nil, nil, apperrors.Conflict("dealer settlement", agg.SettlementNumber)
	}
	actor := auth.SubjectFromContext(ctx)
	if actor == "" {
		actor = "system"
	}
	from := agg.Status
	if err := apply(agg, actor, s.clock.Now()); err != nil {
		return nil, nil, err
	}
	if err := s.repo.Update(ctx, agg, expectedVersion); err != nil {
		return nil, nil, err
	}
	if err := audit.Record(ctx, s.audit, audit.Transition{
		Action:       "settlement." + string(agg.Status),
		ResourceType: "dealer_settlement",
		ResourceID:   agg.ID,
		StationID:    agg.StationID,
		From:         string(from),
		To:           string(agg.Status),
		Metadata: map[string]string{
			"settlement_number": agg.SettlementNumber,
			"net_payable":       agg.NetPayable().StringFixed(dealers.MoneyPlaces),
		},
	}); err != nil {
		s.logger.Warn("audit write failed", zap.String("settlement_id", agg.ID), zap.Error(err))
	}
	s.logger.Info("dealer settlement transition",
		zap.String("settlement_number", agg.SettlementNumber),
		zap.String("from", string(from)),
		zap.String("to", string(agg.Status)),
		zap.String("actor", actor))
	return agg, agg.PullEvents(), nil
}

// StationFailure records a station whose settlement failed.
type StationFailure struct {
	StationID string
	Err       error
}

// WindowSettlementReport is the outcome of settling every active station.
type WindowSettlementReport struct {
	WindowID    string
	Settlements []*dealers.Settlement
	Failed      []StationFailure
	Events      []any
}

// CalculateForWindow settles every active station for the period. A failing
// station is reported without stopping the others.
func (s *SettlementService) CalculateForWindow(ctx context.Context, windowID string, periodStart, periodEnd time.Time) (WindowSettlementReport, error) {
	report := WindowSettlementReport{WindowID: windowID}
	if err := auth.Authorize(ctx, auth.OpCalculateSettle); err != nil {
		return report, err
	}
	stations, err := s.stations.ActiveStations(ctx)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, station := range stations {
		stationID := station.ID
		g.Go(func() error {
			settlement, events, err := s.CalculateSettlement(ctx, SettlementRequest{
				StationID:   stationID,
				WindowID:    windowID,
				PeriodStart: periodStart,
				PeriodEnd:   periodEnd,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, StationFailure{StationID: stationID, Err: err})
				s.logger.Warn("station settlement failed",
					zap.String("window_id", windowID), zap.String("station_id", stationID), zap.Error(err))
				return nil
			}
			report.Settlements = append(report.Settlements, settlement)
			report.Events = append(report.Events, events...)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Settlements, func(i, j int) bool { return report.Settlements[i].StationID < report.Settlements[j].StationID })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].StationID < report.Failed[j].StationID })
	s.logger.Info("window settlement finished",
		zap.String("window_id", windowID),
		zap.Int("succeeded", len(report.Settlements)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// DealerPerformance scores a station's settlement history.
func (s *SettlementService) DealerPerformance(ctx context.Context, stationID string) (dealers.Performance, error) {
	if stationID == "" {
		return dealers.Performance{}, dealers.ErrEmptyStationID
	}
	history, err := s.repo.ListByStation(ctx, stationID)
	if err != nil {
		return dealers.Performance{}, err
	}
	return dealers.EvaluatePerformance(stationID, history), nil
}
