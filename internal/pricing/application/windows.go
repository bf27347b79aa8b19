package application

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/audit"
	"omc-erp/internal/auth"
	pricing "omc-erp/internal/pricing/domain"
)

// DefaultArchiveAfterDays is the retention of closed windows before archiving.
const DefaultArchiveAfterDays = 365

// WindowInput describes a new pricing window. A zero End uses the default length.
type WindowInput struct {
	Start        time.Time `validate:"required"`
	End          time.Time `validate:"omitempty,gtfield=Start"`
	GuidelineRef string    `validate:"max=64"`
}

// WindowService manages the pricing window lifecycle.
type WindowService struct {
	windows  pricing.WindowRepository
	rates    pricing.RateStore
	prices   pricing.StationPriceRepository
	validate *validator.Validate
	audit    audit.Logger
	clock    Clock
	logger   *zap.Logger
}

// NewWindowService constructs the service. rates and prices are needed only for
// CompareWindows and WindowSummary.
func NewWindowService(
	windows pricing.WindowRepository,
	rates pricing.RateStore,
	prices pricing.StationPriceRepository,
	validate *validator.Validate,
	auditLog audit.Logger,
	clock Clock,
	logger *zap.Logger,
) (*WindowService, error) {
	if windows == nil {
		return nil, errors.New("window service: nil window repository")
	}
	if validate == nil {
		validate = validator.New()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowService{
		windows:  windows,
		rates:    rates,
		prices:   prices,
		validate: validate,
		audit:    auditLog,
		clock:    clock,
		logger:   logger,
	}, nil
}

// CreateWindow creates a draft window that overlaps no existing window.
func (s *WindowService) CreateWindow(ctx context.Context, in WindowInput) (*pricing.PricingWindow, error) {
	if err := auth.Authorize(ctx, auth.OpManageWindows); err != nil {
		return nil, err
	}
	if err := apperrors.ValidateStruct(s.validate, in); err != nil {
		return nil, err
	}
	window, err := pricing.NewPricingWindow(in.Start, in.End, in.GuidelineRef, s.clock.Now())
	if err != nil {
		return nil, err
	}
	existing, err := s.windows.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if other.ID == window.ID {
			return nil, apperrors.Conflict("pricing window", window.ID)
		}
		if window.Overlaps(other) {
			return nil, pricing.ErrWindowOverlap
		}
	}
	if err := s.windows.Save(ctx, window); err != nil {
		return nil, err
	}
	s.record(ctx, "window.create", window.ID, "", string(window.Status))
	return window, nil
}

// ActivateWindow activates a draft window and closes the previously active one.
func (s *WindowService) ActivateWindow(ctx context.Context, id string) (*pricing.PricingWindow, []any, error) {
	if err := auth.Authorize(ctx, auth.OpManageWindows); err != nil {
		return nil, nil, err
	}
	window, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	now := s.clock.Now()
	if err := window.Activate(now); err != nil {
		return nil, nil, err
	}

	previous, err := s.windows.FindActive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if previous != nil && previous.ID == window.ID {
		previous = nil
	}
	if previous != nil {
		if err := previous.Close(now); err != nil {
			return nil, nil, err
		}
	}
	if err := s.windows.Activate(ctx, window, previous); err != nil {
		return nil, nil, err
	}

	var events []any
	previousID := ""
	if previous != nil {
		previousID = previous.ID
		events = append(events, pricing.PricingWindowClosed{WindowID: previous.ID, OccurredAt: now.UTC()})
		s.record(ctx, "window.close", previous.ID, string(pricing.WindowActive), string(pricing.WindowClosed))
	}
	events = append(events, pricing.PricingWindowActivated{WindowID: window.ID, PreviousWindowID: previousID, OccurredAt: now.UTC()})
	s.record(ctx, "window.activate", window.ID, string(pricing.WindowDraft), string(pricing.WindowActive))
	s.logger.Info("pricing window activated", zap.String("window_id", window.ID), zap.String("previous_window_id", previousID))
	return window, events, nil
}

// CloseWindow closes an active window.
func (s *WindowService) CloseWindow(ctx context.Context, id string) (*pricing.PricingWindow, []any, error) {
	if err := auth.Authorize(ctx, auth.OpManageWindows); err != nil {
		return nil, nil, err
	}
	window, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	now := s.clock.Now()
	if err := window.Close(now); err != nil {
		return nil, nil, err
	}
	if err := s.windows.Save(ctx, window); err != nil {
		return nil, nil, err
	}
	s.record(ctx, "window.close", window.ID, string(pricing.WindowActive), string(pricing.WindowClosed))
	return window, []any{pricing.PricingWindowClosed{WindowID: window.ID, OccurredAt: now.UTC()}}, nil
}

// ArchiveWindow archives a closed window.
func (s *WindowService) ArchiveWindow(ctx context.Context, id string) (*pricing.PricingWindow, error) {
	if err := auth.Authorize(ctx, auth.OpManageWindows); err != nil {
		return nil, err
	}
	window, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := window.Archive(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.windows.Save(ctx, window); err != nil {
		return nil, err
	}
	s.record(ctx, "window.archive", window.ID, string(pricing.WindowClosed), string(pricing.WindowArchived))
	return window, nil
}

// ArchiveOlderThan archives closed windows that ended more than days ago and returns their ids.
func (s *WindowService) ArchiveOlderThan(ctx context.Context, days int) ([]string, error) {
	if err := auth.Authorize(ctx, auth.OpManageWindows); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultArchiveAfterDays
	}
	now := s.clock.Now()
	cutoff := now.UTC().AddDate(0, 0, -days)
	windows, err := s.windows.List(ctx)
	if err != nil {
		return nil, err
	}
	var archived []string
	for _, window := range windows {
		if window.Status != pricing.WindowClosed || !window.EndDate.Before(cutoff) {
			continue
		}
		if err := window.Archive(now); err != nil {
			return archived, err
		}
		if err := s.windows.Save(ctx, window); err != nil {
			return archived, err
		}
		s.record(ctx, "window.archive", window.ID, string(pricing.WindowClosed), string(pricing.WindowArchived))
		archived = append(archived, window.ID)
	}
	return archived, nil
}

// ComponentChange is the difference of one component between two windows.
type ComponentChange struct {
	Code      string
	From      decimal.Decimal
	To        decimal.Decimal
	Change    decimal.Decimal
	ChangePct decimal.Decimal
	Added     bool
	Removed   bool
}

// WindowComparison compares the effective rates of two windows for one product.
type WindowComparison struct {
	ProductID    string
	FromWindowID string
	ToWindowID   string
	Components   []ComponentChange
	FromTotal    decimal.Decimal
	ToTotal      decimal.Decimal
	TotalChange  decimal.Decimal
}

// CompareWindows compares component rates effective at the start of windows a and b.
func (s *WindowService) CompareWindows(ctx context.Context, productID, fromID, toID string) (WindowComparison, error) {
	if s.rates == nil {
		return WindowComparison{}, errors.New("window service: nil rate store")
	}
	from, err := s.load(ctx, fromID)
	if err != nil {
		return WindowComparison{}, err
	}
	to, err := s.load(ctx, toID)
	if err != nil {
		return WindowComparison{}, err
	}
	fromRates, err := s.effective(ctx, productID, from)
	if err != nil {
		return WindowComparison{}, err
	}
	toRates, err := s.effective(ctx, productID, to)
	if err != nil {
		return WindowComparison{}, err
	}

	codes := make(map[string]struct{}, len(fromRates)+len(toRates))
	for code := range fromRates {
		codes[code] = struct{}{}
	}
	for code := range toRates {
		codes[code] = struct{}{}
	}

	out := WindowComparison{ProductID: productID, FromWindowID: from.ID, ToWindowID: to.ID}
	for code := range codes {
		a, hadA := fromRates[code]
		b, hadB := toRates[code]
		change := ComponentChange{Code: code, From: a.Rate, To: b.Rate, Added: !hadA, Removed: !hadB}
		change.Change = b.Rate.Sub(a.Rate)
		if !a.Rate.IsZero() {
			change.ChangePct = change.Change.Div(a.Rate).Mul(decimal.NewFromInt(100)).Round(2)
		}
		out.Components = append(out.Components, change)
		out.FromTotal = out.FromTotal.Add(a.Rate)
		out.ToTotal = out.ToTotal.Add(b.Rate)
	}
	sort.Slice(out.Components, func(i, j int) bool { return out.Components[i].Code < out.Components[j].Code })
	out.TotalChange = out.ToTotal.Sub(out.FromTotal)
	return out, nil
}

// ProductPriceStats summarises the valid ex-pump prices of one product.
type ProductPriceStats struct {
	ProductID string
	Count     int
	Min       decimal.Decimal
	Max       decimal.Decimal
	Average   decimal.Decimal
}

// WindowSummaryReport counts the station prices of a window.
type WindowSummaryReport struct {
	Window   *pricing.PricingWindow
	Total    int
	Valid    int
	Invalid  int
	Products []ProductPriceStats
}

// WindowSummary reports price counts and per-product statistics over valid prices.
func (s *WindowService) WindowSummary(ctx context.Context, id string) (WindowSummaryReport, error) {
	if s.prices == nil {
		return WindowSummaryReport{}, errors.New("window service: nil station price repository")
	}
	window, err := s.load(ctx, id)
	if err != nil {
		return WindowSummaryReport{}, err
	}
	prices, err := s.prices.ListByWindow(ctx, id)
	if err != nil {
		return WindowSummaryReport{}, err
	}

	report := WindowSummaryReport{Window: window, Total: len(prices)}
	stats := make(map[string]*ProductPriceStats)
	sums := make(map[string]decimal.Decimal)
	for _, p := range prices {
		if p.Status != pricing.PriceValid {
			report.Invalid++
			continue
		}
		report.Valid++
		st, ok := stats[p.ProductID]
		if !ok {
			st = &ProductPriceStats{ProductID: p.ProductID, Min: p.ExPumpPrice, Max: p.ExPumpPrice}
			stats[p.ProductID] = st
		}
		st.Count++
		st.Min = decimal.Min(st.Min, p.ExPumpPrice)
		st.Max = decimal.Max(st.Max, p.ExPumpPrice)
		sums[p.ProductID] = sums[p.ProductID].Add(p.ExPumpPrice)
	}
	for product, st := range stats {
		st.Average = sums[product].Div(decimal.NewFromInt(int64(st.Count))).Round(pricing.AmountPlaces)
		report.Products = append(report.Products, *st)
	}
	sort.Slice(report.Products, func(i, j int) bool { return report.Products[i].ProductID < report.Products[j].ProductID })
	return report, nil
}

func (s *WindowService) effective(ctx context.Context, productID string, window *pricing.PricingWindow) (map[string]pricing.ComponentRate, error) {
	rates, err := s.rates.ListEffective(ctx, productID, window.EffectiveDate())
	if err != nil {
		return nil, err
	}
	return pricing.ResolveRates(rates, window.ID, window.EffectiveDate()), nil
}

func (s *WindowService) load(ctx context.Context, id string) (*pricing.PricingWindow, error) {
	if id == "" {
		return nil, pricing.ErrEmptyWindowID
	}
	window, err := s.windows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if window == nil {
		return nil, apperrors.NotFound("pricing window", id)
	}
	return window, nil
}

func (s *WindowService) record(ctx context.Context, action, id, from, to string) {
	if err := audit.Record(ctx, s.audit, audit.Transition{
		Action:       action,
		ResourceType: "pricing_window",
		ResourceID:   id,
		From:         from,
		To:           to,
	}); err != nil {
		s.logger.Warn("audit write failed", zap.String("window_id", id), zap.String("action", action), zap.Error(err))
	}
}
