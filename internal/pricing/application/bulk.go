package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	masterdata "omc-erp/internal/masterdata/domain"
	"omc-erp/internal/observability/metrics"
	pricing "omc-erp/internal/pricing/domain"
)

const (
	defaultConcurrency   = 8
	defaultLookupTimeout = 5 * time.Second
)

// PairFailure records a pair that could not be priced.
type PairFailure struct {
	Pair      pricing.PairKey
	Err       error
	Retryable bool
}

// BulkResult reports the outcome of a bulk run. Slices are sorted by station then product.
type BulkResult struct {
	WindowID  string
	Succeeded []pricing.PairKey
	Invalid   []pricing.PairKey
	Failed    []PairFailure
	Events    []any
}

// RetryablePairs returns the failed pairs worth retrying.
func (r BulkResult) RetryablePairs() []pricing.PairKey {
	var out []pricing.PairKey
	for _, f := range r.Failed {
		if f.Retryable {
			out = append(out, f.Pair)
		}
	}
	return out
}

// BulkOptions bounds a bulk run.
type BulkOptions struct {
	Concurrency   int
	LookupTimeout time.Duration
}

// BulkOrchestrator prices every active station and fuel product of a window.
type BulkOrchestrator struct {
	calc     *Calculator
	registry masterdata.StationRegistry
	prices   pricing.StationPriceRepository
	opts     BulkOptions
	logger   *zap.Logger
}

// NewBulkOrchestrator constructs the orchestrator.
func NewBulkOrchestrator(
	calc *Calculator,
	registry masterdata.StationRegistry,
	prices pricing.StationPriceRepository,
	opts BulkOptions,
	logger *zap.Logger,
) (*BulkOrchestrator, error) {
	if calc == nil {
		return nil, errors.New("bulk pricing: nil calculator")
	}
	if registry == nil {
		return nil, errors.New("bulk pricing: nil station registry")
	}
	if prices == nil {
		return nil, errors.New("bulk pricing: nil station price repository")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkOrchestrator{calc: calc, registry: registry, prices: prices, opts: opts, logger: logger}, nil
}

// BulkCalculatePrices prices the cross product of active stations and fuel products.
// Pair failures are isolated; only an invalid window or a registry failure aborts the run.
func (o *BulkOrchestrator) BulkCalculatePrices(ctx context.Context, windowID string) (BulkResult, error) {
	window, err := o.calc.computableWindow(ctx, windowID)
	if err != nil {
		return BulkResult{WindowID: windowID}, err
	}
	pairs, err := o.pairs(ctx)
	if err != nil {
		return BulkResult{WindowID: windowID}, err
	}
	return o.run(ctx, window, pairs), nil
}

// RecalculatePairs reprices selected pairs with the same semantics as a full run.
func (o *BulkOrchestrator) RecalculatePairs(ctx context.Context, windowID string, pairs []pricing.PairKey) (BulkResult, error) {
	window, err := o.calc.computableWindow(ctx, windowID)
	if err != nil {
		return BulkResult{WindowID: windowID}, err
	}
	return o.run(ctx, window, dedupePairs(pairs)), nil
}

func (o *BulkOrchestrator) pairs(ctx context.Context) ([]pricing.PairKey, error) {
	stations, err := o.registry.ActiveStations(ctx)
	if err != nil {
		return nil, err
	}
	products, err := o.registry.FuelProducts(ctx)
	if err != nil {
		return nil, err
	}
	pairs := make([]pricing.PairKey, 0, len(stations)*len(products))
	for _, station := range stations {
		for _, product := range products {
			if station.Sells(product) {
				pairs = append(pairs, pricing.PairKey{StationID: station.ID, ProductID: product})
			}
		}
	}
	return pairs, nil
}

type pairOutcome struct {
	pair      pricing.PairKey
	invalid   bool
	err       error
	retryable bool
}

func (o *BulkOrchestrator) run(ctx context.Context, window *pricing.PricingWindow, pairs []pricing.PairKey) BulkResult {
	started := time.Now()
	result := BulkResult{WindowID: window.ID}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			outcome := o.processPair(ctx, window, pair)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case outcome.err != nil:
				result.Failed = append(result.Failed, PairFailure{
					Pair:      pair,
					Err:       outcome.err,
					Retryable: outcome.retryable,
				})
			case outcome.invalid:
				result.Invalid = append(result.Invalid, pair)
			default:
				result.Succeeded = append(result.Succeeded, pair)
			}
			return nil
		})
	}
	_ = g.Wait()

	pricing.SortPairs(result.Succeeded)
	pricing.SortPairs(result.Invalid)
	sort.Slice(result.Failed, func(i, j int) bool {
		a, b := result.Failed[i].Pair, result.Failed[j].Pair
		if a.StationID != b.StationID {
			return a.StationID < b.StationID
		}
		return a.ProductID < b.ProductID
	})

	for _, f := range result.Failed {
		o.logger.Warn("station price calculation failed",
			zap.String("window_id", window.ID),
			zap.String("station_id", f.Pair.StationID),
			zap.String("product_id", f.Pair.ProductID),
			zap.Bool("retryable", f.Retryable),
			zap.Error(f.Err),
		)
	}

	now := o.calc.clock.Now().UTC()
	result.Events = append(result.Events, pricing.StationPricesCalculated{
		WindowID:   window.ID,
		Succeeded:  len(result.Succeeded),
		Invalid:    len(result.Invalid),
		Failed:     len(result.Failed),
		OccurredAt: now,
	})

	runResult := metrics.ResultSuccess
	if len(result.Failed) > 0 {
		runResult = metrics.ResultError
	}
	metrics.ObserveBulkPricing(runResult, len(result.Succeeded), len(result.Invalid), len(result.Failed), time.Since(started))
	o.logger.Info("bulk pricing finished",
		zap.String("window_id", window.ID),
		zap.Int("pairs", len(pairs)),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("invalid", len(result.Invalid)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("duration", time.Since(started)),
	)
	return result
}

func (o *BulkOrchestrator) processPair(ctx context.Context, window *pricing.PricingWindow, pair pricing.PairKey) pairOutcome {
	pctx, cancel := context.WithTimeout(ctx, o.opts.LookupTimeout)
	defer cancel()

	price, err := o.calc.calculateIn(pctx, window, pair.StationID, pair.ProductID)
	if err != nil {
		return pairOutcome{pair: pair, err: err, retryable: isRetryable(err) || pctx.Err() != nil}
	}

	violations := pricing.ValidateStationPrice(price, o.calc.policy)
	price.Status = pricing.PriceValid
	if len(violations) > 0 {
		price.Status = pricing.PriceInvalid
		price.ValidationErrors = violations
		metrics.IncPriceValidation(metrics.ResultInvalid)
	} else {
		metrics.IncPriceValidation(metrics.ResultSuccess)
	}

	if err := o.prices.Upsert(pctx, &price); err != nil {
		return pairOutcome{pair: pair, err: err, retryable: isRetryable(err) || pctx.Err() != nil}
	}
	return pairOutcome{pair: pair, invalid: price.Status == pricing.PriceInvalid}
}

func isRetryable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func dedupePairs(pairs []pricing.PairKey) []pricing.PairKey {
	seen := make(map[pricing.PairKey]struct{}, len(pairs))
	out := make([]pricing.PairKey, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
