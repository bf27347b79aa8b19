package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/audit"
	"omc-erp/internal/auth"
	pricing "omc-erp/internal/pricing/domain"
	"omc-erp/internal/pricing/infrastructure/memory"
)

func newWindowService(t *testing.T, windows *memory.WindowRepository, rates pricing.RateStore, prices pricing.StationPriceRepository, now time.Time) (*WindowService, *audit.MemoryLogger) {
	t.Helper()
	log := &audit.MemoryLogger{}
	svc, err := NewWindowService(windows, rates, prices, nil, log, fixedClock{now}, nil)
	require.NoError(t, err)
	return svc, log
}

func TestCreateWindowRejectsOverlapAndBadDates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newWindowService(t, memory.NewWindowRepository(), nil, nil, fixedNow)

	w, err := svc.CreateWindow(ctx, WindowInput{Start: windowStart, GuidelineRef: "NPA/05"})
	require.NoError(t, err)
	assert.Equal(t, "2025-W05", w.ID)
	assert.Equal(t, pricing.WindowDraft, w.Status)

	_, err = svc.CreateWindow(ctx, WindowInput{Start: windowStart})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	_, err = svc.CreateWindow(ctx, WindowInput{Start: windowStart.AddDate(0, 0, -5)})
	assert.ErrorIs(t, err, pricing.ErrWindowOverlap)

	_, err = svc.CreateWindow(ctx, WindowInput{Start: windowStart.AddDate(0, 1, 0), End: windowStart})
	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))

	_, err = svc.CreateWindow(ctx, WindowInput{})
	assert.Error(t, err)
}

func TestActivateWindowClosesPrevious(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewWindowRepository()
	svc, log := newWindowService(t, repo, nil, nil, fixedNow)

	first, err := svc.CreateWindow(ctx, WindowInput{Start: windowStart})
	require.NoError(t, err)
	second, err := svc.CreateWindow(ctx, WindowInput{Start: windowStart.AddDate(0, 0, 14)})
	require.NoError(t, err)

	_, events, err := svc.ActivateWindow(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, events, err = svc.ActivateWindow(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, pricing.PricingWindowClosed{WindowID: first.ID, OccurredAt: fixedNow}, events[0])
	assert.Equal(t, first.ID, events[1].(pricing.PricingWindowActivated).PreviousWindowID)

	stored, _ := repo.Get(ctx, first.ID)
	assert.Equal(t, pricing.WindowClosed, stored.Status)
	active, _ := repo.FindActive(ctx)
	assert.Equal(t, second.ID, active.ID)

	_, _, err = svc.ActivateWindow(ctx, first.ID)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	assert.NotEmpty(t, log.Entries())
}

// slowActiveLookup widens the gap between reading the active window and activating.
type slowActiveLookup struct {
	*memory.WindowRepository
	delay time.Duration
}

func (r slowActiveLookup) FindActive(ctx context.Context) (*pricing.PricingWindow, error) {
	w, err := r.WindowRepository.FindActive(ctx)
	time.Sleep(r.delay)
	return w, err
}

func TestConcurrentActivationsLeaveOneActiveWindow(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewWindowRepository()
	svc, err := NewWindowService(slowActiveLookup{WindowRepository: repo, delay: 20 * time.Millisecond}, nil, nil, nil, nil, fixedClock{fixedNow}, nil)
	require.NoError(t, err)

	first, err := svc.CreateWindow(ctx, WindowInput{Start: windowStart})
	require.NoError(t, err)
	second, err := svc.CreateWindow(ctx, WindowInput{Start: windowStart.AddDate(0, 0, 14)})
	require.NoError(t, err)

	ids := []string{first.ID, second.ID}
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, _, errs[i] = svc.ActivateWindow(ctx, id)
		}(i, id)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.True(t, errors.Is(err, apperrors.ErrConflict), "unexpected error %v", err)
		}
	}
	assert.LessOrEqual(t, failed, 1)

	windows, err := repo.List(ctx)
	require.NoError(t, err)
	active := 0
	for _, w := range windows {
		if w.Status == pricing.WindowActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestWindowTransitionsRequireApprover(t *testing.T) {
	ctx := auth.WithIdentity(context.Background(), "omc-gh", auth.RoleOperator, "ama")
	svc, _ := newWindowService(t, memory.NewWindowRepository(), nil, nil, fixedNow)
	_, err := svc.CreateWindow(ctx, WindowInput{Start: windowStart})
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
}

func TestArchiveOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewWindowRepository()
	now := windowStart.AddDate(2, 0, 0)
	svc, _ := newWindowService(t, repo, nil, nil, now)

	old, err := svc.CreateWindow(ctx, WindowInput{Start: windowStart})
	require.NoError(t, err)
	recent, err := svc.CreateWindow(ctx, WindowInput{Start: now.AddDate(0, 0, -20)})
	require.NoError(t, err)
	for _, id := range []string{old.ID, recent.ID} {
		_, _, err := svc.ActivateWindow(ctx, id)
		require.NoError(t, err)
	}
	_, _, err = svc.CloseWindow(ctx, recent.ID)
	require.NoError(t, err)

	archived, err := svc.ArchiveOlderThan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, archived)

	stored, _ := repo.Get(ctx, recent.ID)
	assert.Equal(t, pricing.WindowClosed, stored.Status)
}

func TestCompareWindows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pricing.WindowActive)
	next, err := pricing.NewPricingWindow(windowStart.AddDate(0, 0, 14), time.Time{}, "", windowStart)
	require.NoError(t, err)
	require.NoError(t, f.windows.Save(ctx, next))

	later := rate("EXREF", pricing.CategoryExRefinery, "PMS", "5.50")
	later.WindowID = next.ID
	later.EffectiveFrom = next.StartDate
	bost := rate("BOST", pricing.CategoryMargin, "PMS", "0.12")
	bost.WindowID = next.ID
	bost.EffectiveFrom = next.StartDate
	require.NoError(t, f.rates.Publish(ctx, []pricing.ComponentRate{later, bost}))

	svc, _ := newWindowService(t, f.windows, f.rates, f.prices, fixedNow)
	cmp, err := svc.CompareWindows(ctx, "PMS", f.window.ID, next.ID)
	require.NoError(t, err)

	assert.Equal(t, "7.8", cmp.FromTotal.String())
	assert.Equal(t, "8.42", cmp.ToTotal.String())
	assert.Equal(t, "0.62", cmp.TotalChange.String())

	byCode := map[string]ComponentChange{}
	for _, c := range cmp.Components {
		byCode[c.Code] = c
	}
	assert.True(t, byCode["BOST"].Added)
	assert.Equal(t, "10", byCode["EXREF"].ChangePct.String())
	assert.True(t, byCode["OMC"].Change.IsZero())
}

func TestWindowSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pricing.WindowActive)
	for _, p := range []pricing.StationPrice{
		{StationID: "S1", ProductID: "PMS", WindowID: f.window.ID, ExPumpPrice: decimal.RequireFromString("7.80"), Status: pricing.PriceValid},
		{StationID: "S2", ProductID: "PMS", WindowID: f.window.ID, ExPumpPrice: decimal.RequireFromString("7.90"), Status: pricing.PriceValid},
		{StationID: "S3", ProductID: "PMS", WindowID: f.window.ID, ExPumpPrice: decimal.RequireFromString("-1"), Status: pricing.PriceInvalid},
	} {
		p := p
		require.NoError(t, f.prices.Upsert(ctx, &p))
	}

	svc, _ := newWindowService(t, f.windows, f.rates, f.prices, fixedNow)
	report, err := svc.WindowSummary(ctx, f.window.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Valid)
	assert.Equal(t, 1, report.Invalid)
	require.Len(t, report.Products, 1)
	assert.Equal(t, "7.8", report.Products[0].Min.String())
	assert.Equal(t, "7.9", report.Products[0].Max.String())
	assert.Equal(t, "7.85", report.Products[0].Average.String())
}
