package application

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/audit"
	pricing "omc-erp/internal/pricing/domain"
	pmemory "omc-erp/internal/pricing/infrastructure/memory"
	uppf "omc-erp/internal/uppf/domain"
	"omc-erp/internal/uppf/infrastructure/memory"
)

var fixedNow = time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// northbound builds points heading due north, stepKm apart and step apart in time.
func northbound(points int, stepKm float64, step time.Duration) []uppf.GPSPoint {
	kmPerDegree := 6371.0 * math.Pi / 180
	trace := make([]uppf.GPSPoint, points)
	for i := range trace {
		trace[i] = uppf.GPSPoint{
			Lat:       5.6 + float64(i)*stepKm/kmPerDegree,
			Lon:       -0.2,
			Timestamp: fixedNow.Add(-24 * time.Hour).Add(time.Duration(i) * step),
		}
	}
	return trace
}

type stubGenerator struct {
	fail uppf.DocumentType
}

func (g stubGenerator) Render(_ context.Context, docType uppf.DocumentType, sub *uppf.Submission, _ []*uppf.Claim) (RenderedDocument, error) {
	if docType == g.fail {
		return RenderedDocument{}, errors.New("renderer crashed")
	}
	return RenderedDocument{
		Type:        docType,
		Format:      "pdf",
		Filename:    string(docType) + ".bin",
		ContentType: "application/octet-stream",
		Data:        []byte(string(docType) + ":" + sub.Reference),
	}, nil
}

type memoryDocs struct {
	mu   sync.Mutex
	objs map[string][]byte
	err  error
}

func (m *memoryDocs) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objs == nil {
		m.objs = make(map[string][]byte)
	}
	m.objs[key] = data
	return "mem://" + key, nil
}

type harness struct {
	window    *pricing.PricingWindow
	windows   *pmemory.WindowRepository
	store     *memory.Store
	routes    *memory.RouteRegistry
	docs      *memoryDocs
	generator *stubGenerator
	audit     *audit.MemoryLogger
	claims    *ClaimService
	batcher   *Batcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	window, err := pricing.NewPricingWindow(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Time{}, "NPA/PG/05", fixedNow)
	require.NoError(t, err)
	require.NoError(t, window.Activate(fixedNow))
	windows := pmemory.NewWindowRepository()
	require.NoError(t, windows.Save(context.Background(), window))

	h := &harness{
		window:    window,
		windows:   windows,
		store:     memory.NewStore(),
		routes:    memory.NewRouteRegistry(uppf.Route{ID: "R1", DepotID: "TEMA", StationID: "S1", KmThreshold: d("100"), PlannedKm: d("150")}),
		docs:      &memoryDocs{},
		generator: &stubGenerator{},
		audit:     &audit.MemoryLogger{},
	}
	opts := []Option{WithClock(fixedClock{now: fixedNow}), WithAuditLogger(h.audit)}
	h.claims, err = NewClaimService(h.store.Claims(), h.routes, windows, opts...)
	require.NoError(t, err)
	h.batcher, err = NewBatcher(windows, h.store.Claims(), h.store.Submissions(), h.generator, h.docs, opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) input(delivery string) ClaimInput {
	return ClaimInput{
		DeliveryID:  delivery,
		RouteID:     "R1",
		WindowID:    h.window.ID,
		KmActual:    d("150"),
		LitresMoved: d("30000"),
		GPSTrace:    northbound(11, 15, 10*time.Minute),
		Evidence:    []string{"waybill-" + delivery + ".pdf"},
	}
}

// readyClaim creates, reconciles and validates a claim.
func (h *harness) readyClaim(t *testing.T, delivery string) *uppf.Claim {
	t.Helper()
	ctx := context.Background()
	c, _, err := h.claims.CreateClaim(ctx, h.input(delivery))
	require.NoError(t, err)
	_, _, err = h.claims.Reconcile(ctx, c.ID, d("30000"), d("29950"), d("30000"))
	require.NoError(t, err)
	c, _, err = h.claims.ValidateClaim(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, uppf.ClaimReady, c.Status)
	return c
}
