package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"omc-erp/internal/apperrors"
	pricing "omc-erp/internal/pricing/domain"
)

// RateStore is an in-memory component rate store.
type RateStore struct {
	mu    sync.RWMutex
	rates []pricing.ComponentRate
}

// NewRateStore constructs a store seeded with rates as published.
func NewRateStore(seed ...pricing.ComponentRate) *RateStore {
	s := &RateStore{}
	_ = s.Publish(context.Background(), seed)
	return s
}

// ListEffective returns the highest version per code and window effective at the instant, ordered by code.
func (s *RateStore) ListEffective(_ context.Context, productID string, at time.Time) ([]pricing.ComponentRate, error) {
	s.mu.RLock()
	var candidates []pricing.ComponentRate
	for _, r := range s.rates {
		if r.ProductID == productID {
			candidates = append(candidates, r)
		}
	}
	s.mu.RUnlock()

	return pricing.LatestPerWindow(candidates, at), nil
}

// Publish appends rates, assigning the next version per (code, product, window).
func (s *RateStore) Publish(_ context.Context, rates []pricing.ComponentRate) error {
	for _, r := range rates {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rates {
		version := 0
		for _, existing := range s.rates {
			if existing.Code == r.Code && existing.ProductID == r.ProductID && existing.WindowID == r.WindowID && existing.Version > version {
				version = existing.Version
			}
		}
		r.Version = version + 1
		s.rates = append(s.rates, r)
	}
	return nil
}

// WindowRepository is an in-memory window repository.
type WindowRepository struct {
	mu      sync.RWMutex
	windows map[string]*pricing.PricingWindow
}

// NewWindowRepository constructs an empty repository.
func NewWindowRepository() *WindowRepository {
	return &WindowRepository{windows: make(map[string]*pricing.PricingWindow)}
}

// Get returns a copy of the window, nil when missing.
func (r *WindowRepository) Get(_ context.Context, id string) (*pricing.PricingWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.windows[id].Clone(), nil
}

// FindActive returns the active window, nil when none.
func (r *WindowRepository) FindActive(context.Context) (*pricing.PricingWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.windows {
		if w.Status == pricing.WindowActive {
			return w.Clone(), nil
		}
	}
	return nil, nil
}

// List returns every window ordered by start date.
func (r *WindowRepository) List(context.Context) ([]*pricing.PricingWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*pricing.PricingWindow, 0, len(r.windows))
	for _, w := range r.windows {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// Save stores a copy of the window.
func (r *WindowRepository) Save(_ context.Context, window *pricing.PricingWindow) error {
	if window == nil {
		return pricing.ErrNilWindow
	}
	r.mu.Lock()
	r.windows[window.ID] = window.Clone()
	r.mu.Unlock()
	return nil
}

// Activate implements pricing.WindowRepository.
func (r *WindowRepository) Activate(_ context.Context, window, previous *pricing.PricingWindow) error {
	if window == nil {
		return pricing.ErrNilWindow
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.windows[window.ID]; !ok || stored.Status != pricing.WindowDraft {
		return apperrors.Conflict("pricing window", window.ID)
	}
	for id, w := range r.windows {
		if w.Status != pricing.WindowActive {
			continue
		}
		if previous == nil || id != previous.ID {
			return apperrors.Conflict("pricing window", window.ID)
		}
	}
	if previous != nil {
		if stored, ok := r.windows[previous.ID]; !ok || stored.Status != pricing.WindowActive {
			return apperrors.Conflict("pricing window", previous.ID)
		}
		r.windows[previous.ID] = previous.Clone()
	}
	r.windows[window.ID] = window.Clone()
	return nil
}

// StationPriceRepository is an in-memory station price repository.
type StationPriceRepository struct {
	mu     sync.RWMutex
	prices map[string]pricing.StationPrice
	writes int
}

// NewStationPriceRepository constructs an empty repository.
func NewStationPriceRepository() *StationPriceRepository {
	return &StationPriceRepository{prices: make(map[string]pricing.StationPrice)}
}

func priceKey(stationID, productID, windowID string) string {
	return windowID + "|" + stationID + "|" + productID
}

// Upsert stores the price, superseding and bumping the version of any existing row.
func (r *StationPriceRepository) Upsert(_ context.Context, price *pricing.StationPrice) error {
	if price == nil {
		return pricing.ErrNilStationPrice
	}
	key := priceKey(price.StationID, price.ProductID, price.WindowID)
	r.mu.Lock()
	defer r.mu.Unlock()
	version := 1
	if existing, ok := r.prices[key]; ok {
		version = existing.Version + 1
	}
	price.Version = version
	r.prices[key] = price.Clone()
	r.writes++
	return nil
}

// Get returns one price.
func (r *StationPriceRepository) Get(_ context.Context, stationID, productID, windowID string) (*pricing.StationPrice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	price, ok := r.prices[priceKey(stationID, productID, windowID)]
	if !ok {
		return nil, apperrors.NotFound("station price", stationID+"/"+productID+"/"+windowID)
	}
	clone := price.Clone()
	return &clone, nil
}

// ListByWindow returns prices for the window ordered by station and product.
func (r *StationPriceRepository) ListByWindow(_ context.Context, windowID string) ([]pricing.StationPrice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []pricing.StationPrice
	for _, p := range r.prices {
		if p.WindowID == windowID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

// Writes returns the number of upserts performed.
func (r *StationPriceRepository) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}
