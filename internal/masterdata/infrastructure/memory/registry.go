package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	masterdata "omc-erp/internal/masterdata/domain"
)

// Registry is an in-memory station registry.
type Registry struct {
	mu       sync.RWMutex
	stations map[string]masterdata.Station
	products []string
}

// NewRegistry constructs a registry with the given fuel products.
func NewRegistry(products ...string) *Registry {
	return &Registry{
		stations: make(map[string]masterdata.Station),
		products: append([]string(nil), products...),
	}
}

// Get returns a station by id, nil when unknown.
func (r *Registry) Get(_ context.Context, id string) (*masterdata.Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	station, ok := r.stations[id]
	if !ok {
		return nil, nil
	}
	return &station, nil
}

// Save stores a station.
func (r *Registry) Save(_ context.Context, station *masterdata.Station) error {
	if station == nil {
		return errors.New("station registry: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.stations[station.ID] = *station
	r.mu.Unlock()
	return nil
}

// ActiveStations returns active stations ordered by id.
func (r *Registry) ActiveStations(context.Context) ([]masterdata.Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]masterdata.Station, 0, len(r.stations))
	for _, s := range r.stations {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FuelProducts returns the configured products sorted.
func (r *Registry) FuelProducts(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.products...)
	sort.Strings(out)
	return out, nil
}
