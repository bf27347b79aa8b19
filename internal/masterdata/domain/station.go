package masterdata

import (
	"context"
	"errors"
	"time"
)

// Station represents a retail outlet operated by a dealer.
type Station struct {
	ID        string
	TenantID  string
	Name      string
	Region    string
	DealerID  string
	Active    bool
	Products  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID == "" {
		return errors.New("station: empty id")
	}
	if s.TenantID == "" {
		return errors.New("station: empty tenant id")
	}
	if s.Name == "" {
		return errors.New("station: empty name")
	}
	if s.DealerID == "" {
		return errors.New("station: empty dealer id")
	}
	return nil
}

// Sells reports whether the station dispenses a product. An empty product
// list means every fuel product.
func (s Station) Sells(productID string) bool {
	if len(s.Products) == 0 {
		return true
	}
	for _, p := range s.Products {
		if p == productID {
			return true
		}
	}
	return false
}

// StationRepository manages station persistence.
type StationRepository interface {
	Get(ctx context.Context, id string) (*Station, error)
	Save(ctx context.Context, station *Station) error
}

// StationRegistry lists the stations and products to price and settle.
type StationRegistry interface {
	ActiveStations(ctx context.Context) ([]Station, error)
	FuelProducts(ctx context.Context) ([]string, error)
}
