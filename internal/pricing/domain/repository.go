package pricing

import (
	"context"
	"time"
)

// RateStore resolves published component rates.
type RateStore interface {
	ListEffective(ctx context.Context, productID string, at time.Time) ([]ComponentRate, error)
}

// RatePublisher appends new component rate versions.
type RatePublisher interface {
	Publish(ctx context.Context, rates []ComponentRate) error
}

// WindowRepository persists pricing windows.
type WindowRepository interface {
	Get(ctx context.Context, id string) (*PricingWindow, error)
	FindActive(ctx context.Context) (*PricingWindow, error)
	List(ctx context.Context) ([]*PricingWindow, error)
	Save(ctx context.Context, window *PricingWindow) error
	// Activate stores window as active and previous, when not nil, as closed in
	// one step. It fails with a conflict unless window is still draft and
	// previous is still the only active window, or no window is active when
	// previous is nil.
	Activate(ctx context.Context, window, previous *PricingWindow) error
}

// StationPriceRepository persists station prices. Upsert supersedes the
// existing row for (station, product, window) and bumps its version.
type StationPriceRepository interface {
	Upsert(ctx context.Context, price *StationPrice) error
	Get(ctx context.Context, stationID, productID, windowID string) (*StationPrice, error)
	ListByWindow(ctx context.Context, windowID string) ([]StationPrice, error)
}
