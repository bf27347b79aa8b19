package pricing

import "time"

// StationPricesCalculated is emitted after a bulk pricing run.
type StationPricesCalculated struct {
	WindowID   string    `json:"window_id"`
	Succeeded  int       `json:"succeeded"`
	Invalid    int       `json:"invalid"`
	Failed     int       `json:"failed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PricingWindowActivated is emitted when a window becomes active.
type PricingWindowActivated struct {
	WindowID         string    `json:"window_id"`
	PreviousWindowID string    `json:"previous_window_id,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// PricingWindowClosed is emitted when a window is closed.
type PricingWindowClosed struct {
	WindowID   string    `json:"window_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ComponentRatesPublished is emitted after an NPA template import.
type ComponentRatesPublished struct {
	WindowID   string    `json:"window_id"`
	Count      int       `json:"count"`
	OccurredAt time.Time `json:"occurred_at"`
}
