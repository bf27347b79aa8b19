package pricing

import "errors"

var (
	// ErrEmptyComponentCode is returned when a rate has no code.
	ErrEmptyComponentCode = errors.New("pricing: empty component code")
	// ErrEmptyProductID is returned when a product id is empty.
	ErrEmptyProductID = errors.New("pricing: empty product id")
	// ErrEmptyStationID is returned when a station id is empty.
	ErrEmptyStationID = errors.New("pricing: empty station id")
	// ErrEmptyWindowID is returned when a window id is empty.
	ErrEmptyWindowID = errors.New("pricing: empty window id")
	// ErrUnknownCategory is returned for an unrecognised component category.
	ErrUnknownCategory = errors.New("pricing: unknown component category")
	// ErrNegativeRate is returned when a published rate is negative.
	ErrNegativeRate = errors.New("pricing: negative rate")
	// ErrInvalidEffectiveDate is returned when effective dates are missing or inverted.
	ErrInvalidEffectiveDate = errors.New("pricing: invalid effective date range")
	// ErrInvalidWindowDates is returned when a window ends before it starts.
	ErrInvalidWindowDates = errors.New("pricing: window end must be after start")
	// ErrWindowOverlap is returned when a new window overlaps an existing one.
	ErrWindowOverlap = errors.New("pricing: window overlaps an existing window")
	// ErrNilWindow is returned when saving a nil window.
	ErrNilWindow = errors.New("pricing: nil window")
	// ErrNilStationPrice is returned when saving a nil station price.
	ErrNilStationPrice = errors.New("pricing: nil station price")
)
