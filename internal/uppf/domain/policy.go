package uppf

import (
	"time"

	"github.com/shopspring/decimal"
)

// GPSPolicy bounds the GPS trace checks.
type GPSPolicy struct {
	MinPoints         int
	MaxSpeedKmh       float64
	SpeedingKmh       float64
	MaxGap            time.Duration
	StopRadiusMeters  float64
	StopDuration      time.Duration
	UnauthorizedStop  time.Duration
	RouteTolerancePct float64
}

// Policy holds the UPPF claim parameters.
type Policy struct {
	DefaultTariff           decimal.Decimal
	LargeClaimThreshold     decimal.Decimal
	ReconciliationTolerance decimal.Decimal
	GPS                     GPSPolicy
}

// DefaultPolicy returns the built-in UPPF policy.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTariff:           decimal.RequireFromString("0.0012"),
		LargeClaimThreshold:     decimal.NewFromInt(50000),
		ReconciliationTolerance: decimal.RequireFromString("0.02"),
		GPS: GPSPolicy{
			MinPoints:         10,
			MaxSpeedKmh:       200,
			SpeedingKmh:       120,
			MaxGap:            15 * time.Minute,
			StopRadiusMeters:  100,
			StopDuration:      10 * time.Minute,
			UnauthorizedStop:  30 * time.Minute,
			RouteTolerancePct: 0.20,
		},
	}
}
