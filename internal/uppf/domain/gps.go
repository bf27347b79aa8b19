package uppf

import (
	"fmt"
	"math"
	"time"

	"omc-erp/internal/apperrors"
)

// Claim validation rules.
const (
	RuleInputLitres       = "INPUT_LITRES"
	RuleInputKm           = "INPUT_KM"
	RuleRouteUnknown      = "ROUTE_UNKNOWN"
	RuleGPSPoints         = "GPS_POINTS"
	RuleGPSOrder          = "GPS_ORDER"
	RuleGPSSpeed          = "GPS_SPEED"
	RuleRoutePlausibility = "ROUTE_PLAUSIBILITY"
	RuleGPSSpeeding       = "GPS_SPEEDING"
	RuleGPSGap            = "GPS_GAP"
	RuleGPSStop           = "GPS_STOP"
	RuleUnauthorizedStop  = "GPS_UNAUTHORIZED_STOP"
)

const earthRadiusKm = 6371.0

// GPSPoint is one fix of a delivery trace.
type GPSPoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
	SpeedKmh  float64   `json:"speed_kmh,omitempty"`
}

// HaversineKm is the great-circle distance between two points.
func HaversineKm(a, b GPSPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// TraceDistanceKm sums the segment distances of a trace.
func TraceDistanceKm(trace []GPSPoint) float64 {
	total := 0.0
	for i := 1; i < len(trace); i++ {
		total += HaversineKm(trace[i-1], trace[i])
	}
	return total
}

// TraceReport is the outcome of the GPS checks.
type TraceReport struct {
	GPSKm      float64
	Violations []apperrors.Violation
}

// CheckTrace runs the data quality, plausibility and warning checks over a
// trace and returns every violation found.
func CheckTrace(trace []GPSPoint, kmActual float64, policy GPSPolicy) TraceReport {
	report := TraceReport{GPSKm: TraceDistanceKm(trace)}
	fail := func(rule, msg string) {
		report.Violations = append(report.Violations, apperrors.Violation{Rule: rule, Field: "gps_trace", Message: msg, Severity: apperrors.SeverityFail})
	}
	warn := func(rule, msg string) {
		report.Violations = append(report.Violations, apperrors.Violation{Rule: rule, Field: "gps_trace", Message: msg, Severity: apperrors.SeverityWarning})
	}

	if len(trace) < policy.MinPoints {
		fail(RuleGPSPoints, fmt.Sprintf("trace has %d points, need at least %d", len(trace), policy.MinPoints))
	}

	var (
		outOfOrder int
		tooFast    int
		speeding   int
		gaps       int
		maxSpeed   float64
	)
	for i := 1; i < len(trace); i++ {
		prev, cur := trace[i-1], trace[i]
		dt := cur.Timestamp.Sub(prev.Timestamp)
		if dt <= 0 {
			outOfOrder++
			continue
		}
		if dt > policy.MaxGap {
			gaps++
		}
		speed := HaversineKm(prev, cur) / dt.Hours()
		maxSpeed = math.Max(maxSpeed, speed)
		switch {
		case speed > policy.MaxSpeedKmh:
			tooFast++
		case speed > policy.SpeedingKmh || cur.SpeedKmh > policy.SpeedingKmh:
			speeding++
		}
	}
	if outOfOrder > 0 {
		fail(RuleGPSOrder, fmt.Sprintf("%d points are not in chronological order", outOfOrder))
	}
	if tooFast > 0 {
		fail(RuleGPSSpeed, fmt.Sprintf("%d segments exceed %.0f km/h (max %.1f km/h)", tooFast, policy.MaxSpeedKmh, maxSpeed))
	}

	if kmActual > 0 && len(trace) >= 2 {
		deviation := math.Abs(report.GPSKm-kmActual) / kmActual
		if deviation > policy.RouteTolerancePct {
			fail(RuleRoutePlausibility, fmt.Sprintf("gps distance %.1f km deviates %.0f%% from claimed %.1f km", report.GPSKm, deviation*100, kmActual))
		}
	}

	if speeding > 0 {
		warn(RuleGPSSpeeding, fmt.Sprintf("%d segments above %.0f km/h", speeding, policy.SpeedingKmh))
	}
	if gaps > 0 {
		warn(RuleGPSGap, fmt.Sprintf("%d gaps longer than %s", gaps, policy.MaxGap))
	}
	for _, stop := range detectStops(trace, policy.StopRadiusMeters) {
		switch {
		case stop > policy.UnauthorizedStop:
			warn(RuleUnauthorizedStop, fmt.Sprintf("unauthorised stop of %s", stop.Round(time.Minute)))
		case stop > policy.StopDuration:
			warn(RuleGPSStop, fmt.Sprintf("stop of %s", stop.Round(time.Minute)))
		}
	}
	return report
}

// detectStops returns the duration of every run of points that stays within
// radiusMeters of its first point.
func detectStops(trace []GPSPoint, radiusMeters float64) []time.Duration {
	var stops []time.Duration
	for i := 0; i < len(trace); {
		j := i
		for j+1 < len(trace) && HaversineKm(trace[i], trace[j+1])*1000 <= radiusMeters {
			j++
		}
		if j > i {
			if d := trace[j].Timestamp.Sub(trace[i].Timestamp); d > 0 {
				stops = append(stops, d)
			}
		}
		i = j + 1
	}
	return stops
}
