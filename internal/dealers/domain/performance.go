package dealers

import "github.com/shopspring/decimal"

// Rating buckets a dealer performance score.
type Rating string

const (
	RatingExcellent Rating = "EXCELLENT"
	RatingGood      Rating = "GOOD"
	RatingFair      Rating = "FAIR"
	RatingPoor      Rating = "POOR"
	RatingVeryPoor  Rating = "VERY_POOR"
)

// Scoring thresholds; each met criterion adds 25 points.
var (
	minMarginPerLitre   = decimal.RequireFromString("0.30")
	maxDeductionRatio   = decimal.RequireFromString("0.10")
	maxOutstandingRatio = decimal.RequireFromString("0.20")
)

const minSettlementsForScore = 12

// Performance summarises a dealer's settlement history.
type Performance struct {
	StationID             string
	Settlements           int
	TotalLitres           decimal.Decimal
	GrossMargin           decimal.Decimal
	AverageMarginPerLitre decimal.Decimal
	DeductionRatio        decimal.Decimal
	OutstandingDebt       decimal.Decimal
	OutstandingDebtRatio  decimal.Decimal
	Score                 int
	Rating                Rating
}

// EvaluatePerformance scores the non-cancelled settlements of one station.
// Outstanding debt is the negative balance of approved settlements.
func EvaluatePerformance(stationID string, settlements []*Settlement) Performance {
	p := Performance{StationID: stationID}
	deductions := decimal.Zero
	for _, s := range settlements {
		if s == nil || s.Status == StatusCancelled {
			continue
		}
		p.Settlements++
		p.TotalLitres = p.TotalLitres.Add(s.TotalLitresSold)
		p.GrossMargin = p.GrossMargin.Add(s.GrossDealerMargin)
		deductions = deductions.Add(s.TotalDeductions())
		if s.Status == StatusApproved && s.IsNegativeBalance() {
			p.OutstandingDebt = p.OutstandingDebt.Add(s.NetPayable().Neg())
		}
	}
	if p.TotalLitres.IsPositive() {
		p.AverageMarginPerLitre = p.GrossMargin.Div(p.TotalLitres).Round(4)
	}
	p.DeductionRatio = ratio(deductions, p.GrossMargin)
	p.OutstandingDebtRatio = ratio(p.OutstandingDebt, p.GrossMargin)

	if p.AverageMarginPerLitre.GreaterThanOrEqual(minMarginPerLitre) {
		p.Score += 25
	}
	if p.Settlements >= minSettlementsForScore {
		p.Score += 25
	}
	if p.DeductionRatio.LessThanOrEqual(maxDeductionRatio) {
		p.Score += 25
	}
	if p.OutstandingDebtRatio.LessThanOrEqual(maxOutstandingRatio) {
		p.Score += 25
	}
	p.Rating = RatingFor(p.Score)
	return p
}

// RatingFor maps a score to its rating.
func RatingFor(score int) Rating {
	switch {
	case score >= 90:
		return RatingExcellent
	case score >= 75:
		return RatingGood
	case score >= 60:
		return RatingFair
	case score >= 40:
		return RatingPoor
	default:
		return RatingVeryPoor
	}
}

// ratio is part/whole, or 1 when whole is zero and part is not.
func ratio(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsPositive() {
		return part.Div(whole).Round(4)
	}
	if part.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1)
}
