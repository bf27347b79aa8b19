package uppf

import (
	"fmt"

	"omc-erp/internal/apperrors"
)

// NPA submission rules.
const (
	RuleNPAEvidence       = "NPA001"
	RuleNPAReconciliation = "NPA002"
	RuleNPALargeClaim     = "NPA003"
	RuleNPAKmBeyond       = "NPA004"
	RuleNPAValidation     = "NPA005"
)

// CheckClaim runs the input sanity and GPS checks for one claim. route may be
// nil when the route is unknown.
func CheckClaim(c *Claim, route *Route, policy GPSPolicy) TraceReport {
	var pre []apperrors.Violation
	if !c.LitresMoved.IsPositive() {
		pre = append(pre, apperrors.Violation{Rule: RuleInputLitres, Field: "litres_moved", Message: "litres moved must be positive", Severity: apperrors.SeverityFail})
	}
	if !c.KmActual.IsPositive() {
		pre = append(pre, apperrors.Violation{Rule: RuleInputKm, Field: "km_actual", Message: "actual km must be positive", Severity: apperrors.SeverityFail})
	}
	if route == nil {
		pre = append(pre, apperrors.Violation{Rule: RuleRouteUnknown, Field: "route_id", Message: fmt.Sprintf("route %s is not registered", c.RouteID), Severity: apperrors.SeverityFail})
	}
	report := CheckTrace(c.GPSTrace, c.KmActual.InexactFloat64(), policy)
	report.Violations = append(pre, report.Violations...)
	return report
}

// SubmissionRules runs NPA001-NPA005 over every claim and collects all violations.
func SubmissionRules(claims []*Claim, policy Policy) []apperrors.Violation {
	var out []apperrors.Violation
	add := func(c *Claim, rule, severity, msg string) {
		out = append(out, apperrors.Violation{Rule: rule, Field: c.ClaimNumber, Message: msg, Severity: severity})
	}
	for _, c := range claims {
		if len(c.Evidence) == 0 {
			add(c, RuleNPAEvidence, apperrors.SeverityFail, "no supporting evidence attached")
		}
		if c.Reconciliation.Status != ReconciliationMatched {
			add(c, RuleNPAReconciliation, apperrors.SeverityFail, fmt.Sprintf("three-way reconciliation is %s", c.Reconciliation.Status))
		}
		if c.ClaimAmount.GreaterThan(policy.LargeClaimThreshold) {
			add(c, RuleNPALargeClaim, apperrors.SeverityWarning, fmt.Sprintf("claim amount %s exceeds %s", c.ClaimAmount.StringFixed(MoneyPlaces), policy.LargeClaimThreshold.String()))
		}
		if !c.KmBeyondEqualisation.IsPositive() {
			add(c, RuleNPAKmBeyond, apperrors.SeverityFail, "no distance beyond the equalisation point")
		}
		if !c.ValidationPassed() {
			add(c, RuleNPAValidation, apperrors.SeverityFail, "claim validation has not passed")
		}
	}
	return out
}
