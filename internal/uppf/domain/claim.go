package uppf

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"omc-erp/internal/apperrors"
)

// MoneyPlaces is the rounding applied to claim amounts.
const MoneyPlaces = 2

// ClaimStatus is the lifecycle state of a UPPF claim.
type ClaimStatus string

const (
	ClaimDraft       ClaimStatus = "draft"
	ClaimReady       ClaimStatus = "ready_to_submit"
	ClaimSubmitted   ClaimStatus = "submitted"
	ClaimUnderReview ClaimStatus = "under_review"
	ClaimApproved    ClaimStatus = "approved"
	ClaimRejected    ClaimStatus = "rejected"
	ClaimPaid        ClaimStatus = "paid"
)

const claimEntity = "uppf claim"

var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimDraft:       {ClaimReady},
	ClaimReady:       {ClaimSubmitted, ClaimDraft},
	ClaimSubmitted:   {ClaimApproved, ClaimRejected, ClaimUnderReview},
	ClaimUnderReview: {ClaimApproved, ClaimRejected},
	ClaimApproved:    {ClaimPaid},
	ClaimRejected:    {ClaimDraft},
}

// CanTransition reports whether the claim state machine allows from -> to.
func CanTransition(from, to ClaimStatus) bool {
	for _, next := range claimTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HistoryEntry records one status transition of a claim or submission.
type HistoryEntry struct {
	From  string    `json:"from,omitempty"`
	To    string    `json:"to"`
	At    time.Time `json:"at"`
	Actor string    `json:"actor,omitempty"`
	Note  string    `json:"note,omitempty"`
}

// ValidationOutcome is the persisted result of the last claim validation.
type ValidationOutcome struct {
	Errors      []apperrors.Violation `json:"errors,omitempty"`
	Warnings    []apperrors.Violation `json:"warnings,omitempty"`
	GPSKm       float64               `json:"gps_km"`
	ValidatedAt time.Time             `json:"validated_at"`
}

// Passed reports whether no FAIL violation was found.
func (v *ValidationOutcome) Passed() bool { return v != nil && len(v.Errors) == 0 }

// ClaimDetails are the editable inputs of a claim.
type ClaimDetails struct {
	DeliveryID  string
	RouteID     string
	StationID   string
	WindowID    string
	KmActual    decimal.Decimal
	LitresMoved decimal.Decimal
	GPSTrace    []GPSPoint
	Evidence    []string
}

// ClaimDecision is the NPA verdict on one claim.
type ClaimDecision struct {
	ClaimID        string           `json:"claim_id"`
	Status         ClaimStatus      `json:"status"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

// Claim is a transport cost recovery claim for one delivery.
type Claim struct {
	ID                   string
	ClaimNumber          string
	TenantID             string
	DeliveryID           string
	RouteID              string
	DepotID              string
	StationID            string
	WindowID             string
	KmActual             decimal.Decimal
	LitresMoved          decimal.Decimal
	KmBeyondEqualisation decimal.Decimal
	Tariff               decimal.Decimal
	ClaimAmount          decimal.Decimal
	GPSTrace             []GPSPoint
	Evidence             []string
	Reconciliation       Reconciliation
	Validation           *ValidationOutcome
	Status               ClaimStatus
	Version              int
	SubmissionID         string
	ApprovedAmount       decimal.Decimal
	Variance             decimal.Decimal
	RejectionReason      string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	History              []HistoryEntry

	events []any
}

// BuildClaimNumber formats UPPF-{YYYYMM}-{suffix} from the creation time and claim id.
func BuildClaimNumber(at time.Time, id string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("UPPF-%s-%s", at.UTC().Format("200601"), suffix)
}

// NewClaim builds a draft claim and computes its amount from the route.
func NewClaim(tenantID string, d ClaimDetails, route *Route, fallbackTariff decimal.Decimal, now time.Time) (*Claim, error) {
	if d.DeliveryID == "" {
		return nil, ErrEmptyDeliveryID
	}
	if d.WindowID == "" {
		return nil, ErrEmptyWindowID
	}
	if route == nil {
		return nil, ErrNilRoute
	}
	now = now.UTC()
	id := uuid.NewString()
	c := &Claim{
		ID:             id,
		ClaimNumber:    BuildClaimNumber(now, id),
		TenantID:       tenantID,
		Status:         ClaimDraft,
		Reconciliation: Reconciliation{Status: ReconciliationPending},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c.apply(d, route, fallbackTariff)
	c.History = append(c.History, HistoryEntry{To: string(ClaimDraft), At: now})
	c.events = append(c.events, ClaimCreated{
		ClaimID:     c.ID,
		ClaimNumber: c.ClaimNumber,
		StationID:   c.StationID,
		WindowID:    c.WindowID,
		ClaimAmount: c.ClaimAmount,
		OccurredAt:  now,
	})
	return c, nil
}

func (c *Claim) apply(d ClaimDetails, route *Route, fallbackTariff decimal.Decimal) {
	c.DeliveryID = d.DeliveryID
	c.RouteID = route.ID
	c.DepotID = route.DepotID
	c.StationID = d.StationID
	if c.StationID == "" {
		c.StationID = route.StationID
	}
	c.WindowID = d.WindowID
	c.KmActual = d.KmActual
	c.LitresMoved = d.LitresMoved
	c.GPSTrace = append([]GPSPoint(nil), d.GPSTrace...)
	c.Evidence = append([]string(nil), d.Evidence...)
	c.KmBeyondEqualisation = route.KmBeyond(d.KmActual)
	c.Tariff = route.TariffOr(fallbackTariff)
	c.ClaimAmount = ClaimAmount(c.KmBeyondEqualisation, c.LitresMoved, c.Tariff)
}

// ValidationPassed reports whether the last validation found no FAIL violation.
func (c *Claim) ValidationPassed() bool { return c.Validation.Passed() }

// ApplyValidation stores the checks of a draft claim. A clean result moves the
// claim to ready_to_submit; otherwise it stays draft. The amount never changes.
func (c *Claim) ApplyValidation(violations []apperrors.Violation, gpsKm float64, now time.Time) error {
	if c.Status != ClaimDraft {
		return apperrors.InvalidTransition(claimEntity, string(c.Status), string(ClaimReady))
	}
	now = now.UTC()
	outcome := &ValidationOutcome{GPSKm: gpsKm, ValidatedAt: now}
	for _, v := range violations {
		if v.Severity == apperrors.SeverityWarning {
			outcome.Warnings = append(outcome.Warnings, v)
		} else {
			outcome.Errors = append(outcome.Errors, v)
		}
	}
	c.Validation = outcome
	c.UpdatedAt = now
	if !outcome.Passed() {
		return nil
	}
	return c.transition(ClaimReady, "", "validation passed", now)
}

// Reconcile records a three-way reconciliation on a claim not yet submitted.
func (c *Claim) Reconcile(rec Reconciliation, now time.Time) error {
	if c.Status != ClaimDraft && c.Status != ClaimReady {
		return apperrors.New(apperrors.CodeInvalidTransition, apperrors.ErrInvalidTransition.Status,
			fmt.Sprintf("%s: cannot reconcile in status %s", claimEntity, c.Status))
	}
	c.Reconciliation = rec
	c.UpdatedAt = now.UTC()
	c.events = append(c.events, ClaimReconciled{
		ClaimID:     c.ID,
		Status:      rec.Status,
		VariancePct: rec.VariancePct,
		OccurredAt:  c.UpdatedAt,
	})
	return nil
}

// Submit attaches the claim to a submission batch.
func (c *Claim) Submit(submissionID, actor string, now time.Time) error {
	if err := c.transition(ClaimSubmitted, actor, submissionID, now); err != nil {
		return err
	}
	c.SubmissionID = submissionID
	return nil
}

// Decide applies an NPA decision. An approval without an amount approves the
// full claim; variance is claimed minus approved.
func (c *Claim) Decide(d ClaimDecision, actor string, now time.Time) error {
	switch d.Status {
	case ClaimApproved, ClaimRejected, ClaimUnderReview:
	default:
		return apperrors.InvalidTransition(claimEntity, string(c.Status), string(d.Status))
	}
	if d.Status == ClaimRejected && strings.TrimSpace(d.Reason) == "" {
		return ErrReasonRequired
	}
	if err := c.transition(d.Status, actor, d.Reason, now); err != nil {
		return err
	}
	switch d.Status {
	case ClaimApproved:
		c.ApprovedAmount = c.ClaimAmount
		if d.ApprovedAmount != nil {
			c.ApprovedAmount = d.ApprovedAmount.Round(MoneyPlaces)
		}
		c.Variance = c.ClaimAmount.Sub(c.ApprovedAmount)
		c.RejectionReason = ""
	case ClaimRejected:
		c.RejectionReason = d.Reason
	}
	return nil
}

// MarkPaid moves an approved claim to paid.
func (c *Claim) MarkPaid(actor, reference string, now time.Time) error {
	return c.transition(ClaimPaid, actor, reference, now)
}

// Reopen returns a rejected or ready claim to draft with edited details and a
// recomputed amount. Validation and submission links are cleared.
func (c *Claim) Reopen(d ClaimDetails, route *Route, fallbackTariff decimal.Decimal, actor string, now time.Time) error {
	if route == nil {
		return ErrNilRoute
	}
	if c.Status != ClaimRejected && c.Status != ClaimReady {
		return apperrors.InvalidTransition(claimEntity, string(c.Status), string(ClaimDraft))
	}
	note := "reopened"
	if c.RejectionReason != "" {
		note = "reopened after rejection: " + c.RejectionReason
	}
	if d.DeliveryID == "" {
		d.DeliveryID = c.DeliveryID
	}
	if d.WindowID == "" {
		d.WindowID = c.WindowID
	}
	if d.StationID == "" {
		d.StationID = c.StationID
	}
	if err := c.transition(ClaimDraft, actor, note, now); err != nil {
		return err
	}
	c.apply(d, route, fallbackTariff)
	c.Validation = nil
	c.SubmissionID = ""
	c.ApprovedAmount = decimal.Zero
	c.Variance = decimal.Zero
	c.RejectionReason = ""
	return nil
}

func (c *Claim) transition(to ClaimStatus, actor, note string, now time.Time) error {
	if !CanTransition(c.Status, to) {
		return apperrors.InvalidTransition(claimEntity, string(c.Status), string(to))
	}
	now = now.UTC()
	from := c.Status
	c.Status = to
	c.UpdatedAt = now
	c.History = append(c.History, HistoryEntry{From: string(from), To: string(to), At: now, Actor: actor, Note: note})
	c.events = append(c.events, ClaimStatusChanged{
		ClaimID:    c.ID,
		StationID:  c.StationID,
		From:       from,
		To:         to,
		Actor:      actor,
		Note:       note,
		OccurredAt: now,
	})
	return nil
}

// PullEvents returns and clears the pending domain events.
func (c *Claim) PullEvents() []any {
	events := c.events
	c.events = nil
	return events
}

// Clone returns a deep copy without pending events.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	out := *c
	out.GPSTrace = append([]GPSPoint(nil), c.GPSTrace...)
	out.Evidence = append([]string(nil), c.Evidence...)
	out.History = append([]HistoryEntry(nil), c.History...)
	if c.Validation != nil {
		v := *c.Validation
		v.Errors = append([]apperrors.Violation(nil), c.Validation.Errors...)
		v.Warnings = append([]apperrors.Violation(nil), c.Validation.Warnings...)
		out.Validation = &v
	}
	out.events = nil
	return &out
}
