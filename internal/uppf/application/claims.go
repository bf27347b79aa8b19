package application

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/audit"
	"omc-erp/internal/auth"
	"omc-erp/internal/observability/metrics"
	uppf "omc-erp/internal/uppf/domain"
)

// ClaimInput describes one delivery to claim for.
type ClaimInput struct {
	DeliveryID  string          `validate:"required"`
	RouteID     string          `validate:"required"`
	StationID   string          `validate:"omitempty"`
	WindowID    string          `validate:"required"`
	KmActual    decimal.Decimal `validate:"-"`
	LitresMoved decimal.Decimal `validate:"-"`
	GPSTrace    []uppf.GPSPoint `validate:"-"`
	Evidence    []string        `validate:"dive,required"`
}

// ClaimEdit replaces the editable details of a reopened claim. An empty
// RouteID keeps the current route.
type ClaimEdit struct {
	RouteID     string
	KmActual    decimal.Decimal
	LitresMoved decimal.Decimal
	GPSTrace    []uppf.GPSPoint
	Evidence    []string
}

// ClaimService builds, validates and tracks UPPF claims.
type ClaimService struct {
	claims   uppf.ClaimRepository
	routes   uppf.RouteReader
	windows  WindowReader
	validate *validator.Validate
	settings
}

// NewClaimService constructs the service.
func NewClaimService(claims uppf.ClaimRepository, routes uppf.RouteReader, windows WindowReader, opts ...Option) (*ClaimService, error) {
	if claims == nil {
		return nil, errors.New("claim service: nil claim repository")
	}
	if routes == nil {
		return nil, errors.New("claim service: nil route reader")
	}
	if windows == nil {
		return nil, errors.New("claim service: nil window reader")
	}
	return &ClaimService{
		claims:   claims,
		routes:   routes,
		windows:  windows,
		validate: validator.New(),
		settings: newSettings(opts),
	}, nil
}

// CreateClaim builds a draft claim with its amount computed from the route.
func (s *ClaimService) CreateClaim(ctx context.Context, in ClaimInput) (*uppf.Claim, []any, error) {
	if err := auth.Authorize(ctx, auth.OpManageClaims); err != nil {
		return nil, nil, err
	}
	if err := apperrors.ValidateStruct(s.validate, in); err != nil {
		return nil, nil, err
	}
	window, err := s.windows.Get(ctx, in.WindowID)
	if err != nil {
		return nil, nil, err
	}
	if window == nil {
		return nil, nil, apperrors.NotFound("pricing window", in.WindowID)
	}
	route, err := s.route(ctx, in.RouteID)
	if err != nil {
		return nil, nil, err
	}

	claim, err := uppf.NewClaim(auth.TenantIDFromContext(ctx), uppf.ClaimDetails{
		DeliveryID:  in.DeliveryID,
		RouteID:     in.RouteID,
		StationID:   in.StationID,
		WindowID:    in.WindowID,
		KmActual:    in.KmActual,
		LitresMoved: in.LitresMoved,
		GPSTrace:    in.GPSTrace,
		Evidence:    in.Evidence,
	}, route, s.policy.DefaultTariff, s.clock.Now())
	if err != nil {
		return nil, nil, err
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		return nil, nil, err
	}
	s.logger.Info("uppf claim created",
		zap.String("claim_number", claim.ClaimNumber),
		zap.String("station_id", claim.StationID),
		zap.String("window_id", claim.WindowID),
		zap.String("claim_amount", claim.ClaimAmount.StringFixed(uppf.MoneyPlaces)))
	return claim, claim.PullEvents(), nil
}

func (s *ClaimService) route(ctx context.Context, id string) (*uppf.Route, error) {
	route, err := s.routes.Route(ctx, id)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, apperrors.NotFound("uppf route", id)
	}
	return route, nil
}

// ValidateClaim runs every input, GPS and plausibility check on a draft claim
// and persists the outcome. The returned claim is ready_to_submit only when
// no check failed.
func (s *ClaimService) ValidateClaim(ctx context.Context, id string) (*uppf.Claim, []any, error) {
	claim, events, err := s.validateClaim(ctx, id)
	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case !claim.ValidationPassed():
		result = metrics.ResultInvalid
	}
	metrics.IncClaimValidation(result)
	return claim, events, err
}

func (s *ClaimService) validateClaim(ctx context.Context, id string) (*uppf.Claim, []any, error) {
	if err := auth.Authorize(ctx, auth.OpManageClaims); err != nil {
		return nil, nil, err
	}
	claim, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	route, err := s.routes.Route(ctx, claim.RouteID)
	if err != nil {
		return nil, nil, err
	}
	expected := claim.Version
	from := claim.Status
	report := uppf.CheckClaim(claim, route, s.policy.GPS)
	if err := claim.ApplyValidation(report.Violations, report.GPSKm, s.clock.Now()); err != nil {
		return nil, nil, err
	}
	if err := s.claims.Update(ctx, claim, expected); err != nil {
		return nil, nil, err
	}
	s.record(ctx, claim, from, map[string]any{
		"errors":   len(claim.Validation.Errors),
		"warnings": len(claim.Validation.Warnings),
		"gps_km":   report.GPSKm,
	})
	s.logger.Info("uppf claim validated",
		zap.String("claim_number", claim.ClaimNumber),
		zap.Bool("passed", claim.ValidationPassed()),
		zap.Int("errors", len(claim.Validation.Errors)),
		zap.Int("warnings", len(claim.Validation.Warnings)))
	return claim, claim.PullEvents(), nil
}

// Reconcile records the three-way depot, station and transporter volume check.
func (s *ClaimService) Reconcile(ctx context.Context, id string, depotLitres, stationLitres, transporterLitres decimal.Decimal) (*uppf.Claim, []any, error) {
	if err := auth.Authorize(ctx, auth.OpManageClaims); err != nil {
		return nil, nil, err
	}
	rec, err := uppf.ReconcileVolumes(depotLitres, stationLitres, transporterLitres, s.policy.ReconciliationTolerance)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeValidationFailed, apperrors.ErrValidationFailed.Status, "reconcile volumes")
	}
	claim, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	expected := claim.Version
	if err := claim.Reconcile(rec, s.clock.Now()); err != nil {
		return nil, nil, err
	}
	if err := s.claims.Update(ctx, claim, expected); err != nil {
		return nil, nil, err
	}
	if rec.Status == uppf.ReconciliationVariance {
		s.logger.Warn("uppf volume variance detected",
			zap.String("claim_number", claim.ClaimNumber),
			zap.String("variance_pct", rec.VariancePct.String()))
	}
	return claim, claim.PullEvents(), nil
}

// ReopenClaim returns a rejected or ready claim to draft with edited details.
func (s *ClaimService) ReopenClaim(ctx context.Context, id string, expectedVersion int, edit ClaimEdit) (*uppf.Claim, []any, error) {
	return s.transition(ctx, id, expectedVersion, auth.OpManageClaims, func(c *uppf.Claim, actor string, now time.Time) error {
		routeID := edit.RouteID
		if routeID == "" {
			routeID = c.RouteID
		}
		route, err := s.route(ctx, routeID)
		if err != nil {
			return err
		}
		return c.Reopen(uppf.ClaimDetails{
			KmActual:    edit.KmActual,
			LitresMoved: edit.LitresMoved,
			GPSTrace:    edit.GPSTrace,
			Evidence:    edit.Evidence,
		}, route, s.policy.DefaultTariff, actor, now)
	})
}

// RecordNPADecision applies the NPA verdict to one submitted claim.
func (s *ClaimService) RecordNPADecision(ctx context.Context, id string, expectedVersion int, decision uppf.ClaimDecision) (*uppf.Claim, []any, error) {
	return s.transition(ctx, id, expectedVersion, auth.OpRecordNPADecision, func(c *uppf.Claim, actor string, now time.Time) error {
		return c.Decide(decision, actor, now)
	})
}

// MarkClaimPaid moves an approved claim to paid.
func (s *ClaimService) MarkClaimPaid(ctx context.Context, id string, expectedVersion int, paymentRef string) (*uppf.Claim, []any, error) {
	return s.transition(ctx, id, expectedVersion, auth.OpRecordNPADecision, func(c *uppf.Claim, actor string, now time.Time) error {
		return c.MarkPaid(actor, paymentRef, now)
	})
}

func (s *ClaimService) transition(
	ctx context.Context,
	id string,
	expectedVersion int,
	op string,
	apply func(c *uppf.Claim, actor string, now time.Time) error,
) (*uppf.Claim, []any, error) {
	if err := auth.Authorize(ctx, op); err != nil {
		return nil, nil, err
	}
	claim, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if claim.Version != expectedVersion {
		return nil, nil, apperrors.Conflict("uppf claim", claim.ClaimNumber)
	}
	from := claim.Status
	if err := apply(claim, actorOf(ctx), s.clock.Now()); err != nil {
		return nil, nil, err
	}
	if err := s.claims.Update(ctx, claim, expectedVersion); err != nil {
		return nil, nil, err
	}
	s.record(ctx, claim, from, map[string]any{
		"claim_number": claim.ClaimNumber,
		"claim_amount": claim.ClaimAmount.StringFixed(uppf.MoneyPlaces),
	})
	s.logger.Info("uppf claim transition",
		zap.String("claim_number", claim.ClaimNumber),
		zap.String("from", string(from)),
		zap.String("to", string(claim.Status)))
	return claim, claim.PullEvents(), nil
}

func (s *ClaimService) record(ctx context.Context, c *uppf.Claim, from uppf.ClaimStatus, metadata map[string]any) {
	if from == c.Status {
		return
	}
	if err := audit.Record(ctx, s.audit, audit.Transition{
		Action:       "claim." + string(c.Status),
		ResourceType: "uppf_claim",
		ResourceID:   c.ID,
		StationID:    c.StationID,
		From:         string(from),
		To:           string(c.Status),
		Metadata:     metadata,
	}); err != nil {
		s.logger.Warn("audit write failed", zap.String("claim_id", c.ID), zap.Error(err))
	}
}

func actorOf(ctx context.Context) string {
	if actor := auth.SubjectFromContext(ctx); actor != "" {
		return actor
	}
	return "system"
}
