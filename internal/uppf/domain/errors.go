package uppf

import "errors"

var (
	// ErrNoClaimsReady is returned when a window has no ready_to_submit claims.
	ErrNoClaimsReady = errors.New("uppf: no claims ready for submission")
	// ErrEmptyDeliveryID is returned when a claim has no delivery.
	ErrEmptyDeliveryID = errors.New("uppf: empty delivery id")
	// ErrEmptyWindowID is returned when a claim or submission has no window.
	ErrEmptyWindowID = errors.New("uppf: empty window id")
	// ErrNilRoute is returned when a claim is built without a route.
	ErrNilRoute = errors.New("uppf: nil route")
	// ErrNilClaim is returned when saving a nil claim.
	ErrNilClaim = errors.New("uppf: nil claim")
	// ErrNilSubmission is returned when saving a nil submission.
	ErrNilSubmission = errors.New("uppf: nil submission")
	// ErrInvalidVolumes is returned when reconciling against a non-positive depot volume.
	ErrInvalidVolumes = errors.New("uppf: depot litres must be positive")
	// ErrReasonRequired is returned when rejecting a claim without a reason.
	ErrReasonRequired = errors.New("uppf: rejection reason required")
	// ErrSubmissionIncomplete is returned when marking a submission submitted without passing validation or documents.
	ErrSubmissionIncomplete = errors.New("uppf: submission has failed validation or missing documents")
	// ErrNPAReferenceRequired is returned when acknowledging without an NPA reference.
	ErrNPAReferenceRequired = errors.New("uppf: npa reference required")
)
