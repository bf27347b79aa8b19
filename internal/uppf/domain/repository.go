package uppf

import "context"

// RouteReader resolves delivery routes.
type RouteReader interface {
	Route(ctx context.Context, routeID string) (*Route, error)
}

// ClaimRepository persists claims. Create stores version 1; Update checks
// expectedVersion and stores expectedVersion+1.
type ClaimRepository interface {
	Get(ctx context.Context, id string) (*Claim, error)
	ListByWindow(ctx context.Context, windowID string, status ClaimStatus) ([]*Claim, error)
	Create(ctx context.Context, c *Claim) error
	Update(ctx context.Context, c *Claim, expectedVersion int) error
}

// ClaimWrite is a claim update guarded by the version it was read at.
type ClaimWrite struct {
	Claim           *Claim
	ExpectedVersion int
}

// SubmissionRepository persists submissions. Commit writes the submission
// (insert when expectedVersion is 0) and every claim write atomically; any
// stale version aborts the whole commit with a conflict.
type SubmissionRepository interface {
	Get(ctx context.Context, id string) (*Submission, error)
	ListByWindow(ctx context.Context, windowID string) ([]*Submission, error)
	Commit(ctx context.Context, s *Submission, expectedVersion int, claims []ClaimWrite) error
}
