package memory

import (
	"context"
	"sort"
	"sync"

	"omc-erp/internal/apperrors"
	uppf "omc-erp/internal/uppf/domain"
)

// Store keeps claims and submissions behind one lock so submission commits
// are atomic across both.
type Store struct {
	mu          sync.Mutex
	claims      map[string]*uppf.Claim
	submissions map[string]*uppf.Submission
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		claims:      make(map[string]*uppf.Claim),
		submissions: make(map[string]*uppf.Submission),
	}
}

// Claims returns the claim repository view.
func (s *Store) Claims() *ClaimRepository { return &ClaimRepository{store: s} }

// Submissions returns the submission repository view.
func (s *Store) Submissions() *SubmissionRepository { return &SubmissionRepository{store: s} }

// ClaimRepository is an in-memory claim repository.
type ClaimRepository struct {
	store *Store
}

// Get returns a copy of the claim.
func (r *ClaimRepository) Get(_ context.Context, id string) (*uppf.Claim, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.claims[id]
	if !ok {
		return nil, apperrors.NotFound("uppf claim", id)
	}
	return c.Clone(), nil
}

// ListByWindow returns the window's claims in a status ordered by claim number.
// An empty status lists every claim.
func (r *ClaimRepository) ListByWindow(_ context.Context, windowID string, status uppf.ClaimStatus) ([]*uppf.Claim, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*uppf.Claim
	for _, c := range r.store.claims {
		if c.WindowID == windowID && (status == "" || c.Status == status) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimNumber < out[j].ClaimNumber })
	return out, nil
}

// Create stores a new claim at version 1.
func (r *ClaimRepository) Create(_ context.Context, c *uppf.Claim) error {
	if c == nil {
		return uppf.ErrNilClaim
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.claims {
		if existing.ID == c.ID || existing.ClaimNumber == c.ClaimNumber {
			return apperrors.Conflict("uppf claim", c.ClaimNumber)
		}
	}
	c.Version = 1
	r.store.claims[c.ID] = c.Clone()
	return nil
}

// Update replaces the claim when the stored version matches.
func (r *ClaimRepository) Update(_ context.Context, c *uppf.Claim, expectedVersion int) error {
	if c == nil {
		return uppf.ErrNilClaim
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.checkClaim(c, expectedVersion); err != nil {
		return err
	}
	r.store.putClaim(c, expectedVersion)
	return nil
}

func (s *Store) checkClaim(c *uppf.Claim, expectedVersion int) error {
	current, ok := s.claims[c.ID]
	if !ok {
		return apperrors.NotFound("uppf claim", c.ID)
	}
	if current.Version != expectedVersion {
		return apperrors.Conflict("uppf claim", c.ClaimNumber)
	}
	return nil
}

func (s *Store) putClaim(c *uppf.Claim, expectedVersion int) {
	c.Version = expectedVersion + 1
	s.claims[c.ID] = c.Clone()
}

// SubmissionRepository is an in-memory submission repository.
type SubmissionRepository struct {
	store *Store
}

// Get returns a copy of the submission.
func (r *SubmissionRepository) Get(_ context.Context, id string) (*uppf.Submission, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.submissions[id]
	if !ok {
		return nil, apperrors.NotFound("npa submission", id)
	}
	return s.Clone(), nil
}

// ListByWindow returns the window's submissions oldest first.
func (r *SubmissionRepository) ListByWindow(_ context.Context, windowID string) ([]*uppf.Submission, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*uppf.Submission
	for _, s := range r.store.submissions {
		if s.WindowID == windowID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Reference < out[j].Reference
	})
	return out, nil
}

// Commit writes the submission and claims, or nothing when any version is stale.
func (r *SubmissionRepository) Commit(_ context.Context, sub *uppf.Submission, expectedVersion int, claims []uppf.ClaimWrite) error {
	if sub == nil {
		return uppf.ErrNilSubmission
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, exists := r.store.submissions[sub.ID]
	switch {
	case expectedVersion == 0 && exists:
		return apperrors.Conflict("npa submission", sub.Reference)
	case expectedVersion == 0:
		for _, s := range r.store.submissions {
			if s.Reference == sub.Reference {
				return apperrors.Conflict("npa submission", sub.Reference)
			}
		}
	case !exists:
		return apperrors.NotFound("npa submission", sub.ID)
	case current.Version != expectedVersion:
		return apperrors.Conflict("npa submission", sub.Reference)
	}
	for _, w := range claims {
		if w.Claim == nil {
			return uppf.ErrNilClaim
		}
		if err := r.store.checkClaim(w.Claim, w.ExpectedVersion); err != nil {
			return err
		}
	}

	for _, w := range claims {
		r.store.putClaim(w.Claim, w.ExpectedVersion)
	}
	sub.Version = expectedVersion + 1
	r.store.submissions[sub.ID] = sub.Clone()
	return nil
}

// RouteRegistry is an in-memory route reader.
type RouteRegistry struct {
	mu     sync.RWMutex
	routes map[string]*uppf.Route
}

// NewRouteRegistry constructs a registry holding routes.
func NewRouteRegistry(routes ...uppf.Route) *RouteRegistry {
	r := &RouteRegistry{routes: make(map[string]*uppf.Route, len(routes))}
	for _, route := range routes {
		r.Put(route)
	}
	return r
}

// Put adds or replaces a route.
func (r *RouteRegistry) Put(route uppf.Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[route.ID] = &route
}

// Route returns a copy of the route, nil when unknown.
func (r *RouteRegistry) Route(_ context.Context, id string) (*uppf.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[id]
	if !ok {
		return nil, nil
	}
	out := *route
	return &out, nil
}
