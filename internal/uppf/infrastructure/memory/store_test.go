package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
	uppf "omc-erp/internal/uppf/domain"
)

var now = time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

func newClaim(t *testing.T, delivery string) *uppf.Claim {
	t.Helper()
	c, err := uppf.NewClaim("", uppf.ClaimDetails{
		DeliveryID:  delivery,
		WindowID:    "2025-W05",
		KmActual:    decimal.NewFromInt(150),
		LitresMoved: decimal.NewFromInt(1000),
	}, &uppf.Route{ID: "R1", KmThreshold: decimal.NewFromInt(100)}, uppf.DefaultPolicy().DefaultTariff, now)
	require.NoError(t, err)
	return c
}

func TestClaimRepositoryVersions(t *testing.T) {
	store := NewStore()
	repo := store.Claims()
	ctx := context.Background()
	c := newClaim(t, "D1")

	require.NoError(t, repo.Create(ctx, c))
	assert.Equal(t, 1, c.Version)
	assert.True(t, errors.Is(repo.Create(ctx, c), apperrors.ErrConflict))

	require.NoError(t, repo.Update(ctx, c, 1))
	assert.Equal(t, 2, c.Version)
	assert.True(t, errors.Is(repo.Update(ctx, c, 1), apperrors.ErrConflict))

	c.Evidence = append(c.Evidence, "mutated")
	stored, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Evidence)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCommitRejectsStaleClaimWithoutPartialWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	a, b := newClaim(t, "D1"), newClaim(t, "D2")
	require.NoError(t, store.Claims().Create(ctx, a))
	require.NoError(t, store.Claims().Create(ctx, b))

	sub, err := uppf.NewSubmission("", "2025-W05", []*uppf.Claim{a, b}, nil, now)
	require.NoError(t, err)
	a.SubmissionID, b.SubmissionID = sub.ID, sub.ID

	err = store.Submissions().Commit(ctx, sub, 0, []uppf.ClaimWrite{{Claim: a, ExpectedVersion: 1}, {Claim: b, ExpectedVersion: 7}})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	_, err = store.Submissions().Get(ctx, sub.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	stored, err := store.Claims().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.SubmissionID)
	assert.Equal(t, 1, stored.Version)

	require.NoError(t, store.Submissions().Commit(ctx, sub, 0, []uppf.ClaimWrite{{Claim: a, ExpectedVersion: 1}, {Claim: b, ExpectedVersion: 1}}))
	assert.Equal(t, 1, sub.Version)
	assert.True(t, errors.Is(store.Submissions().Commit(ctx, sub, 0, nil), apperrors.ErrConflict))
	assert.True(t, errors.Is(store.Submissions().Commit(ctx, sub, 5, nil), apperrors.ErrConflict))
	require.NoError(t, store.Submissions().Commit(ctx, sub, 1, nil))
	assert.Equal(t, 2, sub.Version)
}

func TestRouteRegistry(t *testing.T) {
	reg := NewRouteRegistry(uppf.Route{ID: "R1", DepotID: "TEMA"})
	route, err := reg.Route(context.Background(), "R1")
	require.NoError(t, err)
	route.DepotID = "changed"
	again, _ := reg.Route(context.Background(), "R1")
	assert.Equal(t, "TEMA", again.DepotID)

	missing, err := reg.Route(context.Background(), "R2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
