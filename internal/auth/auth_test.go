package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, "omc-gh", RoleApprover, "akosua", time.Hour)
	require.NoError(t, err)

	ctx, err := ContextFromToken(context.Background(), token, secret)
	require.NoError(t, err)
	assert.Equal(t, "omc-gh", TenantIDFromContext(ctx))
	assert.Equal(t, RoleApprover, RoleFromContext(ctx))
	assert.Equal(t, "akosua", SubjectFromContext(ctx))
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("a"), "omc-gh", RoleViewer, "u", time.Hour)
	require.NoError(t, err)
	_, err = ParseJWT(token, []byte("b"))
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	secret := []byte("s")
	token, err := IssueToken(secret, "omc-gh", RoleViewer, "u", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(token, secret)
	assert.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	cases := []struct {
		role    Role
		op      string
		allowed bool
	}{
		{RoleViewer, OpCalculatePrices, false},
		{RoleOperator, OpCalculatePrices, true},
		{RoleOperator, OpApproveSettlement, false},
		{RoleApprover, OpApproveSettlement, true},
		{RoleApprover, OpPublishRates, false},
		{RoleAdmin, "unknown.op", true},
	}
	for _, tc := range cases {
		ctx := WithIdentity(context.Background(), "omc-gh", tc.role, "u")
		err := Authorize(ctx, tc.op)
		if tc.allowed {
			assert.NoError(t, err, "%s %s", tc.role, tc.op)
			continue
		}
		assert.True(t, errors.Is(err, apperrors.ErrForbidden), "%s %s", tc.role, tc.op)
	}
}

func TestAuthorizeWithoutIdentityIsSystem(t *testing.T) {
	assert.NoError(t, Authorize(context.Background(), OpSubmitClaims))
}

func TestIdentityWithoutRoleIsForbidden(t *testing.T) {
	ctx := WithIdentity(context.Background(), "omc-gh", "", "mensah")
	id, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, Identity{TenantID: "omc-gh", Subject: "mensah"}, id)
	assert.True(t, errors.Is(Authorize(ctx, OpCalculatePrices), apperrors.ErrForbidden))

	_, ok = IdentityFromContext(context.Background())
	assert.False(t, ok)
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	_, err := IssueToken([]byte("s"), "omc-gh", Role("superuser"), "mensah", time.Hour)
	assert.Error(t, err)
}
