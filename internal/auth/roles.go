package auth

import (
	"context"
	"fmt"

	"omc-erp/internal/apperrors"
)

// Role represents a user role.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleViewer, RoleOperator, RoleApprover, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleApprover:
		return 3
	case RoleAdmin:
		return 4
	default:
		return 0
	}
}

// Operations guarded by role.
const (
	OpCalculatePrices   = "pricing.calculate"
	OpManageWindows     = "pricing.windows"
	OpPublishRates      = "pricing.rates"
	OpCalculateSettle   = "dealers.calculate"
	OpApproveSettlement = "dealers.approve"
	OpPaySettlement     = "dealers.pay"
	OpManageLoans       = "dealers.loans"
	OpManageClaims      = "uppf.claims"
	OpSubmitClaims      = "uppf.submit"
	OpRecordNPADecision = "uppf.npa"
)

var operationRoles = map[string]Role{
	OpCalculatePrices:   RoleOperator,
	OpManageWindows:     RoleApprover,
	OpPublishRates:      RoleAdmin,
	OpCalculateSettle:   RoleOperator,
	OpApproveSettlement: RoleApprover,
	OpPaySettlement:     RoleApprover,
	OpManageLoans:       RoleApprover,
	OpManageClaims:      RoleOperator,
	OpSubmitClaims:      RoleApprover,
	OpRecordNPADecision: RoleApprover,
}

// RequiredRole resolves the minimum role for an operation. Unknown operations require admin.
func RequiredRole(op string) Role {
	if role, ok := operationRoles[op]; ok {
		return role
	}
	return RoleAdmin
}

// Authorize checks the identity in ctx against the operation.
// A context without identity is treated as a trusted system caller.
func Authorize(ctx context.Context, op string) error {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil
	}
	role := id.Role
	required := RequiredRole(op)
	if !RoleAtLeast(role, required) {
		return apperrors.New(apperrors.CodeForbidden, apperrors.ErrForbidden.Status,
			fmt.Sprintf("role %q cannot perform %s (requires %s)", role, op, required))
	}
	return nil
}
