package engine

import (
	"fmt"

	"kitloop-backend/internal/metadata"
)

// Can reports whether the user may perform action on resource. Rules are
// evaluated in order and the first match decides:
//
//  1. no user: deny
//  2. admin: allow, ahead of the verification gate
//  3. explicitly unverified: deny create and update
//  4. manager: allow
//  5. operator: deny delete, override and anything on financials
//  6. any other role: deny
func Can(user *metadata.UserContext, action metadata.Action, resource metadata.Resource) bool {
	if user == nil {
		return false
	}

	if user.IsAdmin() {
		return true
	}

	if user.Unverified() && (action == metadata.ActionCreate || action == metadata.ActionUpdate) {
		return false
	}

	switch user.Role {
	case metadata.RoleManager:
		return true
	case metadata.RoleOperator:
		return operatorAllowed(action, resource)
	default:
		return false
	}
}

func operatorAllowed(action metadata.Action, resource metadata.Resource) bool {
	if action == metadata.ActionDelete {
		return false
	}
	if resource == metadata.ResourceFinancials {
		return false
	}
	if action == metadata.ActionOverride {
		return false
	}
	return true
}

// CheckPermission verifies that the user is allowed to perform the given action
// on the given resource. Returns nil if allowed, UNAUTHORIZED for a missing
// user, or FORBIDDEN otherwise.
func CheckPermission(user *metadata.UserContext, action metadata.Action, resource metadata.Resource) error {
	if user == nil {
		return UnauthorizedError("Authentication required")
	}
	if !Can(user, action, resource) {
		return ForbiddenError(fmt.Sprintf("Permission denied for %s on %s", action, resource))
	}
	return nil
}

// PermissionMatrix evaluates Can over every (resource, action) pair.
func PermissionMatrix(user *metadata.UserContext) map[metadata.Resource]map[metadata.Action]bool {
	matrix := make(map[metadata.Resource]map[metadata.Action]bool, len(metadata.AllResources()))
	for _, res := range metadata.AllResources() {
		row := make(map[metadata.Action]bool, len(metadata.AllActions()))
		for _, act := range metadata.AllActions() {
			row[act] = Can(user, act, res)
		}
		matrix[res] = row
	}
	return matrix
}
