package auth

import (
	"errors"
	"net/http"
	"strings"
)

var ErrForbidden = errors.New("forbidden")

const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"

	// RoleEditor is accepted from identity providers that already issue
	// editor/viewer/admin and ranks with RoleOperator.
	RoleEditor = "editor"
)

// ResubmitPath is the only route that re-executes captured invocations.
const ResubmitPath = "/resubmit"

var roleLevels = map[string]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleEditor:   2,
	RoleAdmin:    3,
}

// normalizeRole lowercases role and strips a "rebit:" or "rebit/" namespace.
func normalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, prefix := range []string{"rebit:", "rebit/"} {
		if strings.HasPrefix(role, prefix) {
			return strings.TrimPrefix(role, prefix)
		}
	}
	return role
}

func HasAtLeast(roles []string, required string) bool {
	requiredLevel := roleLevels[normalizeRole(required)]
	if requiredLevel == 0 {
		return false
	}
	maxLevel := 0
	for _, role := range roles {
		if level := roleLevels[normalizeRole(role)]; level > maxLevel {
			maxLevel = level
		}
	}
	return maxLevel >= requiredLevel
}

// RequiredRoleForRequest maps a request to the lowest role allowed to make it.
// Both GET and POST on the resubmit route trigger a replay, so the method
// does not lower the requirement there.
func RequiredRoleForRequest(r *http.Request) string {
	if r.URL.Path == ResubmitPath || strings.HasPrefix(r.URL.Path, ResubmitPath+"/") {
		return RoleOperator
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer
	default:
		return RoleOperator
	}
}

// ResubmitPolicy authorizes requests against RequiredRoleForRequest.
func ResubmitPolicy() AuthorizeFunc {
	return func(r *http.Request, identity Identity) error {
		if HasAtLeast(identity.Roles, RequiredRoleForRequest(r)) {
			return nil
		}
		return ErrForbidden
	}
}
