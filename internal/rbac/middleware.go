package rbac

import (
	"net/http"
)

var defaultChecker = NewChecker(nil)

func forbid(w http.ResponseWriter) { http.Error(w, "forbidden", http.StatusForbidden) }

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !defaultChecker.Has(role, perm) {
				forbid(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny enforces that the role has at least one of the permissions.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !defaultChecker.Any(role, perms...) {
				forbid(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnerOr lets through roles holding allPerm, and roles holding
// ownPerm when the subject in context is the resource owner.
func RequireOwnerOr(ownPerm, allPerm string, owner func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := RoleFromContext(ctx)
			if role == "" {
				forbid(w)
				return
			}
			if defaultChecker.Has(role, allPerm) {
				next.ServeHTTP(w, r)
				return
			}
			sub := SubjectFromContext(ctx)
			if sub != "" && sub == owner(r) && defaultChecker.Has(role, ownPerm) {
				next.ServeHTTP(w, r)
				return
			}
			forbid(w)
		})
	}
}
