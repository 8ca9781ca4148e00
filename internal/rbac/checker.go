package rbac

import (
	"context"
	"sort"
	"strings"
)

// Checker answers permission questions for a fixed role table. Grants are
// exact ("grade:view-all"), prefix wildcards ("grade:*") or "*".
type Checker struct {
	grants   map[string][]string
	exact    map[string]map[string]struct{}
	prefixes map[string][]string
}

func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	c := &Checker{
		grants:   make(map[string][]string, len(rp)),
		exact:    make(map[string]map[string]struct{}, len(rp)),
		prefixes: make(map[string][]string, len(rp)),
	}
	for role, perms := range rp {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			if strings.HasSuffix(p, "*") {
				c.prefixes[role] = append(c.prefixes[role], strings.TrimSuffix(p, "*"))
				continue
			}
			set[p] = struct{}{}
		}
		c.exact[role] = set
		c.grants[role] = append([]string(nil), perms...)
		sort.Strings(c.grants[role])
	}
	return c
}

func (c *Checker) Has(role, perm string) bool {
	if _, ok := c.exact[role][perm]; ok {
		return true
	}
	for _, p := range c.prefixes[role] {
		if strings.HasPrefix(perm, p) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

// Permissions lists the grants of role, sorted. Unknown roles get nil.
func (c *Checker) Permissions(role string) []string {
	g, ok := c.grants[role]
	if !ok {
		return nil
	}
	return append([]string(nil), g...)
}

// Permissions lists the grants of role under the default policy.
func Permissions(role string) []string { return defaultChecker.Permissions(role) }

// ---- principal in context ----

type ctxKey int

const (
	ctxKeyRole ctxKey = iota
	ctxKeySubject
)

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRole).(string)
	return s
}

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySubject, sub)
}

func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySubject).(string)
	return s
}
