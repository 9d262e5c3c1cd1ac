// Package access computes which tickets a user may see: the allowed-company
// set derived from role/company associations, and the query predicate built
// from it. Every read path that exposes ticket-derived data goes through the
// same predicate.
package access

import (
	"helpdesk/internal/models"
)

// ReporterRole is the baseline non-privileged role. Users holding it only
// ever see tickets they reported themselves.
const ReporterRole = "User"

// ResolveAllowedCompanyIDs returns the set of company IDs the user may
// access: the companies attached to every role the user holds, plus the
// direct company assignment, deduplicated. The caller must have preloaded
// Roles.Companies. The result is recomputed on every request; associations
// change between requests and are never cached on the user.
func ResolveAllowedCompanyIDs(u *models.User) []uint {
	seen := make(map[uint]struct{})
	ids := make([]uint, 0, len(u.Roles)+1)
	add := func(id uint) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, role := range u.Roles {
		for _, c := range role.Companies {
			add(c.ID)
		}
	}
	if u.CompanyID != nil {
		add(*u.CompanyID)
	}
	return ids
}

// IsReporterOnly reports whether the user holds the baseline reporter role.
// Requires Roles to be preloaded.
func IsReporterOnly(u *models.User) bool {
	for _, r := range u.Roles {
		if r.Name == ReporterRole {
			return true
		}
	}
	return false
}
