package access

import (
	"gorm.io/gorm"

	"helpdesk/internal/models"
)

// TicketScope builds the visibility predicate for ticket queries. Two rules,
// always AND-ed:
//
//  1. reporter-only users are restricted to tickets they reported;
//  2. tickets must belong to a company in allowedCompanyIDs; an empty set
//     matches zero rows (fail closed), never all rows.
//
// Ticket listing, dashboard stats and both activity feeds must all filter
// through this one scope; diverging copies of this logic are a correctness
// bug.
func TicketScope(u *models.User, allowedCompanyIDs []uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if IsReporterOnly(u) {
			db = db.Where("reporter_id = ?", u.ID)
		}
		if len(allowedCompanyIDs) == 0 {
			return db.Where("1 = 0")
		}
		return db.Where("company_id IN ?", allowedCompanyIDs)
	}
}

// VisibleTicketIDs returns a subquery selecting the IDs of tickets visible to
// the user. History and comment feeds restrict on their parent ticket with
// it, so they share the exact predicate used for ticket rows.
func VisibleTicketIDs(db *gorm.DB, u *models.User, allowedCompanyIDs []uint) *gorm.DB {
	return db.Model(&models.Ticket{}).Select("id").Scopes(TicketScope(u, allowedCompanyIDs))
}
