package tickets

import (
	"context"
	"strings"

	"helpdesk/internal/access"
	"helpdesk/internal/models"
)

type ListFilter struct {
	// Status is "all", a concrete status, "my_tickets" or "unassigned".
	Status  string
	Search  string
	Page    int
	PerPage int
}

// List returns the page of tickets visible to the user plus the total count
// under the same predicate.
func (s *Service) List(ctx context.Context, user *models.User, f ListFilter) ([]models.Ticket, int64, error) {
	allowed := access.ResolveAllowedCompanyIDs(user)
	q := s.db.WithContext(ctx).Model(&models.Ticket{}).Scopes(access.TicketScope(user, allowed))

	switch f.Status {
	case "", "all":
	case "my_tickets":
		// Reporters see their own submissions; staff see their assignments.
		if access.IsReporterOnly(user) {
			q = q.Where("reporter_id = ?", user.ID)
		} else {
			q = q.Where("assignee_id = ?", user.ID)
		}
	case "unassigned":
		q = q.Where("assignee_id IS NULL")
	default:
		q = q.Where("status = ?", f.Status)
	}

	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + search + "%"
		q = q.Where("title LIKE ? OR description LIKE ? OR ticket_key LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 10
	}

	var rows []models.Ticket
	err := q.Preload("Reporter").Preload("Assignee").Preload("Company").
		Order("created_at desc").
		Offset((f.Page - 1) * f.PerPage).
		Limit(f.PerPage).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Staff lists users allowed to work tickets, for assignee pickers.
func (s *Service) Staff(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Joins("JOIN role_permissions ON role_permissions.role_id = user_roles.role_id").
		Joins("JOIN permissions ON permissions.id = role_permissions.permission_id").
		Where("permissions.name = ?", "tickets.edit").
		Distinct("users.*").
		Find(&users).Error
	return users, err
}
