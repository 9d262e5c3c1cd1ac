// Package dashboard aggregates ticket statistics, recent tickets, the
// caller's open workload and the merged activity stream. Pure read path; all
// queries run through the shared visibility scope.
package dashboard

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helpdesk/internal/access"
	"helpdesk/internal/models"
)

type Service struct {
	db *gorm.DB
	lg *zap.SugaredLogger
}

func NewService(db *gorm.DB, lg *zap.SugaredLogger) *Service {
	return &Service{db: db, lg: lg}
}

type Stats struct {
	Total      int64 `json:"total"`
	Open       int64 `json:"open"`
	InProgress int64 `json:"in_progress"`
	Closed     int64 `json:"closed"`
	Waiting    int64 `json:"waiting"`
	Unassigned int64 `json:"unassigned"`
}

type TicketCard struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	CompanyName string `json:"company_name"`
	Reporter    string `json:"reporter,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type Dashboard struct {
	Stats         Stats           `json:"stats"`
	RecentTickets []TicketCard    `json:"recent_tickets"`
	MyTickets     []TicketCard    `json:"my_tickets"`
	Activity      []ActivityEntry `json:"recent_activity"`
	Year          int             `json:"year,omitempty"`
	Month         int             `json:"month,omitempty"`
}

const cardLimit = 5

// Build assembles the dashboard. year/month (zero = unset) narrow stats and
// recent tickets only; the caller's workload and the activity stream are
// always real-time.
func (s *Service) Build(ctx context.Context, user *models.User, year, month int) (*Dashboard, error) {
	allowed := access.ResolveAllowedCompanyIDs(user)
	scope := access.TicketScope(user, allowed)
	window := timeWindow(year, month, time.Now())

	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Ticket{}).Scopes(scope)
		return window.apply(q)
	}

	var stats Stats
	counts := []struct {
		dst  *int64
		cond func(*gorm.DB) *gorm.DB
	}{
		{&stats.Total, func(q *gorm.DB) *gorm.DB { return q }},
		{&stats.Open, func(q *gorm.DB) *gorm.DB { return q.Where("status = ?", models.StatusOpen) }},
		{&stats.InProgress, func(q *gorm.DB) *gorm.DB { return q.Where("status = ?", models.StatusInProgress) }},
		{&stats.Closed, func(q *gorm.DB) *gorm.DB { return q.Where("status = ?", models.StatusClosed) }},
		{&stats.Waiting, func(q *gorm.DB) *gorm.DB { return q.Where("status = ?", models.StatusWaiting) }},
		{&stats.Unassigned, func(q *gorm.DB) *gorm.DB { return q.Where("assignee_id IS NULL") }},
	}
	for _, c := range counts {
		if err := c.cond(base()).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}

	var recent []models.Ticket
	err := base().
		Preload("Reporter").Preload("Assignee").Preload("Company").
		Order("created_at desc").Limit(cardLimit).
		Find(&recent).Error
	if err != nil {
		return nil, err
	}

	// The caller's workload ignores the time filters: it is the live set of
	// open work assigned to them.
	var mine []models.Ticket
	err = s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("assignee_id = ? AND status <> ?", user.ID, models.StatusClosed).
		Preload("Company").
		Order("updated_at desc").Limit(cardLimit).
		Find(&mine).Error
	if err != nil {
		return nil, err
	}

	activity, err := s.activity(ctx, user, allowed)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Stats:         stats,
		RecentTickets: make([]TicketCard, 0, len(recent)),
		MyTickets:     make([]TicketCard, 0, len(mine)),
		Activity:      activity,
		Year:          year,
		Month:         month,
	}
	for i := range recent {
		t := &recent[i]
		d.RecentTickets = append(d.RecentTickets, TicketCard{
			ID:          t.ID,
			Key:         t.TicketKey,
			Title:       t.Title,
			Status:      t.Status,
			Priority:    t.Priority,
			CompanyName: companyName(t.Company),
			Reporter:    userName(t.Reporter, "Unknown"),
			Assignee:    userName(t.Assignee, "Unassigned"),
			CreatedAt:   humanize.Time(t.CreatedAt),
		})
	}
	for i := range mine {
		t := &mine[i]
		d.MyTickets = append(d.MyTickets, TicketCard{
			ID:          t.ID,
			Key:         t.TicketKey,
			Title:       t.Title,
			Status:      t.Status,
			Priority:    t.Priority,
			CompanyName: companyName(t.Company),
			UpdatedAt:   humanize.Time(t.UpdatedAt),
		})
	}
	return d, nil
}

// window is a half-open [from, to) range over ticket creation time.
type window struct {
	from, to time.Time
	set      bool
}

func (w window) apply(q *gorm.DB) *gorm.DB {
	if !w.set {
		return q
	}
	return q.Where("created_at >= ? AND created_at < ?", w.from, w.to)
}

// timeWindow resolves the optional year/month filters to a creation-time
// range. A month with no year means that month of the current year. An
// out-of-range month matches no creation time at all, so the window is the
// empty range rather than no filter.
func timeWindow(year, month int, now time.Time) window {
	if month < 0 || month > 12 {
		return window{set: true}
	}
	switch {
	case year > 0 && month > 0:
		from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return window{from: from, to: from.AddDate(0, 1, 0), set: true}
	case year > 0:
		from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		return window{from: from, to: from.AddDate(1, 0, 0), set: true}
	case month > 0:
		from := time.Date(now.Year(), time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return window{from: from, to: from.AddDate(0, 1, 0), set: true}
	default:
		return window{}
	}
}

func companyName(c *models.Company) string {
	if c == nil {
		return "N/A"
	}
	return c.Name
}

func userName(u *models.User, fallback string) string {
	if u == nil {
		return fallback
	}
	return u.Name
}
