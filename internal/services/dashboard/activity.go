package dashboard

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"helpdesk/internal/access"
	"helpdesk/internal/models"
)

const activityLimit = 10

type ActivityEntry struct {
	Type        string    `json:"type"` // "history" or "comment"
	ID          string    `json:"id"`
	User        string    `json:"user"`
	UserPhoto   *string   `json:"user_photo,omitempty"`
	Action      string    `json:"action"`
	CommentText string    `json:"comment_text,omitempty"`
	TicketID    string    `json:"ticket_id"`
	TicketKey   string    `json:"ticket_key"`
	TicketTitle string    `json:"ticket_title,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Time        string    `json:"time"`
}

// activity merges the ten newest visible history entries with the ten newest
// visible comments, re-sorts by event time and keeps the top ten. Both feeds
// restrict on the parent ticket through the shared visibility subquery.
func (s *Service) activity(ctx context.Context, user *models.User, allowed []uint) ([]ActivityEntry, error) {
	visible := access.VisibleTicketIDs(s.db.WithContext(ctx), user, allowed)

	var histories []models.TicketHistory
	err := s.db.WithContext(ctx).
		Where("ticket_id IN (?)", visible).
		Preload("User").
		Order("changed_at desc").Limit(activityLimit).
		Find(&histories).Error
	if err != nil {
		return nil, err
	}

	visible = access.VisibleTicketIDs(s.db.WithContext(ctx), user, allowed)
	var comments []models.TicketComment
	err = s.db.WithContext(ctx).
		Where("ticket_id IN (?)", visible).
		Preload("User").
		Order("created_at desc").Limit(activityLimit).
		Find(&comments).Error
	if err != nil {
		return nil, err
	}

	ticketsByID, err := s.ticketHeads(ctx, histories, comments)
	if err != nil {
		return nil, err
	}

	entries := make([]ActivityEntry, 0, len(histories)+len(comments))
	for i := range histories {
		h := &histories[i]
		e := ActivityEntry{
			Type:      "history",
			ID:        historyID(h),
			User:      "System",
			Action:    formatAction(h),
			TicketID:  h.TicketID,
			TicketKey: "Unknown",
			Timestamp: h.ChangedAt,
			Time:      humanize.Time(h.ChangedAt),
		}
		if h.User != nil {
			e.User = h.User.Name
			e.UserPhoto = h.User.ProfilePhoto
		}
		if t, ok := ticketsByID[h.TicketID]; ok {
			e.TicketKey = t.TicketKey
			e.TicketTitle = t.Title
		}
		entries = append(entries, e)
	}
	for i := range comments {
		c := &comments[i]
		e := ActivityEntry{
			Type:        "comment",
			ID:          c.ID,
			User:        "Unknown User",
			Action:      "commented on",
			CommentText: c.CommentText,
			TicketID:    c.TicketID,
			TicketKey:   "Unknown",
			Timestamp:   c.CreatedAt,
			Time:        humanize.Time(c.CreatedAt),
		}
		if c.User != nil {
			e.User = c.User.Name
			e.UserPhoto = c.User.ProfilePhoto
		}
		if t, ok := ticketsByID[c.TicketID]; ok {
			e.TicketKey = t.TicketKey
			e.TicketTitle = t.Title
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if len(entries) > activityLimit {
		entries = entries[:activityLimit]
	}
	return entries, nil
}

// ticketHeads loads key/title for every ticket referenced by the merged feed,
// soft-deleted ones included so old activity keeps its labels.
func (s *Service) ticketHeads(ctx context.Context, histories []models.TicketHistory, comments []models.TicketComment) (map[string]*models.Ticket, error) {
	idSet := make(map[string]struct{})
	for i := range histories {
		idSet[histories[i].TicketID] = struct{}{}
	}
	for i := range comments {
		idSet[comments[i].TicketID] = struct{}{}
	}
	out := make(map[string]*models.Ticket, len(idSet))
	if len(idSet) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	var rows []models.Ticket
	if err := s.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

func formatAction(h *models.TicketHistory) string {
	switch h.ColumnChanged {
	case "status":
		return "changed status to " + ucfirst(h.NewValue)
	case "priority":
		return "changed priority to " + ucfirst(h.NewValue)
	case "assignee_id":
		return "reassigned ticket"
	default:
		return "updated " + strings.ReplaceAll(h.ColumnChanged, "_", " ")
	}
}

func ucfirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func historyID(h *models.TicketHistory) string {
	return strconv.FormatInt(h.ID, 10)
}
