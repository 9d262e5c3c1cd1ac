package tickets

import (
	"context"
	"strings"

	"gorm.io/gorm"

	apperrors "helpdesk/internal/errors"
	"helpdesk/internal/models"
	"helpdesk/internal/notify"
)

const maxCommentLength = 1000

// AddComment inserts the comment and its attachments atomically, then
// notifies the ticket's reporter and assignee (excluding the author).
func (s *Service) AddComment(ctx context.Context, authorID, ticketID, text string, uploads []Upload) (*models.TicketComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment_text is required")
	}
	if len(text) > maxCommentLength {
		return nil, apperrors.NewValidationError("comment_text too long")
	}

	var ticket models.Ticket
	if err := s.db.WithContext(ctx).First(&ticket, "id = ?", ticketID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("ticket not found")
		}
		return nil, err
	}

	comment := models.TicketComment{TicketID: ticket.ID, UserID: authorID, CommentText: text}
	var storedPaths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		paths, err := s.storeAttachments(tx, ticket.ID, &comment.ID, uploads)
		storedPaths = paths
		return err
	})
	if err != nil {
		s.removeFiles(storedPaths)
		if appErr := apperrors.GetAppError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	s.notifyCommented(ctx, &ticket, &comment)
	return &comment, nil
}

func (s *Service) notifyCommented(ctx context.Context, t *models.Ticket, c *models.TicketComment) {
	author, err := s.loadUser(ctx, c.UserID)
	actorName := "Unknown User"
	if err == nil {
		actorName = author.Name
	}
	data := notify.Data{
		"ticket_key":   t.TicketKey,
		"ticket_title": t.Title,
		"actor":        actorName,
		"comment_text": c.CommentText,
	}

	seen := map[string]struct{}{c.UserID: {}}
	targets := []string{t.ReporterID}
	if t.AssigneeID != nil {
		targets = append(targets, *t.AssigneeID)
	}
	for _, id := range targets {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		u, err := s.loadUser(ctx, id)
		if err != nil {
			s.lg.Errorw("failed to load comment notification recipient", "user_id", id, "error", err)
			continue
		}
		s.dispatch.Send(notify.TemplateTicketCommented, notify.Recipient{Name: u.Name, Email: u.Email}, data)
	}
}

// AddAttachments stores files against the ticket itself (no comment).
func (s *Service) AddAttachments(ctx context.Context, ticketID string, uploads []Upload) ([]models.TicketAttachment, error) {
	if len(uploads) == 0 {
		return nil, apperrors.NewValidationError("attachments are required")
	}
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).First(&ticket, "id = ?", ticketID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("ticket not found")
		}
		return nil, err
	}

	var storedPaths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paths, err := s.storeAttachments(tx, ticket.ID, nil, uploads)
		storedPaths = paths
		return err
	})
	if err != nil {
		s.removeFiles(storedPaths)
		if appErr := apperrors.GetAppError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	var saved []models.TicketAttachment
	if err := s.db.WithContext(ctx).Where("ticket_id = ? AND file_storage_path IN ?", ticket.ID, storedPaths).Find(&saved).Error; err != nil {
		return nil, err
	}
	return saved, nil
}
