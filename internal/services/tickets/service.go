// Package tickets implements the ticket workflows: creation with key
// allocation, updates with history recording, comments and attachments.
package tickets

import (
	"context"
	"io"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"helpdesk/internal/access"
	apperrors "helpdesk/internal/errors"
	"helpdesk/internal/models"
	"helpdesk/internal/notify"
	"helpdesk/internal/storage"
	"helpdesk/internal/ticketkey"
)

const attachmentDir = "ticket-attachments"

type Service struct {
	db       *gorm.DB
	lg       *zap.SugaredLogger
	keys     ticketkey.Allocator
	files    storage.Store
	dispatch notify.Dispatcher
}

func NewService(db *gorm.DB, lg *zap.SugaredLogger, keys ticketkey.Allocator, files storage.Store, dispatch notify.Dispatcher) *Service {
	return &Service{db: db, lg: lg, keys: keys, files: files, dispatch: dispatch}
}

// Upload is one incoming attachment stream.
type Upload struct {
	FileName string
	Reader   io.Reader
}

// Get loads one visible ticket with its relations. A ticket outside the
// caller's scope reads as not found rather than forbidden.
func (s *Service) Get(ctx context.Context, user *models.User, ticketID string) (*models.Ticket, error) {
	allowed := access.ResolveAllowedCompanyIDs(user)
	var t models.Ticket
	err := s.db.WithContext(ctx).
		Scopes(access.TicketScope(user, allowed)).
		Preload("Reporter").Preload("Assignee").Preload("Company").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at desc") }).
		Preload("Comments.User").Preload("Comments.Attachments").
		Preload("Attachments").
		First(&t, "tickets.id = ?", ticketID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NewNotFoundError("ticket not found")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
