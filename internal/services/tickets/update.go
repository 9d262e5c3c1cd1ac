package tickets

import (
	"context"
	"time"

	"gorm.io/gorm"

	apperrors "helpdesk/internal/errors"
	"helpdesk/internal/models"
)

type UpdateInput struct {
	Title       *string
	Description *string
	Type        *string
	Status      *string
	Priority    *string
	Severity    *string
	// AssigneeID patches the assignee; an empty string unassigns.
	AssigneeID *string
}

// Update patches the ticket and appends one history row per changed column,
// all in one transaction. Assignment changes notify the new assignee after
// commit.
func (s *Service) Update(ctx context.Context, actorID, ticketID string, in UpdateInput) (*models.Ticket, error) {
	var ticket models.Ticket
	var newAssignee *string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ticket, "id = ?", ticketID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NewNotFoundError("ticket not found")
			}
			return err
		}

		now := time.Now()
		var histories []models.TicketHistory
		record := func(column, oldV, newV string) {
			histories = append(histories, models.TicketHistory{
				TicketID:      ticket.ID,
				UserID:        &actorID,
				ColumnChanged: column,
				OldValue:      oldV,
				NewValue:      newV,
				ChangedAt:     now,
			})
		}

		if in.Title != nil && *in.Title != ticket.Title {
			record("title", ticket.Title, *in.Title)
			ticket.Title = *in.Title
		}
		if in.Description != nil && *in.Description != ticket.Description {
			record("description", ticket.Description, *in.Description)
			ticket.Description = *in.Description
		}
		if in.Type != nil && *in.Type != ticket.Type {
			record("type", ticket.Type, *in.Type)
			ticket.Type = *in.Type
		}
		if in.Status != nil && *in.Status != ticket.Status {
			switch *in.Status {
			case models.StatusOpen, models.StatusInProgress, models.StatusWaiting, models.StatusClosed:
			default:
				return apperrors.NewValidationError("invalid status", *in.Status)
			}
			record("status", ticket.Status, *in.Status)
			ticket.Status = *in.Status
		}
		if in.Priority != nil && *in.Priority != ticket.Priority {
			record("priority", ticket.Priority, *in.Priority)
			ticket.Priority = *in.Priority
		}
		if in.Severity != nil && *in.Severity != ticket.Severity {
			record("severity", ticket.Severity, *in.Severity)
			ticket.Severity = *in.Severity
		}
		if in.AssigneeID != nil {
			oldV := ""
			if ticket.AssigneeID != nil {
				oldV = *ticket.AssigneeID
			}
			if *in.AssigneeID != oldV {
				if *in.AssigneeID != "" {
					if err := assigneeExists(tx, *in.AssigneeID); err != nil {
						return err
					}
				}
				record("assignee_id", oldV, *in.AssigneeID)
				if *in.AssigneeID == "" {
					ticket.AssigneeID = nil
				} else {
					v := *in.AssigneeID
					ticket.AssigneeID = &v
					newAssignee = &v
				}
			}
		}

		if len(histories) == 0 {
			return nil
		}
		if err := tx.Save(&ticket).Error; err != nil {
			return err
		}
		return tx.Create(&histories).Error
	})
	if err != nil {
		return nil, err
	}

	if newAssignee != nil {
		s.notifyAssigned(ctx, &ticket, *newAssignee)
	}
	return &ticket, nil
}

// assigneeExists rejects references to unknown users before the row write, so
// a bad assignee surfaces as a validation failure instead of a constraint
// error.
func assigneeExists(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperrors.NewValidationError("assignee not found", id)
	}
	return nil
}

// Delete removes the ticket's stored files, then soft-deletes the ticket.
// The key number stays burned: the allocator scans soft-deleted rows too.
func (s *Service) Delete(ctx context.Context, ticketID string) error {
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).Preload("Attachments").First(&ticket, "id = ?", ticketID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NewNotFoundError("ticket not found")
		}
		return err
	}
	for _, att := range ticket.Attachments {
		if err := s.files.Delete(att.FileStoragePath); err != nil {
			s.lg.Warnw("failed to delete attachment file", "path", att.FileStoragePath, "error", err)
		}
	}
	return s.db.WithContext(ctx).Delete(&ticket).Error
}
