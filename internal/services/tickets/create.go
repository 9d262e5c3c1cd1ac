package tickets

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"helpdesk/internal/access"
	apperrors "helpdesk/internal/errors"
	"helpdesk/internal/models"
	"helpdesk/internal/notify"
)

// createAttempts bounds retries when key allocation loses a lock-wait race.
const createAttempts = 3

type CreateInput struct {
	Title       string
	Description string
	Type        string
	Status      string
	Priority    string
	Severity    string
	CompanyID   uint
	AssigneeID  *string
	Attachments []Upload
}

func (in *CreateInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return apperrors.NewValidationError("title is required")
	}
	if in.CompanyID == 0 {
		return apperrors.NewValidationError("company_id is required")
	}
	if in.Type == "" {
		in.Type = "task"
	}
	if in.Status == "" {
		in.Status = models.StatusOpen
	}
	if in.Priority == "" {
		in.Priority = "medium"
	}
	if in.Severity == "" {
		in.Severity = "minor"
	}
	switch in.Status {
	case models.StatusOpen, models.StatusInProgress, models.StatusWaiting, models.StatusClosed:
	default:
		return apperrors.NewValidationError("invalid status", in.Status)
	}
	return nil
}

// Create allocates the next ticket key and inserts the ticket and its
// attachment records in one transaction. A rolled-back attempt abandons its
// number; the sequence keeps gaps but never duplicates. Conflicts from the
// allocator retry the whole transaction before surfacing.
func (s *Service) Create(ctx context.Context, reporterID string, in CreateInput) (*models.Ticket, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var ticket *models.Ticket
	var err error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		ticket, err = s.createOnce(ctx, reporterID, in)
		if err == nil {
			break
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return nil, err
		}
		s.lg.Warnw("ticket creation conflict, retrying", "attempt", attempt, "error", err)
	}
	if err != nil {
		return nil, err
	}

	s.notifyCreated(ctx, ticket)
	return ticket, nil
}

func (s *Service) createOnce(ctx context.Context, reporterID string, in CreateInput) (*models.Ticket, error) {
	var ticket models.Ticket
	var storedPaths []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Validate the assignee before allocating so a bad reference does
		// not burn a key number.
		if in.AssigneeID != nil && *in.AssigneeID != "" {
			if err := assigneeExists(tx, *in.AssigneeID); err != nil {
				return err
			}
		}
		key, err := s.keys.Allocate(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}
		ticket = models.Ticket{
			TicketKey:   key,
			Title:       in.Title,
			Description: in.Description,
			Type:        in.Type,
			Status:      in.Status,
			Priority:    in.Priority,
			Severity:    in.Severity,
			ReporterID:  reporterID,
			AssigneeID:  in.AssigneeID,
			CompanyID:   in.CompanyID,
		}
		if err := tx.Create(&ticket).Error; err != nil {
			return err
		}
		paths, err := s.storeAttachments(tx, ticket.ID, nil, in.Attachments)
		storedPaths = paths
		return err
	})
	if err != nil {
		// The DB rolled back; stored files must not outlive their records.
		s.removeFiles(storedPaths)
		if appErr := apperrors.GetAppError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return &ticket, nil
}

// storeAttachments writes the uploads to the file store and inserts their
// records inside the caller's transaction. It returns every path it managed
// to store so a failing transaction can clean up after itself.
func (s *Service) storeAttachments(tx *gorm.DB, ticketID string, commentID *string, uploads []Upload) ([]string, error) {
	var paths []string
	for _, up := range uploads {
		path, size, err := s.files.Save(attachmentDir, up.FileName, up.Reader)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
		att := models.TicketAttachment{
			TicketID:        ticketID,
			CommentID:       commentID,
			FileName:        up.FileName,
			FileStoragePath: path,
			FileSizeBytes:   size,
		}
		if err := tx.Create(&att).Error; err != nil {
			return paths, err
		}
	}
	return paths, nil
}

func (s *Service) removeFiles(paths []string) {
	for _, p := range paths {
		if err := s.files.Delete(p); err != nil {
			s.lg.Warnw("orphaned attachment file left behind", "path", p, "error", err)
		}
	}
}

// notifyCreated fans out to users holding a notify_on_ticket_create role that
// can see the ticket's company, and pings the assignee when their role asks
// for it. Failures never reach the caller.
func (s *Service) notifyCreated(ctx context.Context, t *models.Ticket) {
	data := notify.Data{"ticket_key": t.TicketKey, "ticket_title": t.Title}
	if reporter, err := s.loadUser(ctx, t.ReporterID); err == nil {
		data["actor"] = reporter.Name
	}

	var watchers []models.User
	err := s.db.WithContext(ctx).Preload("Roles.Companies").
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.notify_on_ticket_create = ?", true).
		Distinct("users.*").
		Find(&watchers).Error
	if err != nil {
		s.lg.Errorw("failed to resolve ticket-created watchers", "error", err)
	} else {
		for i := range watchers {
			w := &watchers[i]
			if w.ID == t.ReporterID || !companyInScope(w, t.CompanyID) {
				continue
			}
			s.dispatch.Send(notify.TemplateTicketCreated, notify.Recipient{Name: w.Name, Email: w.Email}, data)
		}
	}

	if t.AssigneeID != nil {
		s.notifyAssigned(ctx, t, *t.AssigneeID)
	}
}

func (s *Service) notifyAssigned(ctx context.Context, t *models.Ticket, assigneeID string) {
	assignee, err := s.loadUser(ctx, assigneeID)
	if err != nil {
		s.lg.Errorw("failed to load assignee for notification", "assignee_id", assigneeID, "error", err)
		return
	}
	for _, r := range assignee.Roles {
		if r.NotifyOnTicketAssign {
			s.dispatch.Send(notify.TemplateTicketAssigned,
				notify.Recipient{Name: assignee.Name, Email: assignee.Email},
				notify.Data{"ticket_key": t.TicketKey, "ticket_title": t.Title})
			return
		}
	}
}

func (s *Service) loadUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Preload("Roles.Companies").First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// companyInScope checks the watcher's allowed-company set, the same set the
// visibility filter is built from.
func companyInScope(u *models.User, companyID uint) bool {
	for _, id := range access.ResolveAllowedCompanyIDs(u) {
		if id == companyID {
			return true
		}
	}
	return false
}
