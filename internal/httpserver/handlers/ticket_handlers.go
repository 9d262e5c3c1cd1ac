package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helpdesk/internal/auth"
	"helpdesk/internal/models"
	"helpdesk/internal/services/tickets"
	"helpdesk/internal/storage"
	"helpdesk/internal/util"
)

// maxUploadBytes caps a whole multipart request body (10 MB in memory, the
// rest spills to temp files via ParseMultipartForm).
const maxUploadBytes = 32 << 20

// loadCurrentUser resolves the authenticated user with the role/company
// associations the visibility scope is computed from.
func loadCurrentUser(r *http.Request, db *gorm.DB) (*models.User, error) {
	var u models.User
	err := db.WithContext(r.Context()).
		Preload("Roles.Companies").Preload("Company").
		First(&u, "id = ?", auth.Subject(r.Context())).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func ListTickets(db *gorm.DB, lg *zap.SugaredLogger, svc *tickets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		page, perPage := util.ParsePagination(r.URL.Query())
		rows, total, err := svc.List(r.Context(), u, tickets.ListFilter{
			Status:  r.URL.Query().Get("status"),
			Search:  r.URL.Query().Get("search"),
			Page:    page,
			PerPage: perPage,
		})
		if err != nil {
			lg.Errorw("ticket list failed", "error", err)
			respondError(w, err)
			return
		}
		respondJSON(w, map[string]any{"tickets": rows, "total": total, "page": page, "per_page": perPage})
	}
}

func GetTicket(db *gorm.DB, lg *zap.SugaredLogger, svc *tickets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		t, err := svc.Get(r.Context(), u, chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, t)
	}
}

type ticketCreateReq struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Severity    string  `json:"severity"`
	CompanyID   uint    `json:"company_id"`
	AssigneeID  *string `json:"assignee_id"`
}

// CreateTicket accepts either a JSON body or a multipart form with an
// `attachments[]` file field.
func CreateTicket(db *gorm.DB, lg *zap.SugaredLogger, svc *tickets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req ticketCreateReq
		var uploads []tickets.Upload
		var closers []multipart.File

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			req = ticketCreateReq{
				Title:       r.FormValue("title"),
				Description: r.FormValue("description"),
				Type:        r.FormValue("type"),
				Status:      r.FormValue("status"),
				Priority:    r.FormValue("priority"),
				Severity:    r.FormValue("severity"),
			}
			if v := r.FormValue("company_id"); v != "" {
				id, err := strconv.Atoi(v)
				if err != nil {
					http.Error(w, "invalid company_id", http.StatusBadRequest)
					return
				}
				req.CompanyID = uint(id)
			}
			if v := r.FormValue("assignee_id"); v != "" {
				req.AssigneeID = &v
			}
			uploads, closers, err = formUploads(r, "attachments[]")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer closeAll(closers)
		} else {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		t, err := svc.Create(r.Context(), u.ID, tickets.CreateInput{
			Title:       req.Title,
			Description: req.Description,
			Type:        req.Type,
			Status:      req.Status,
			Priority:    req.Priority,
			Severity:    req.Severity,
			CompanyID:   req.CompanyID,
			AssigneeID:  req.AssigneeID,
			Attachments: uploads,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondStatus(w, http.StatusCreated, t)
	}
}

func UpdateTicket(db *gorm.DB, lg *zap.SugaredLogger, svc *tickets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		id := chi.URLParam(r, "id")
		// A ticket outside the caller's scope reads as not found.
		if _, err := svc.Get(r.Context(), u, id); err != nil {
			respondError(w, err)
			return
		}
		var req struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
			Type        *string `json:"type"`
			Status      *string `json:"status"`
			Priority    *string `json:"priority"`
			Severity    *string `json:"severity"`
			AssigneeID  *string `json:"assignee_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		t, err := svc.Update(r.Context(), u.ID, id, tickets.UpdateInput{
			Title:       req.Title,
			Description: req.Description,
			Type:        req.Type,
			Status:      req.Status,
			Priority:    req.Priority,
			Severity:    req.Severity,
			AssigneeID:  req.AssigneeID,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, t)
	}
}

func DeleteTicket(db *gorm.DB, lg *zap.SugaredLogger, svc *tickets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		id := chi.URLParam(r, "id")
		if _, err := svc.Get(r.Context(), u, id); err != nil {
			respondError(w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, "ticket deleted")
	}
}

func StoreTicketComment(db *gorm.DB, lg *zap.SugaredLogger, svc *tickets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		id := chi.URLParam(r, "id")
		if _, err := svc.Get(r.Context(), u, id); err != nil {
			respondError(w, err)
			return
		}

		var text string
		var uploads []tickets.Upload
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			text = r.FormValue("comment_text")
			var closers []multipart.File
			uploads, closers, err = formUploads(r, "attachments[]")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer closeAll(closers)
		} else {
			var req struct {
				CommentText string `json:"comment_text"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			text = req.CommentText
		}

		c, err := svc.AddComment(r.Context(), u.ID, id, text, uploads)
		if err != nil {
			respondError(w, err)
			return
		}
		respondStatus(w, http.StatusCreated, c)
	}
}

func StoreTicketAttachment(db *gorm.DB, lg *zap.SugaredLogger, svc *tickets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		id := chi.URLParam(r, "id")
		if _, err := svc.Get(r.Context(), u, id); err != nil {
			respondError(w, err)
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		uploads, closers, err := formUploads(r, "attachments[]")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer closeAll(closers)

		saved, err := svc.AddAttachments(r.Context(), id, uploads)
		if err != nil {
			respondError(w, err)
			return
		}
		respondStatus(w, http.StatusCreated, map[string]any{"attachments": saved})
	}
}

// DownloadAttachment streams a stored file. Visibility is checked through the
// parent ticket before anything is read from disk.
func DownloadAttachment(db *gorm.DB, lg *zap.SugaredLogger, svc *tickets.Service, files storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var att models.TicketAttachment
		if err := db.WithContext(r.Context()).First(&att, "id = ?", chi.URLParam(r, "attachmentId")).Error; err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if _, err := svc.Get(r.Context(), u, att.TicketID); err != nil {
			respondError(w, err)
			return
		}
		f, err := files.Open(att.FileStoragePath)
		if err != nil {
			respondError(w, err)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Disposition", `attachment; filename="`+att.FileName+`"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(att.FileSizeBytes, 10))
		if _, err := io.Copy(w, f); err != nil {
			lg.Warnw("attachment download interrupted", "attachment_id", att.ID, "error", err)
		}
	}
}

// ListStaff feeds assignee pickers with users holding the tickets.edit grant.
func ListStaff(db *gorm.DB, lg *zap.SugaredLogger, svc *tickets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := svc.Staff(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, map[string]any{"users": users})
	}
}

func formUploads(r *http.Request, field string) ([]tickets.Upload, []multipart.File, error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		// Accept the unsuffixed field name too.
		headers = r.MultipartForm.File[strings.TrimSuffix(field, "[]")]
	}
	var uploads []tickets.Upload
	var closers []multipart.File
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		closers = append(closers, f)
		uploads = append(uploads, tickets.Upload{FileName: fh.Filename, Reader: f})
	}
	return uploads, closers, nil
}

func closeAll(files []multipart.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
