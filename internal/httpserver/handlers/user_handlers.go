package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helpdesk/internal/auth"
	"helpdesk/internal/models"
	"helpdesk/internal/util"
)

func ListUsers(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := db.Model(&models.User{}).Preload("Roles").Preload("Company")
		if search := r.URL.Query().Get("search"); search != "" {
			like := "%" + search + "%"
			q = q.Where("name LIKE ? OR email LIKE ?", like, like)
		}
		var total int64
		_ = q.Count(&total).Error
		page, perPage := util.ParsePagination(r.URL.Query())
		var users []models.User
		if err := q.Order("name").Offset((page - 1) * perPage).Limit(perPage).Find(&users).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]any{"users": users, "total": total, "page": page, "per_page": perPage})
	}
}

func GetUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u models.User
		err := db.Preload("Roles").Preload("Company").First(&u, "id = ?", chi.URLParam(r, "id")).Error
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		respondJSON(w, u)
	}
}

type userReq struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	Department string  `json:"department"`
	Position   string  `json:"position"`
	CompanyID  *uint   `json:"company_id"`
	RoleIDs    []uint  `json:"role_ids"`
	IsActive   *bool   `json:"is_active"`
}

func CreateUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Name == "" || req.Email == "" {
			http.Error(w, "name and email required", http.StatusBadRequest)
			return
		}
		if len(req.Password) < 8 {
			http.Error(w, "password must be at least 8 characters", http.StatusBadRequest)
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			http.Error(w, "hash error", http.StatusInternalServerError)
			return
		}
		u := models.User{
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: hash,
			Department:   req.Department,
			Position:     req.Position,
			CompanyID:    req.CompanyID,
			IsActive:     true,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if req.IsActive != nil {
			u.IsActive = *req.IsActive
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&u).Error; err != nil {
				return err
			}
			return syncUserRoles(tx, &u, req.RoleIDs)
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				http.Error(w, "email already in use", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondStatus(w, http.StatusCreated, u)
	}
}

func UpdateUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var u models.User
		if err := db.First(&u, "id = ?", chi.URLParam(r, "id")).Error; err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if req.Name != "" {
			u.Name = strings.TrimSpace(req.Name)
		}
		if req.Email != "" {
			u.Email = strings.ToLower(strings.TrimSpace(req.Email))
		}
		u.Department = req.Department
		u.Position = req.Position
		u.CompanyID = req.CompanyID
		if req.IsActive != nil {
			u.IsActive = *req.IsActive
		}
		u.UpdatedAt = time.Now()
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(&u).Error; err != nil {
				return err
			}
			if req.RoleIDs != nil {
				return syncUserRoles(tx, &u, req.RoleIDs)
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				http.Error(w, "email already in use", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]any{"updated": true})
	}
}

func DeleteUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == auth.Subject(r.Context()) {
			http.Error(w, "cannot delete your own account", http.StatusConflict)
			return
		}
		var u models.User
		if err := db.First(&u, "id = ?", id).Error; err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&u).Association("Roles").Clear(); err != nil {
				return err
			}
			if err := tx.Where("user_id = ?", u.ID).Delete(&models.Session{}).Error; err != nil {
				return err
			}
			return tx.Delete(&u).Error
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]any{"deleted": true})
	}
}

// ResetUserPassword sets a new password for the user and revokes their open
// sessions so stale tokens die with the old credential.
func ResetUserPassword(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Password) < 8 {
			http.Error(w, "password must be at least 8 characters", http.StatusBadRequest)
			return
		}
		var u models.User
		if err := db.First(&u, "id = ?", chi.URLParam(r, "id")).Error; err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			http.Error(w, "hash error", http.StatusInternalServerError)
			return
		}
		now := time.Now()
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&u).Updates(map[string]any{"password_hash": hash, "updated_at": now}).Error; err != nil {
				return err
			}
			return tx.Model(&models.Session{}).
				Where("user_id = ? AND revoked_at IS NULL", u.ID).
				Update("revoked_at", &now).Error
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondMessage(w, "password reset")
	}
}

func syncUserRoles(tx *gorm.DB, u *models.User, roleIDs []uint) error {
	var roles []models.Role
	if len(roleIDs) > 0 {
		if err := tx.Where("id IN ?", roleIDs).Find(&roles).Error; err != nil {
			return err
		}
	}
	return tx.Model(u).Association("Roles").Replace(roles)
}
