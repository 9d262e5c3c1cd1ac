package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helpdesk/internal/models"
)

func ListRoles(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var roles []models.Role
		err := db.Preload("Permissions").Preload("Companies").Order("name").Find(&roles).Error
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]any{"roles": roles})
	}
}

func ListPermissions(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var perms []models.Permission
		if err := db.Order("name").Find(&perms).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]any{"permissions": perms})
	}
}

type roleReq struct {
	Name                 string `json:"name"`
	IsAssignable         *bool  `json:"is_assignable"`
	NotifyOnTicketCreate *bool  `json:"notify_on_ticket_create"`
	NotifyOnTicketAssign *bool  `json:"notify_on_ticket_assign"`
	PermissionIDs        []uint `json:"permission_ids"`
	CompanyIDs           []uint `json:"company_ids"`
}

func CreateRole(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roleReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		role := models.Role{Name: req.Name}
		if req.IsAssignable != nil {
			role.IsAssignable = *req.IsAssignable
		}
		if req.NotifyOnTicketCreate != nil {
			role.NotifyOnTicketCreate = *req.NotifyOnTicketCreate
		}
		if req.NotifyOnTicketAssign != nil {
			role.NotifyOnTicketAssign = *req.NotifyOnTicketAssign
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&role).Error; err != nil {
				return err
			}
			return syncRoleAssociations(tx, &role, req.PermissionIDs, req.CompanyIDs)
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				http.Error(w, "role name already exists", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondStatus(w, http.StatusCreated, role)
	}
}

func UpdateRole(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		var req roleReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var role models.Role
		if err := db.First(&role, "id = ?", id).Error; err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if name := strings.TrimSpace(req.Name); name != "" {
			role.Name = name
		}
		if req.IsAssignable != nil {
			role.IsAssignable = *req.IsAssignable
		}
		if req.NotifyOnTicketCreate != nil {
			role.NotifyOnTicketCreate = *req.NotifyOnTicketCreate
		}
		if req.NotifyOnTicketAssign != nil {
			role.NotifyOnTicketAssign = *req.NotifyOnTicketAssign
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(&role).Error; err != nil {
				return err
			}
			return syncRoleAssociations(tx, &role, req.PermissionIDs, req.CompanyIDs)
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				http.Error(w, "role name already exists", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]any{"updated": true})
	}
}

// DeleteRole refuses while any user still holds the role; reassign first.
func DeleteRole(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		var role models.Role
		if err := db.First(&role, "id = ?", id).Error; err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var holders int64
		if err := db.Table("user_roles").Where("role_id = ?", role.ID).Count(&holders).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if holders > 0 {
			http.Error(w, "role is still assigned to users", http.StatusConflict)
			return
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&role).Association("Permissions").Clear(); err != nil {
				return err
			}
			if err := tx.Model(&role).Association("Companies").Clear(); err != nil {
				return err
			}
			return tx.Delete(&role).Error
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]any{"deleted": true})
	}
}

// syncRoleAssociations replaces the role's permission and company grants. Nil
// slices leave the existing association untouched.
func syncRoleAssociations(tx *gorm.DB, role *models.Role, permissionIDs, companyIDs []uint) error {
	if permissionIDs != nil {
		var perms []models.Permission
		if len(permissionIDs) > 0 {
			if err := tx.Where("id IN ?", permissionIDs).Find(&perms).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(role).Association("Permissions").Replace(perms); err != nil {
			return err
		}
	}
	if companyIDs != nil {
		var companies []models.Company
		if len(companyIDs) > 0 {
			if err := tx.Where("id IN ?", companyIDs).Find(&companies).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(role).Association("Companies").Replace(companies); err != nil {
			return err
		}
	}
	return nil
}
