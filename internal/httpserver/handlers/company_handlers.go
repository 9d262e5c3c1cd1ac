package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helpdesk/internal/models"
	"helpdesk/internal/util"
)

func ListCompanies(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := db.Model(&models.Company{})
		if search := r.URL.Query().Get("search"); search != "" {
			like := "%" + search + "%"
			q = q.Where("name LIKE ? OR code LIKE ?", like, like)
		}
		var total int64
		_ = q.Count(&total).Error
		page, perPage := util.ParsePagination(r.URL.Query())
		var companies []models.Company
		_ = q.Order("name").Offset((page - 1) * perPage).Limit(perPage).Find(&companies).Error
		respondJSON(w, map[string]any{"companies": companies, "total": total, "page": page, "per_page": perPage})
	}
}

type companyReq struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (req *companyReq) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if req.Name == "" {
		return "name required"
	}
	if req.Code == "" {
		return "code required"
	}
	if utf8.RuneCountInString(req.Code) > 50 {
		return "code must be <= 50 characters"
	}
	return ""
}

func CreateCompany(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req companyReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if msg := req.validate(); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		c := models.Company{
			Name:        req.Name,
			Code:        req.Code,
			Description: req.Description,
			IsActive:    true,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if req.IsActive != nil {
			c.IsActive = *req.IsActive
		}
		if err := db.Create(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				http.Error(w, "company code already exists", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondJSON(w, c)
	}
}

func UpdateCompany(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		var req companyReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if msg := req.validate(); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		var c models.Company
		if err := db.First(&c, "id = ?", id).Error; err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		c.Name = req.Name
		c.Code = req.Code
		c.Description = req.Description
		if req.IsActive != nil {
			c.IsActive = *req.IsActive
		}
		c.UpdatedAt = time.Now()
		if err := db.Save(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				http.Error(w, "company code already exists", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]any{"updated": true})
	}
}

func DeleteCompany(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		if err := db.Delete(&models.Company{}, "id = ?", id).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]any{"deleted": true})
	}
}
