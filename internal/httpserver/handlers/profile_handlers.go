package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"helpdesk/internal/storage"
)

const profilePhotoDir = "profile-photos"

func GetProfile(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		respondJSON(w, u)
	}
}

// UpdateProfile accepts a multipart form with optional name/email/department/
// position fields and an optional profile_photo file. A replaced photo's old
// file is removed once the row is saved.
func UpdateProfile(db *gorm.DB, lg *zap.SugaredLogger, files storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if v := strings.TrimSpace(r.FormValue("name")); v != "" {
			u.Name = v
		}
		if v := strings.ToLower(strings.TrimSpace(r.FormValue("email"))); v != "" {
			u.Email = v
		}
		if v, ok := formValue(r, "department"); ok {
			u.Department = v
		}
		if v, ok := formValue(r, "position"); ok {
			u.Position = v
		}

		var oldPhoto *string
		if f, fh, err := r.FormFile("profile_photo"); err == nil {
			defer f.Close()
			path, _, err := files.Save(profilePhotoDir, fh.Filename, f)
			if err != nil {
				respondError(w, err)
				return
			}
			oldPhoto = u.ProfilePhoto
			u.ProfilePhoto = &path
		}

		u.UpdatedAt = time.Now()
		if err := db.Save(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				http.Error(w, "email already in use", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if oldPhoto != nil {
			if err := files.Delete(*oldPhoto); err != nil {
				lg.Warnw("failed to remove replaced profile photo", "path", *oldPhoto, "error", err)
			}
		}
		respondJSON(w, u)
	}
}

// GetProfilePhoto streams the caller's stored photo.
func GetProfilePhoto(db *gorm.DB, lg *zap.SugaredLogger, files storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil || u.ProfilePhoto == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		f, err := files.Open(*u.ProfilePhoto)
		if err != nil {
			respondError(w, err)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		if _, err := io.Copy(w, f); err != nil {
			lg.Warnw("profile photo download interrupted", "user_id", u.ID, "error", err)
		}
	}
}

func formValue(r *http.Request, key string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	vs, ok := r.MultipartForm.Value[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
