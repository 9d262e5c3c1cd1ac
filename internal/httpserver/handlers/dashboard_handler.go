package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"helpdesk/internal/services/dashboard"
)

func GetDashboard(db *gorm.DB, lg *zap.SugaredLogger, svc *dashboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := loadCurrentUser(r, db)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		year, _ := strconv.Atoi(r.URL.Query().Get("year"))
		month, _ := strconv.Atoi(r.URL.Query().Get("month"))
		d, err := svc.Build(r.Context(), u, year, month)
		if err != nil {
			lg.Errorw("dashboard build failed", "error", err)
			respondError(w, err)
			return
		}
		respondJSON(w, d)
	}
}
