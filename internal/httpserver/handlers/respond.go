package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "helpdesk/internal/errors"
)

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func respondStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// respondError maps an AppError to its HTTP status; anything else is a 500
// with a generic body.
func respondError(w http.ResponseWriter, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		respondStatus(w, appErr.Code, appErr)
		return
	}
	respondStatus(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func respondMessage(w http.ResponseWriter, message string) {
	respondJSON(w, map[string]string{"message": message})
}
