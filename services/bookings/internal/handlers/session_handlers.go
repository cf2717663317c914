package handlers

import (
	"net/http"

	mw "github.com/diagnosis/speakerhub/pkg/middleware"
	"github.com/diagnosis/speakerhub/services/bookings/internal/domain"
)

// BookSession handles POST /api/users/book-session
func (h *Handlers) BookSession(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r.Context())

	var req domain.BookSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.bookingService.BookSession(r.Context(), claims.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Session booked successfully",
		"event":   result.Event,
		"session": result.Session,
	})
}

// ListUserSessions handles GET /api/users/sessions
func (h *Handlers) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r.Context())
	limit, offset := parsePagination(r)

	sessions, err := h.bookingService.ListUserSessions(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// ListSpeakerSessions handles GET /api/speakers/sessions
func (h *Handlers) ListSpeakerSessions(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r.Context())
	limit, offset := parsePagination(r)

	sessions, err := h.bookingService.ListSpeakerSessions(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}
