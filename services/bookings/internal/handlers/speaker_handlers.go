package handlers

import (
	"net/http"
	"strconv"

	mw "github.com/diagnosis/speakerhub/pkg/middleware"
	"github.com/diagnosis/speakerhub/pkg/response"
	"github.com/diagnosis/speakerhub/services/bookings/internal/domain"
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) SetupProfile(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r.Context())

	var req domain.SetupProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.speakerService.SetupProfile(r.Context(), claims.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Speaker profile created successfully.",
		"profile": profile,
	})
}

func (h *Handlers) ListSpeakers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	speakers, err := h.speakerService.ListSpeakers(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"speakers": speakers})
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid speaker ID", response.CodeInvalidInput)
		return
	}
	date := r.URL.Query().Get("date")

	free, err := h.speakerService.Availability(r.Context(), id, date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"speakerId": id,
		"date":      date,
		"available": free,
	})
}
