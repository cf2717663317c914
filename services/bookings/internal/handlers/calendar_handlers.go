package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/pkg/response"
)

const stateCookie = "calendar_oauth_state"

// ConnectCalendar redirects the operator to the provider's consent screen.
func (h *Handlers) ConnectCalendar(w http.ResponseWriter, r *http.Request) {
	if h.calendar == nil {
		writeError(w, http.StatusNotFound, "Calendar integration is disabled", response.CodeNotFound)
		return
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		writeError(w, http.StatusInternalServerError, "Server error.", response.CodeInternalError)
		return
	}
	state := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	http.Redirect(w, r, h.calendar.AuthCodeURL(state), http.StatusFound)
}

// CalendarRedirect completes the OAuth flow and stores the granted token.
func (h *Handlers) CalendarRedirect(w http.ResponseWriter, r *http.Request) {
	if h.calendar == nil {
		writeError(w, http.StatusNotFound, "Calendar integration is disabled", response.CodeNotFound)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeError(w, http.StatusBadRequest, "Invalid OAuth state", response.CodeInvalidInput)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code", response.CodeInvalidInput)
		return
	}

	ctx, cancel := requestTimeout(r.Context(), h.config.Calendar.Timeout)
	defer cancel()
	if err := h.calendar.Exchange(ctx, code); err != nil {
		logger.ErrorContext(r.Context(), "Calendar OAuth exchange failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to authenticate with Google.", response.CodeUpstreamFailure)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/google", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Successfully connected to Google Calendar API.",
	})
}
