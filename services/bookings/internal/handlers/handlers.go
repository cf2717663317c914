package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/logger"
	mw "github.com/diagnosis/speakerhub/pkg/middleware"
	"github.com/diagnosis/speakerhub/pkg/response"
	"github.com/diagnosis/speakerhub/services/bookings/internal/domain"
	"github.com/diagnosis/speakerhub/services/bookings/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// CalendarConnector runs the OAuth consent flow for the shared calendar.
type CalendarConnector interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) error
}

type Handlers struct {
	bookingService service.BookingService
	speakerService service.SpeakerService
	calendar       CalendarConnector
	idempotency    mw.IdempotencyStore
	limiter        *mw.UserRateLimiter
	config         *config.Config
}

// New wires the handlers. calendar may be nil when the dev notifier is in use.
func New(
	bookingService service.BookingService,
	speakerService service.SpeakerService,
	calendar CalendarConnector,
	idempotency mw.IdempotencyStore,
	limiter *mw.UserRateLimiter,
	config *config.Config,
) *Handlers {
	return &Handlers{
		bookingService: bookingService,
		speakerService: speakerService,
		calendar:       calendar,
		idempotency:    idempotency,
		limiter:        limiter,
		config:         config,
	}
}

func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	secret := h.config.Auth.JWTSecret

	r.Route("/api/users", func(r chi.Router) {
		r.Use(mw.RequireJWT(secret, string(domain.RoleUser)))
		r.Get("/sessions", h.ListUserSessions)

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			if h.idempotency != nil {
				r.Use(mw.Idempotency(h.idempotency, h.config.Booking.IdempotencyTTL))
			}
			r.Post("/book-session", h.BookSession)
		})
	})

	r.Route("/api/speakers", func(r chi.Router) {
		r.Get("/", h.ListSpeakers)
		r.Get("/{id}/availability", h.Availability)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireJWT(secret, string(domain.RoleSpeaker)))
			r.Post("/setup-profile", h.SetupProfile)
			r.Get("/sessions", h.ListSpeakerSessions)
		})
	})

	r.Get("/google", h.ConnectCalendar)
	r.Get("/google/redirect", h.CalendarRedirect)

	return r
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response.JSON(w, statusCode, data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	response.WriteError(w, statusCode, message, code)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return false
	}
	return true
}

// writeServiceError maps domain sentinels onto HTTP replies. Conflicts are
// client errors reported as 400 with their own code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, detail(err, domain.ErrInvalidInput), response.CodeInvalidInput)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusBadRequest, detail(err, domain.ErrConflict), response.CodeConflict)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, detail(err, domain.ErrNotFound), response.CodeNotFound)
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, detail(err, domain.ErrForbidden), response.CodeForbidden)
	case errors.Is(err, domain.ErrUpstreamFailure):
		logger.ErrorContext(r.Context(), "Upstream failure", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create calendar event", response.CodeUpstreamFailure)
	default:
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Server error.", response.CodeInternalError)
	}
}

// detail strips the sentinel prefix added by fmt.Errorf("%w: ...").
func detail(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return msg
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}

func requestTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
