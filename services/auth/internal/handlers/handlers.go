package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/logger"
	mw "github.com/diagnosis/speakerhub/pkg/middleware"
	"github.com/diagnosis/speakerhub/pkg/response"
	"github.com/diagnosis/speakerhub/services/auth/internal/domain"
	"github.com/diagnosis/speakerhub/services/auth/internal/service"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	authService service.AuthService
	limiter     mw.WindowCounter
	config      *config.Config
}

func New(authService service.AuthService, limiter mw.WindowCounter, config *config.Config) *Handlers {
	return &Handlers{
		authService: authService,
		limiter:     limiter,
		config:      config,
	}
}

func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	limit := h.config.Auth.LoginRateLimit
	window := h.config.Auth.LoginRateWindow

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/resend-otp", h.ResendOTP)
		r.Post("/refresh", h.RefreshToken)

		r.With(mw.LimitByIP(h.limiter, "login", limit, window)).Post("/login", h.Login)
		r.With(mw.LimitByIP(h.limiter, "verify_otp", limit, window)).Post("/verify-otp", h.VerifyOTP)

		r.With(mw.RequireJWT(h.config.Auth.JWTSecret)).Get("/me", h.Me)
	})

	return r
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response.JSON(w, statusCode, data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	response.WriteError(w, statusCode, message, code)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return false
	}
	return true
}

// writeServiceError keeps the original API's habit of answering credential
// and passcode failures with 400.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": "), response.CodeInvalidInput)
	case errors.Is(err, domain.ErrEmailExists):
		writeError(w, http.StatusBadRequest, "Email already in use.", response.CodeEmailExists)
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "Invalid credentials.", response.CodeInvalidCredentials)
	case errors.Is(err, domain.ErrNotVerified):
		writeError(w, http.StatusBadRequest, "Account not verified.", response.CodeNotVerified)
	case errors.Is(err, domain.ErrAlreadyVerified):
		writeError(w, http.StatusBadRequest, "Account is already verified.", response.CodeAlreadyVerified)
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusBadRequest, "User not found.", response.CodeNotFound)
	case errors.Is(err, domain.ErrInvalidOTP):
		writeError(w, http.StatusBadRequest, "Invalid OTP.", response.CodeInvalidOTP)
	case errors.Is(err, domain.ErrOTPExpired):
		writeError(w, http.StatusBadRequest, "OTP has expired.", response.CodeOTPExpired)
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid refresh token.", response.CodeInvalidToken)
	default:
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Server error.", response.CodeInternalError)
	}
}
