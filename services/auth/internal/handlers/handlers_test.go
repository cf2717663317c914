package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/speakerhub/pkg/auth"
	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/response"
	"github.com/diagnosis/speakerhub/services/auth/internal/domain"
)

const secret = "auth-handlers-secret"

type stubAuth struct {
	err error
}

func (s *stubAuth) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	req.Normalize()
	return &domain.User{ID: 1, Email: req.Email, FirstName: req.FirstName, Role: req.UserType}, nil
}

func (s *stubAuth) VerifyOTP(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.User{ID: 1, Email: req.Email, IsVerified: true}, nil
}

func (s *stubAuth) ResendOTP(ctx context.Context, email string) error { return s.err }

func (s *stubAuth) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.LoginResponse{Token: "access", RefreshToken: "refresh", ExpiresIn: 3600, User: &domain.UserInfo{ID: 1}}, nil
}

func (s *stubAuth) RefreshToken(ctx context.Context, refreshToken string) (*domain.LoginResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.LoginResponse{Token: "access-2", ExpiresIn: 3600}, nil
}

func (s *stubAuth) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.User{ID: id, Email: "me@example.com", Role: domain.RoleSpeaker}, nil
}

type countingLimiter struct {
	counts map[string]int
}

func (c *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	c.counts[key]++
	return c.counts[key] <= limit, nil
}

func newServer(svc *stubAuth) http.Handler {
	cfg := &config.Config{Auth: config.AuthConfig{
		JWTSecret:       secret,
		LoginRateLimit:  2,
		LoginRateWindow: time.Minute,
	}}
	return New(svc, &countingLimiter{counts: map[string]int{}}, cfg).Routes()
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()
	var body response.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func TestSignup(t *testing.T) {
	srv := newServer(&stubAuth{})
	rec := post(t, srv, "/api/auth/signup", `{"firstName":"Ada","lastName":"L","email":"ada@example.com","password":"longenough","userType":"speaker"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "speaker registered successfully") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		status int
		code   string
	}{
		{"duplicate email", "/api/auth/signup", domain.ErrEmailExists, http.StatusBadRequest, response.CodeEmailExists},
		{"validation", "/api/auth/signup", fmt.Errorf("%w: lastName is required", domain.ErrInvalidInput), http.StatusBadRequest, response.CodeInvalidInput},
		{"bad credentials", "/api/auth/login", domain.ErrInvalidCredentials, http.StatusBadRequest, response.CodeInvalidCredentials},
		{"unverified", "/api/auth/login", domain.ErrNotVerified, http.StatusBadRequest, response.CodeNotVerified},
		{"invalid otp", "/api/auth/verify-otp", domain.ErrInvalidOTP, http.StatusBadRequest, response.CodeInvalidOTP},
		{"expired otp", "/api/auth/verify-otp", domain.ErrOTPExpired, http.StatusBadRequest, response.CodeOTPExpired},
		{"unknown user", "/api/auth/verify-otp", domain.ErrUserNotFound, http.StatusBadRequest, response.CodeNotFound},
		{"bad refresh", "/api/auth/refresh", domain.ErrInvalidToken, http.StatusUnauthorized, response.CodeInvalidToken},
		{"unexpected", "/api/auth/login", fmt.Errorf("db down"), http.StatusInternalServerError, response.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(&stubAuth{err: tt.err})
			rec := post(t, srv, tt.path, `{"email":"a@b.co","password":"x","otp":"123456","refreshToken":"r"}`)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if body := errorBody(t, rec); body.Code != tt.code {
				t.Fatalf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}
}

func TestValidationMessageHasNoPrefix(t *testing.T) {
	srv := newServer(&stubAuth{err: fmt.Errorf("%w: lastName is required", domain.ErrInvalidInput)})
	rec := post(t, srv, "/api/auth/signup", `{}`)
	if body := errorBody(t, rec); body.Error != "lastName is required" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestLogin_RateLimitedPerIP(t *testing.T) {
	srv := newServer(&stubAuth{})
	body := `{"email":"a@b.co","password":"longenough"}`

	for i := 0; i < 2; i++ {
		if rec := post(t, srv, "/api/auth/login", body); rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}
	rec := post(t, srv, "/api/auth/login", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt: status = %d", rec.Code)
	}

	// verify-otp keeps its own budget
	if rec := post(t, srv, "/api/auth/verify-otp", `{"email":"a@b.co","otp":"123456"}`); rec.Code != http.StatusOK {
		t.Fatalf("verify-otp: status = %d", rec.Code)
	}
}

func TestResendOTP_RequiresEmail(t *testing.T) {
	srv := newServer(&stubAuth{})
	if rec := post(t, srv, "/api/auth/resend-otp", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := post(t, srv, "/api/auth/resend-otp", `{"email":"a@b.co"}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	srv := newServer(&stubAuth{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}

	tok, _ := auth.NewAccessToken(42, "me@example.com", domain.RoleSpeaker, secret, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info domain.UserInfo
	json.NewDecoder(rec.Body).Decode(&info)
	if info.ID != 42 || info.UserType != domain.RoleSpeaker {
		t.Fatalf("info = %+v", info)
	}
}
