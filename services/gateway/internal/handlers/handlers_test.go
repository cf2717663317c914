package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/speakerhub/services/gateway/internal/proxy"
	"github.com/go-chi/chi/v5"
)

type captured struct {
	method string
	uri    string
	body   string
	header http.Header
}

func upstream(t *testing.T, name string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*got = captured{method: r.Method, uri: r.URL.RequestURI(), body: string(b), header: r.Header.Clone()}
		w.Header().Set("X-Upstream", name)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.URL.Path == "/google" {
			http.Redirect(w, r, "https://accounts.example/auth", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"from":"` + name + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T) (http.Handler, *captured, *captured) {
	t.Helper()
	var authGot, bookingsGot captured
	authSrv := upstream(t, "auth", &authGot)
	bookingsSrv := upstream(t, "bookings", &bookingsGot)

	h := New(
		proxy.NewServiceProxy("auth", authSrv.URL, 5*time.Second),
		proxy.NewServiceProxy("bookings", bookingsSrv.URL+"/", 5*time.Second),
	)
	r := chi.NewRouter()
	h.Mount(r)
	return r, &authGot, &bookingsGot
}

func TestRoutesToAuth(t *testing.T) {
	gw, authGot, _ := newGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.co"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot || rec.Header().Get("X-Upstream") != "auth" {
		t.Fatalf("status = %d, upstream = %q", rec.Code, rec.Header().Get("X-Upstream"))
	}
	if authGot.uri != "/api/auth/login" || authGot.body != `{"email":"a@b.co"}` || authGot.method != http.MethodPost {
		t.Fatalf("captured = %+v", authGot)
	}
	if authGot.header.Get("X-Gateway-Forwarded") != "true" || authGot.header.Get("X-Forwarded-For") == "" {
		t.Fatalf("forwarding headers missing: %v", authGot.header)
	}
}

func TestForwardedForEndsWithPeer(t *testing.T) {
	gw, authGot, _ := newGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/verify-otp", strings.NewReader(`{}`))
	req.RemoteAddr = "198.51.100.20:40000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	req.Header.Set("X-Real-IP", "1.2.3.4")
	gw.ServeHTTP(httptest.NewRecorder(), req)

	if got := authGot.header.Get("X-Forwarded-For"); got != "1.2.3.4, 198.51.100.20" {
		t.Fatalf("X-Forwarded-For = %q", got)
	}
	if got := authGot.header.Get("X-Real-IP"); got != "198.51.100.20" {
		t.Fatalf("X-Real-IP = %q", got)
	}
}

func TestRoutesToBookings(t *testing.T) {
	gw, _, bookingsGot := newGateway(t)

	paths := []string{
		"/api/speakers",
		"/api/speakers/3/availability?date=2030-01-15",
		"/api/users/sessions",
		"/google/redirect?code=x&state=y",
	}
	for _, p := range paths {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, req)

		if rec.Header().Get("X-Upstream") != "bookings" {
			t.Fatalf("%s: routed to %q", p, rec.Header().Get("X-Upstream"))
		}
		if bookingsGot.uri != p {
			t.Fatalf("%s: upstream saw %q", p, bookingsGot.uri)
		}
		if bookingsGot.header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("%s: authorization not forwarded", p)
		}
	}
}

func TestRedirectPassesThrough(t *testing.T) {
	gw, _, _ := newGateway(t)

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/google", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "https://accounts.example/auth" {
		t.Fatalf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestUpstreamCORSHeadersDropped(t *testing.T) {
	gw, _, _ := newGateway(t)

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/speakers", nil))
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("upstream CORS header leaked through")
	}
}

func TestUpstreamDown(t *testing.T) {
	h := New(
		proxy.NewServiceProxy("auth", "http://127.0.0.1:1", time.Second),
		proxy.NewServiceProxy("bookings", "http://127.0.0.1:1", time.Second),
	)
	r := chi.NewRouter()
	h.Mount(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/speakers", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	gw, _, _ := newGateway(t)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rider/bookings", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
