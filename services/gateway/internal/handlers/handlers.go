package handlers

import (
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/pkg/response"
	"github.com/diagnosis/speakerhub/services/gateway/internal/proxy"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	authProxy     *proxy.ServiceProxy
	bookingsProxy *proxy.ServiceProxy
}

func New(authProxy, bookingsProxy *proxy.ServiceProxy) *Handlers {
	return &Handlers{
		authProxy:     authProxy,
		bookingsProxy: bookingsProxy,
	}
}

// Mount registers the public routes; path prefixes are forwarded unchanged.
func (h *Handlers) Mount(r chi.Router) {
	r.Handle("/api/auth/*", h.forward(h.authProxy))

	bookings := h.forward(h.bookingsProxy)
	r.Handle("/api/speakers", bookings)
	r.Handle("/api/speakers/*", bookings)
	r.Handle("/api/users/*", bookings)
	r.Handle("/google", bookings)
	r.Handle("/google/*", bookings)
}

func (h *Handlers) forward(serviceProxy *proxy.ServiceProxy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.proxyRequest(w, r, serviceProxy, r.URL.RequestURI())
	})
}

func (h *Handlers) proxyRequest(w http.ResponseWriter, r *http.Request, serviceProxy *proxy.ServiceProxy, path string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(w, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	headers := make(http.Header)
	for key, values := range r.Header {
		if shouldCopyHeader(key) {
			headers[key] = values
		}
	}
	appendForwardedFor(headers, r)

	resp, err := serviceProxy.ProxyRequest(r.Context(), r.Method, path, body, headers)
	if err != nil {
		logger.ErrorContext(r.Context(), "Service proxy error", "error", err, "service", serviceProxy.Name(), "path", path)
		response.WriteError(w, http.StatusServiceUnavailable, "Service unavailable", response.CodeUpstreamFailure)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if !shouldCopyHeader(key) || isCORSHeader(key) {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.ErrorContext(r.Context(), "Failed to copy response body", "error", err)
	}
}

var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"upgrade":             true,
	"proxy-connection":    true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"trailers":            true,
	"transfer-encoding":   true,
	"host":                true,
	"content-length":      true,
}

func shouldCopyHeader(key string) bool {
	return !hopByHop[strings.ToLower(key)]
}

// CORS is owned by the gateway; upstream values would duplicate it.
func isCORSHeader(key string) bool {
	return strings.HasPrefix(strings.ToLower(key), "access-control-")
}

func appendForwardedFor(h http.Header, r *http.Request) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	h.Set("X-Real-IP", ip)
	if prior := h.Get("X-Forwarded-For"); prior != "" {
		ip = prior + ", " + ip
	}
	h.Set("X-Forwarded-For", ip)
}
