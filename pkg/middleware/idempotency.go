package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/pkg/response"
)

const maxIdempotentBody = 1 << 20

// IdempotencyStore persists replayable responses. Get returns "" for unknown keys.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type cachedResponse struct {
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
	RequestHash string          `json:"request_hash"`
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. Keys are scoped to the authenticated user and path; a
// key reused with a different body is rejected with 422.
func Idempotency(store IdempotencyStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			var owner int64
			if claims := Claims(r.Context()); claims != nil {
				owner = claims.UserID
			}
			sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", owner, r.URL.Path, key)))
			storeKey := fmt.Sprintf("idempotency:%x", sum)

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				response.BadRequest(w, "Request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			bodySum := sha256.Sum256(body)
			requestHash := hex.EncodeToString(bodySum[:])

			existing, err := store.Get(r.Context(), storeKey)
			if err != nil {
				logger.WarnContext(r.Context(), "idempotency lookup failed", "error", err)
			}
			if existing != "" {
				var cached cachedResponse
				if err := json.Unmarshal([]byte(existing), &cached); err == nil {
					if cached.RequestHash != requestHash {
						response.WriteError(w, http.StatusUnprocessableEntity,
							"Idempotency-Key was already used with a different request", response.CodeIdempotencyKeyReused)
						return
					}
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Idempotent-Replayed", "true")
					w.WriteHeader(cached.Status)
					w.Write(cached.Body)
					return
				}
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode < 200 || recorder.statusCode >= 300 {
				return
			}
			payload, err := json.Marshal(cachedResponse{
				Status:      recorder.statusCode,
				Body:        json.RawMessage(bytes.TrimSpace(recorder.body.Bytes())),
				RequestHash: requestHash,
			})
			if err != nil {
				return
			}
			if err := store.Set(r.Context(), storeKey, string(payload), ttl); err != nil {
				logger.WarnContext(r.Context(), "idempotency store failed", "error", err)
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(body []byte) (int, error) {
	r.body.Write(body)
	return r.ResponseWriter.Write(body)
}
