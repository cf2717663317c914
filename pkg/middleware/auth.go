package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/diagnosis/speakerhub/pkg/auth"
	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/pkg/response"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireJWT rejects requests without a valid bearer token. When roles are
// given, the token's userType must be one of them.
func RequireJWT(secret string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "Missing or invalid authorization header")
				return
			}

			claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "), secret)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					response.WriteError(w, http.StatusUnauthorized, "Token expired", response.CodeExpiredToken)
					return
				}
				response.WriteError(w, http.StatusUnauthorized, "Invalid token", response.CodeInvalidToken)
				return
			}
			if claims.UserType == auth.TypeRefresh {
				response.WriteError(w, http.StatusUnauthorized, "Refresh token cannot be used here", response.CodeInvalidToken)
				return
			}

			if len(roles) > 0 && !hasRole(claims.UserType, roles) {
				response.Forbidden(w, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, CtxClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasRole(userType string, roles []string) bool {
	for _, role := range roles {
		if userType == role {
			return true
		}
	}
	return false
}

func Claims(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(CtxClaims).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// WithClaims is used by tests and internal callers that already hold verified claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, CtxClaims, claims)
}
