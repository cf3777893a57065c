// Package middleware contains HTTP middleware for the Snaplist API.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ferrostad/snaplist/internal/auth"
	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/handler"
	"github.com/ferrostad/snaplist/internal/repository"
)

// AuthMiddleware resolves bearer tokens into users.
type AuthMiddleware struct {
	verifier auth.Verifier
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

// NewAuthMiddleware creates an AuthMiddleware.
func NewAuthMiddleware(verifier auth.Verifier, profiles repository.ProfileRepository, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		profiles: profiles,
		logger:   logger,
	}
}

// WithUser verifies the Authorization header when present and stores the
// resulting user in the request context. Requests without a token, or with
// a bad one, continue anonymously. Use on routes that serve both
// authenticated and anonymous traffic.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				m.logger.Warn("token verification failed", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			m.logger.Warn("token subject is not a UUID", "sub", claims.Subject)
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.profiles.GetOrCreate(r.Context(), userID, claims.Email)
		if err != nil {
			m.logger.Error("load profile for token subject", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// RequireUser rejects requests that have no authenticated user in context.
// Must run after WithUser.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			handler.ErrorResponse(w, r, m.logger, domain.Unauthorized("", "Authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or returns "".
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Stack composes middleware. The first middleware in the list is the
// outermost.
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
