package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrostad/snaplist/internal/auth"
	"github.com/ferrostad/snaplist/internal/domain"
)

type stubProfiles struct {
	calls int
}

func (s *stubProfiles) GetOrCreate(_ context.Context, userID uuid.UUID, email string) (*domain.User, error) {
	s.calls++
	return &domain.User{ID: userID, Email: email, Plan: domain.PlanFree}, nil
}

func (s *stubProfiles) SetPlan(_ context.Context, _ uuid.UUID, _ domain.Plan) error { return nil }

func (s *stubProfiles) SetStripeCustomerID(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func (s *stubProfiles) GetByStripeCustomerID(_ context.Context, _ string) (*domain.User, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuth(profiles *stubProfiles, subject uuid.UUID) *AuthMiddleware {
	verifier := &auth.StaticVerifier{Tokens: map[string]*auth.Claims{
		"good-token": {Subject: subject.String(), Email: "u@example.com"},
		"bad-sub":    {Subject: "not-a-uuid"},
	}}
	return NewAuthMiddleware(verifier, profiles, testLogger())
}

func TestWithUser(t *testing.T) {
	subject := uuid.New()

	capture := func(got **domain.User) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*got = auth.GetUser(r.Context())
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("valid token resolves a user", func(t *testing.T) {
		profiles := &stubProfiles{}
		mw := newTestAuth(profiles, subject)

		var got *domain.User
		r := httptest.NewRequest("GET", "/api/quota", nil)
		r.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()
		mw.WithUser(capture(&got)).ServeHTTP(w, r)

		require.NotNil(t, got)
		assert.Equal(t, subject, got.ID)
		assert.Equal(t, "u@example.com", got.Email)
		assert.Equal(t, 1, profiles.calls)
	})

	t.Run("no token continues anonymously", func(t *testing.T) {
		profiles := &stubProfiles{}
		mw := newTestAuth(profiles, subject)

		var got *domain.User
		r := httptest.NewRequest("GET", "/api/quota", nil)
		w := httptest.NewRecorder()
		mw.WithUser(capture(&got)).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, got)
		assert.Zero(t, profiles.calls)
	})

	t.Run("invalid token continues anonymously", func(t *testing.T) {
		profiles := &stubProfiles{}
		mw := newTestAuth(profiles, subject)

		var got *domain.User
		r := httptest.NewRequest("GET", "/api/quota", nil)
		r.Header.Set("Authorization", "Bearer forged")
		w := httptest.NewRecorder()
		mw.WithUser(capture(&got)).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, got)
	})

	t.Run("non-uuid subject continues anonymously", func(t *testing.T) {
		profiles := &stubProfiles{}
		mw := newTestAuth(profiles, subject)

		var got *domain.User
		r := httptest.NewRequest("GET", "/api/quota", nil)
		r.Header.Set("Authorization", "Bearer bad-sub")
		w := httptest.NewRecorder()
		mw.WithUser(capture(&got)).ServeHTTP(w, r)

		assert.Nil(t, got)
		assert.Zero(t, profiles.calls)
	})
}

func TestRequireUser(t *testing.T) {
	subject := uuid.New()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects anonymous requests", func(t *testing.T) {
		mw := newTestAuth(&stubProfiles{}, subject)

		r := httptest.NewRequest("POST", "/api/listings", nil)
		w := httptest.NewRecorder()
		mw.RequireUser(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "unauthorized")
	})

	t.Run("passes authenticated requests", func(t *testing.T) {
		mw := newTestAuth(&stubProfiles{}, subject)

		r := httptest.NewRequest("POST", "/api/listings", nil)
		r = r.WithContext(auth.SetUser(r.Context(), &domain.User{ID: subject}))
		w := httptest.NewRecorder()
		mw.RequireUser(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer abc123", "abc123"},
		{"case insensitive scheme", "bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"scheme only", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, bearerToken(r))
		})
	}
}

func TestStack(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(tag("outer"), tag("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
