package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken is returned for any token that fails verification.
// Callers should not leak the underlying reason to clients.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the identity claims the application cares about.
type Claims struct {
	Subject string // stable user ID from the identity provider
	Email   string
}

// Verifier checks a bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// JWKSVerifier validates JWTs issued by an external identity provider.
// Public keys are fetched from the provider's JWKS endpoint and cached
// with periodic refresh to handle key rotation.
type JWKSVerifier struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewJWKSVerifier creates a verifier and performs an initial JWKS fetch so
// misconfiguration fails at startup rather than on the first request.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer, audience string) (*JWKSVerifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWKSVerifier{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// Verify checks signature, expiry, issuer and audience, then extracts
// claims.
func (v *JWKSVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tok.Subject() == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	claims := &Claims{Subject: tok.Subject()}
	if email, ok := tok.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	return claims, nil
}

// StaticVerifier verifies tokens against a fixed map. Test use only.
type StaticVerifier struct {
	Tokens map[string]*Claims
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	claims, ok := v.Tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
