// Package ratelimit implements the windowed rate/quota gateway.
//
// Counters live in the relational store so limits hold across process
// instances. The gateway offers two primitives: Check answers "would this be
// allowed" without mutating state, and Record counts a completed event and
// returns the post-increment verdict. Handlers Check before doing expensive
// or fallible work and Record only after it succeeds, so failed attempts are
// never charged to the caller.
//
// On store errors the gateway fails open: abuse prevention prioritizes
// availability over strictness, unlike the quota engine which fails closed.
package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/repository"
)

// Result is the gateway's verdict for one (identifier, endpoint, window).
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long the caller should wait before retrying, at least 1s.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Gateway evaluates windowed limits against the counter store.
type Gateway struct {
	counters repository.CounterRepository
	logger   *slog.Logger
}

// NewGateway creates a new Gateway.
func NewGateway(counters repository.CounterRepository, logger *slog.Logger) *Gateway {
	return &Gateway{counters: counters, logger: logger}
}

// WindowStart floors now to the window boundary. The floor is deterministic
// in wall-clock time, so every instance computing the same window for the
// same instant lands on the same counter row: a 60-minute window starts at
// the top of the hour, a 1440-minute window at UTC midnight.
func WindowStart(now time.Time, window time.Duration) time.Time {
	return now.UTC().Truncate(window)
}

// Check reports whether one more request would be within limit, without
// recording anything.
func (g *Gateway) Check(ctx context.Context, identifier, endpoint string, limit int, window time.Duration) Result {
	now := time.Now().UTC()
	start := WindowStart(now, window)

	count, err := g.counters.Count(ctx, identifier, endpoint, start)
	if err != nil {
		return g.failOpen(identifier, endpoint, limit, start, window, err)
	}
	return verdict(count, limit, start, window)
}

// Record counts one completed event and returns the post-increment verdict.
// Call this only after the gated operation has succeeded, so limits track
// completed work rather than attempts.
func (g *Gateway) Record(ctx context.Context, identifier, endpoint string, limit int, window time.Duration) Result {
	now := time.Now().UTC()
	start := WindowStart(now, window)

	count, err := g.counters.Increment(ctx, identifier, endpoint, start)
	if err != nil {
		return g.failOpen(identifier, endpoint, limit, start, window, err)
	}
	// The recorded event itself was already admitted, so it may land exactly
	// on the limit and still be fine; Allowed answers whether the window had
	// room for it, not whether another one would fit.
	res := verdict(count, limit, start, window)
	res.Allowed = count <= limit
	return res
}

func verdict(count, limit int, start time.Time, window time.Duration) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count < limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   start.Add(window),
	}
}

func (g *Gateway) failOpen(identifier, endpoint string, limit int, start time.Time, window time.Duration, err error) Result {
	g.logger.Error("rate limit store unavailable, failing open",
		"identifier", identifier,
		"endpoint", endpoint,
		"error", err,
	)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   start.Add(window),
	}
}

// Identifier derives the gateway key for a request: the verified user id when
// authenticated, otherwise the client IP. User- and IP-keyed traffic share
// one mechanism on purpose; the identifier is an opaque string to the store.
func Identifier(r *http.Request, user *domain.User) string {
	if user != nil {
		return "user:" + user.ID.String()
	}
	return "ip:" + ClientIP(r)
}

// ClientIP extracts the originating client address, preferring the first
// X-Forwarded-For entry.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For holds client, proxy1, proxy2; the first entry is
		// the original client.
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// =============================================================================
// Composite admission policy for the analyze endpoint
// =============================================================================

// Windows and limits for the analyze endpoint. The anonymous daily cap is a
// business quota; the burst and sustained windows are abuse prevention.
const (
	AnalyzeEndpoint = "generate"

	AnonymousDailyWindow = 24 * time.Hour
	AnonymousDailyLimit  = 10

	BurstWindow = 15 * time.Minute
	BurstLimit  = 5

	SustainedWindow         = time.Hour
	SustainedLimitAnonymous = 10
	SustainedLimitUser      = 50
)

// Admission is the outcome of the composite readonly policy.
type Admission struct {
	Allowed bool
	// Denial is non-nil when not allowed, carrying the proper error code.
	Denial *domain.Error
	// Binding is the result whose headers the response should surface: the
	// daily window for anonymous callers, otherwise the sustained window.
	Binding Result
}

// CheckAnalyzeAdmission runs the readonly admission checks for the analyze
// endpoint, most user-visible constraint first: the anonymous daily cap, then
// the short burst window, then the sustained window. Nothing is recorded.
func (g *Gateway) CheckAnalyzeAdmission(ctx context.Context, identifier string, authenticated bool) Admission {
	const op = "ratelimit.analyze_admission"

	var binding Result
	if !authenticated {
		daily := g.Check(ctx, identifier, AnalyzeEndpoint, AnonymousDailyLimit, AnonymousDailyWindow)
		binding = daily
		if !daily.Allowed {
			return Admission{
				Denial: domain.QuotaExceeded(op, domain.ReasonAnonymousDailyLimit,
					"Daily free analysis limit reached. Sign in or try again tomorrow."),
				Binding: daily,
			}
		}
	}

	burst := g.Check(ctx, identifier, AnalyzeEndpoint+":burst", BurstLimit, BurstWindow)
	if !burst.Allowed {
		return Admission{Denial: domain.RateLimited(op), Binding: burst}
	}

	sustainedLimit := SustainedLimitAnonymous
	if authenticated {
		sustainedLimit = SustainedLimitUser
	}
	sustained := g.Check(ctx, identifier, AnalyzeEndpoint+":sustained", sustainedLimit, SustainedWindow)
	if authenticated {
		binding = sustained
	}
	if !sustained.Allowed {
		return Admission{Denial: domain.RateLimited(op), Binding: sustained}
	}

	return Admission{Allowed: true, Binding: binding}
}

// RecordAnalyze counts a successful analysis against every window the
// admission checked.
func (g *Gateway) RecordAnalyze(ctx context.Context, identifier string, authenticated bool) {
	if !authenticated {
		g.Record(ctx, identifier, AnalyzeEndpoint, AnonymousDailyLimit, AnonymousDailyWindow)
	}
	g.Record(ctx, identifier, AnalyzeEndpoint+":burst", BurstLimit, BurstWindow)
	sustainedLimit := SustainedLimitAnonymous
	if authenticated {
		sustainedLimit = SustainedLimitUser
	}
	g.Record(ctx, identifier, AnalyzeEndpoint+":sustained", sustainedLimit, SustainedWindow)
}
