package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
	"github.com/ovaphlow/dinear/service-api/internal/auth"
	"github.com/ovaphlow/dinear/service-api/internal/httpx"
)

// Default messages per route class.
const (
	MsgGlobal = "Too many requests, please slow down"
	MsgAuth   = "Too many authentication attempts, please try again later"
	MsgDish   = "Rate limit exceeded for dish operations"
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until the window resets, at least 1 when denied.
	RetryAfter int
}

// Limiter allows Max hits per key per Window.
type Limiter struct {
	Name    string
	Window  time.Duration
	Max     int
	Message string

	store     Store
	now       func() time.Time
	responder *httpx.Responder
	logger    *zap.SugaredLogger
}

type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

// WithMessage sets the 429 error text.
func WithMessage(msg string) Option { return func(l *Limiter) { l.Message = msg } }

func WithResponder(re *httpx.Responder) Option { return func(l *Limiter) { l.responder = re } }

func WithLogger(lg *zap.SugaredLogger) Option { return func(l *Limiter) { l.logger = lg } }

func New(name string, store Store, window time.Duration, limit int, opts ...Option) *Limiter {
	l := &Limiter{
		Name:    name,
		Window:  window,
		Max:     limit,
		Message: MsgGlobal,
		store:   store,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.responder == nil {
		l.responder = httpx.NewResponder(l.logger, false)
	}
	if l.logger == nil {
		l.logger = zap.NewNop().Sugar()
	}
	return l
}

// Check counts one hit for key. Keys are namespaced by limiter name so several
// limiters can share one store.
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	count, resetAt, err := l.store.Increment(ctx, l.Name+":"+key, l.Window, now)
	if err != nil {
		return Decision{Allowed: true, Limit: l.Max, Remaining: l.Max}, err
	}
	d := Decision{
		Allowed:   count <= l.Max,
		Limit:     l.Max,
		Remaining: max(l.Max-count, 0),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = max(int(math.Ceil(resetAt.Sub(now).Seconds())), 1)
	}
	return d, nil
}

// KeyFunc derives the counter key from a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys by the host part of RemoteAddr. Behind a trusted proxy the
// router rewrites RemoteAddr from X-Forwarded-For before this runs.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IdentityOrIP keys authenticated callers by identity and everyone else by IP.
func IdentityOrIP(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return "user:" + id.ID
	}
	return "ip:" + ClientIP(r)
}

// Middleware rejects requests over the limit with 429. Store failures let the
// request through.
func (l *Limiter) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Check(r.Context(), key(r))
			if err != nil {
				l.logger.Warnw("rate limit store failed, allowing request", "limiter", l.Name, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(max(int(math.Ceil(d.ResetAt.Sub(l.now()).Seconds())), 0)))
			if !d.Allowed {
				l.logger.Infow("rate limit exceeded", "limiter", l.Name, "path", r.URL.Path, "retry_after", d.RetryAfter)
				l.responder.Error(w, r, apperr.RateLimited(l.Message, d.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
