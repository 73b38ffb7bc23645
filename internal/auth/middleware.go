package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
	"github.com/ovaphlow/dinear/service-api/internal/httpx"
)

// ErrIdentityNotFound is returned by a Resolver when the token subject no
// longer exists.
var ErrIdentityNotFound = errors.New("identity not found")

// Identity is the resolved caller attached to the request context.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Verifier is the subset of TokenService the middleware needs.
type Verifier interface {
	Verify(token string) (string, error)
}

// Resolver looks an identity up by id.
type Resolver interface {
	ResolveIdentity(ctx context.Context, id string) (*Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, id string) (*Identity, error)

func (f ResolverFunc) ResolveIdentity(ctx context.Context, id string) (*Identity, error) {
	return f(ctx, id)
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity attached by the middleware, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}

// Authenticator verifies bearer tokens and re-resolves the identity on every
// request so tokens of vanished users stop working.
type Authenticator struct {
	tokens    Verifier
	resolver  Resolver
	responder *httpx.Responder
	logger    *zap.SugaredLogger
}

func NewAuthenticator(tokens Verifier, resolver Resolver, responder *httpx.Responder, logger *zap.SugaredLogger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Authenticator{tokens: tokens, resolver: resolver, responder: responder, logger: logger}
}

// errUnauthenticated is the one response every authentication failure gets.
func errUnauthenticated() *apperr.Error { return apperr.Authentication(apperr.MsgAuthRequired) }

// Require rejects the request unless a valid token for an existing identity is presented.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.authenticate(r)
		if err != nil {
			a.responder.Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Optional attaches the identity when authentication succeeds and otherwise
// lets the request through anonymously.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.authenticate(r)
		if err != nil {
			a.logger.Debugw("optional auth: continuing anonymously", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*Identity, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, errUnauthenticated()
	}
	userID, err := a.tokens.Verify(token)
	if err != nil {
		a.logger.Debugw("token rejected", "err", err)
		return nil, errUnauthenticated()
	}
	id, err := a.resolver.ResolveIdentity(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			a.logger.Debugw("token subject no longer exists", "user_id", userID)
			return nil, errUnauthenticated()
		}
		return nil, apperr.Internal(err)
	}
	return id, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
