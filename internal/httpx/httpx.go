// Package httpx holds the JSON envelope helpers and the single translator from
// apperr kinds to HTTP responses.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
)

// Envelope is the success body shape.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorBody is the failure body shape shared by every endpoint.
type ErrorBody struct {
	Success    bool                `json:"success"`
	Error      string              `json:"error"`
	Details    []apperr.FieldError `json:"details,omitempty"`
	RetryAfter int                 `json:"retry_after,omitempty"`
	Path       string              `json:"path,omitempty"`
	// Detail carries the internal cause in development mode only.
	Detail string `json:"detail,omitempty"`
}

// Responder writes envelopes and translates errors. Dev exposes internal causes.
type Responder struct {
	Logger *zap.SugaredLogger
	Dev    bool
}

func NewResponder(logger *zap.SugaredLogger, dev bool) *Responder {
	return &Responder{Logger: logger, Dev: dev}
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data writes {"success":true,"data":data}.
func (re *Responder) Data(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// Message writes {"success":true,"message":msg}.
func (re *Responder) Message(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Envelope{Success: true, Message: msg})
}

// Error maps err onto a status and body. Anything that is not an *apperr.Error
// is reported as a generic 500.
func (re *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal(err)
	}
	body := ErrorBody{Success: false, Error: e.Message, Details: e.Details}

	switch e.Kind {
	case apperr.KindInternal:
		body.Error = apperr.MsgInternal
		if re.Dev && e.Err != nil {
			body.Detail = e.Err.Error()
		}
		re.logger().Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	case apperr.KindRateLimited:
		body.RetryAfter = e.RetryAfter
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	default:
		re.logger().Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "kind", e.Kind.String(), "err", err)
	}
	WriteJSON(w, e.Kind.Status(), body)
}

// NotFound is the fallback for unknown routes.
func (re *Responder) NotFound(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, ErrorBody{Success: false, Error: "Route not found", Path: r.URL.Path})
}

// MethodNotAllowed is the fallback for known routes hit with the wrong verb.
func (re *Responder) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusMethodNotAllowed, ErrorBody{Success: false, Error: "Method not allowed", Path: r.URL.Path})
}

func (re *Responder) logger() *zap.SugaredLogger {
	if re == nil || re.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return re.Logger
}

// Origin returns scheme://host of the request, used to build public asset URLs.
func Origin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
