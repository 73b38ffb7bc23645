package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
	"github.com/ovaphlow/dinear/service-api/internal/auth"
	"github.com/ovaphlow/dinear/service-api/internal/dish"
	"github.com/ovaphlow/dinear/service-api/internal/httpx"
	"github.com/ovaphlow/dinear/service-api/internal/ratelimit"
	"github.com/ovaphlow/dinear/service-api/internal/user"
)

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the id attached by RequestIDMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

const maxRequestIDLen = 128

// validRequestID accepts 1 to 128 characters from [A-Za-z0-9-].
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '-') {
			return false
		}
	}
	return true
}

// RequestIDMiddleware reuses a well-formed inbound X-Request-ID or mints a uuid.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs one line per request; 5xx at warn, the rest at debug.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Debugw
			if status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// RecoverMiddleware turns a panic into the generic 500 envelope.
func RecoverMiddleware(re *httpx.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					re.Error(w, r, apperr.Internal(fmt.Errorf("panic: %v", v)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. Images are
// served cross-origin to the AR viewer, so resource policy is relaxed.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer-when-downgrade")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			if h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Limiters groups the three route classes.
type Limiters struct {
	Global *ratelimit.Limiter
	Auth   *ratelimit.Limiter
	Dish   *ratelimit.Limiter
}

// Options is everything RegisterRoutes mounts.
type Options struct {
	Logger         *zap.SugaredLogger
	Responder      *httpx.Responder
	Auth           *auth.Authenticator
	Users          *user.Handler
	Dishes         *dish.Handler
	Limiters       Limiters
	APIPrefix      string
	AllowedOrigins []string
	// AllowAnyOrigin relaxes CORS in development.
	AllowAnyOrigin bool
	TrustProxy     bool
	// UploadDir, when set, is served read-only under /uploads/.
	UploadDir string
	// Now is the clock used by /health.
	Now func() time.Time
}

// RegisterRoutes mounts the API on a chi router.
func RegisterRoutes(o Options) http.Handler {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	re := o.Responder
	if re == nil {
		re = httpx.NewResponder(logger, false)
	}
	now := o.Now
	if now == nil {
		now = time.Now
	}
	prefix := "/" + strings.Trim(o.APIPrefix, "/")

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	if o.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoverMiddleware(re))
	r.Use(SecurityHeadersMiddleware())
	r.Use(cors.Handler(corsOptions(o)))
	if o.Limiters.Global != nil {
		r.Use(o.Limiters.Global.Middleware(ratelimit.ClientIP))
	}

	r.NotFound(re.NotFound)
	r.MethodNotAllowed(re.MethodNotAllowed)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "Server is running",
			"timestamp": now().UTC().Format(time.RFC3339),
		})
	})

	if o.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", noListing(http.FileServer(http.Dir(o.UploadDir)), re)))
	}

	r.Route(prefix, func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Group(func(g chi.Router) {
				if o.Limiters.Auth != nil {
					g.Use(o.Limiters.Auth.Middleware(ratelimit.ClientIP))
				}
				g.Post("/signup", o.Users.Signup)
				g.Post("/login", o.Users.Login)
			})
			ar.Post("/logout", o.Users.Logout)
			ar.With(o.Auth.Require).Get("/me", o.Users.Me)
		})

		api.Route("/dishes", func(dr chi.Router) {
			dr.With(o.Auth.Optional).Get("/{id}", o.Dishes.Get)
			dr.Group(func(g chi.Router) {
				g.Use(o.Auth.Require)
				if o.Limiters.Dish != nil {
					g.Use(o.Limiters.Dish.Middleware(ratelimit.IdentityOrIP))
				}
				g.Get("/", o.Dishes.List)
				g.Post("/", o.Dishes.Create)
				g.Put("/{id}", o.Dishes.Update)
				g.Delete("/{id}", o.Dishes.Delete)
			})
		})
	})

	return r
}

func corsOptions(o Options) cors.Options {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if o.AllowAnyOrigin {
		// credentials forbid "*", so echo the caller's origin instead
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool { return true }
	} else {
		opts.AllowedOrigins = o.AllowedOrigins
	}
	return opts
}

// noListing hides directory indexes behind the JSON 404.
func noListing(fs http.Handler, re *httpx.Responder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			re.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
