package user

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
	"github.com/ovaphlow/dinear/service-api/internal/auth"
	"github.com/ovaphlow/dinear/service-api/internal/httpx"
	"github.com/ovaphlow/dinear/service-api/internal/upload"
	"github.com/ovaphlow/dinear/service-api/internal/user/entity"
	"github.com/ovaphlow/dinear/service-api/internal/validate"
)

// maxAuthBody caps credential payloads.
const maxAuthBody int64 = 1 << 20

// TokenIssuer mints bearer tokens.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Handler exposes HTTP endpoints for user operations.
type Handler struct {
	svc    *Service
	tokens TokenIssuer
	re     *httpx.Responder
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, tokens TokenIssuer, re *httpx.Responder, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, tokens: tokens, re: re, logger: logger}
}

// AuthResponse is the signup and login payload.
type AuthResponse struct {
	User  *entity.User `json:"user"`
	Token string       `json:"token"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	User *entity.User `json:"user"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	form, err := upload.ReadForm(w, r, maxAuthBody)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	in, err := validate.Signup(form.Value)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	u, err := h.svc.Signup(r.Context(), in.Email, in.Password)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	h.respondWithToken(w, r, http.StatusCreated, u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	form, err := upload.ReadForm(w, r, maxAuthBody)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	in, err := validate.Login(form.Value)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	u, err := h.svc.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	h.respondWithToken(w, r, http.StatusOK, u)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *entity.User) {
	tok, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.re.Error(w, r, apperr.Internal(err))
		return
	}
	h.re.Data(w, status, AuthResponse{User: u, Token: tok})
}

// Logout only acknowledges; tokens are discarded client-side.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.re.Message(w, http.StatusOK, "Logged out successfully")
}

// Me re-reads the caller, who may have been deleted since authentication.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.re.Error(w, r, apperr.Authentication(apperr.MsgAuthRequired))
		return
	}
	u, err := h.svc.Get(r.Context(), id.ID)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	h.re.Data(w, http.StatusOK, UserResponse{User: u})
}
