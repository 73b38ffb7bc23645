package dish

import (
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
	"github.com/ovaphlow/dinear/service-api/internal/auth"
	"github.com/ovaphlow/dinear/service-api/internal/dish/entity"
	"github.com/ovaphlow/dinear/service-api/internal/httpx"
	"github.com/ovaphlow/dinear/service-api/internal/upload"
	"github.com/ovaphlow/dinear/service-api/internal/validate"
)

// Acceptor checks an incoming file without persisting it; *upload.Uploader implements it.
type Acceptor interface {
	Accept(form *multipart.Form) (*upload.Pending, error)
	MaxBytes() int64
}

// Handler exposes the dish endpoints.
type Handler struct {
	svc     *Service
	uploads Acceptor
	re      *httpx.Responder
	logger  *zap.SugaredLogger
}

func NewHandler(svc *Service, uploads Acceptor, re *httpx.Responder, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, uploads: uploads, re: re, logger: logger}
}

// DishResponse wraps a single dish.
type DishResponse struct {
	Dish *entity.Dish `json:"dish"`
}

func caller(r *http.Request) (*auth.Identity, error) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, apperr.Authentication(apperr.MsgAuthRequired)
	}
	return id, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	page, limit := validate.Page(r.URL.Query())
	res, err := h.svc.List(r.Context(), id.ID, page, limit)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	h.re.Data(w, http.StatusOK, res)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ID(chi.URLParam(r, "id"))
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	h.re.Data(w, http.StatusOK, DishResponse{Dish: d})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	form, err := upload.ReadForm(w, r, h.uploads.MaxBytes())
	if err != nil {
		h.re.Error(w, r, err)
		return
	}

	var details []apperr.FieldError
	in, err := validate.DishCreate(form.Value)
	if err != nil {
		e, ok := apperr.As(err)
		if !ok || e.Kind != apperr.KindValidation {
			h.re.Error(w, r, err)
			return
		}
		details = append(details, e.Details...)
	}
	if len(form.File) == 0 {
		details = append(details, apperr.FieldError{Field: upload.Field, Message: MsgImageRequired})
	}
	if len(details) > 0 {
		h.re.Error(w, r, apperr.Validation(details...))
		return
	}

	pending, err := h.uploads.Accept(form)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	d, err := h.svc.Create(r.Context(), CreateInput{
		OwnerID:   owner.ID,
		Name:      in.Name,
		PlateSize: in.PlateSize,
		Image:     pending,
		Origin:    httpx.Origin(r),
	})
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	h.re.Data(w, http.StatusCreated, DishResponse{Dish: d})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	id, err := validate.ID(chi.URLParam(r, "id"))
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	form, err := upload.ReadForm(w, r, h.uploads.MaxBytes())
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	in, err := validate.DishUpdate(form.Value)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	pending, err := h.uploads.Accept(form)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	d, err := h.svc.Update(r.Context(), UpdateInput{
		ID:        id,
		CallerID:  who.ID,
		Name:      in.Name,
		PlateSize: in.PlateSize,
		Image:     pending,
		Origin:    httpx.Origin(r),
	})
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	h.re.Data(w, http.StatusOK, DishResponse{Dish: d})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	id, err := validate.ID(chi.URLParam(r, "id"))
	if err != nil {
		h.re.Error(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id, who.ID); err != nil {
		h.re.Error(w, r, err)
		return
	}
	h.re.Message(w, http.StatusOK, "Dish deleted successfully")
}
