package dish

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/dinear/service-api/internal/auth"
	"github.com/ovaphlow/dinear/service-api/internal/httpx"
	"github.com/ovaphlow/dinear/service-api/internal/upload"
)

// testRouter mounts the handler with an identity taken from X-Test-User.
func testRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(nil)
	st, err := upload.NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)
	h := NewHandler(f.svc, upload.NewUploader(st, upload.DefaultMaxBytes, nil), httpx.NewResponder(nil, false), nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u := r.Header.Get("X-Test-User"); u != "" {
				r = r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{ID: u}))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/dishes", h.List)
	r.Post("/dishes", h.Create)
	r.Get("/dishes/{id}", h.Get)
	r.Put("/dishes/{id}", h.Update)
	r.Delete("/dishes/{id}", h.Delete)
	return r, f
}

func dishForm(t *testing.T, method, target, user string, fields map[string]string, withImage bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withImage {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="image"; filename="dish.png"`)
		h.Set("Content-Type", "image/png")
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write([]byte("\x89PNG fake"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type dishEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Dish struct {
			ID        string  `json:"id"`
			OwnerID   string  `json:"owner_id"`
			Name      string  `json:"name"`
			PlateSize string  `json:"plate_size"`
			QR        *string `json:"qr_payload_url"`
		} `json:"dish"`
	} `json:"data"`
}

func createDish(t *testing.T, h http.Handler, user string) string {
	t.Helper()
	rec := do(h, dishForm(t, http.MethodPost, "/dishes", user, map[string]string{"name": "Ramen", "plate_size": "small"}, true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var env dishEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data.Dish.ID
}

func TestCreateHandler(t *testing.T) {
	h, _ := testRouter(t)
	rec := do(h, dishForm(t, http.MethodPost, "/dishes", "u1", map[string]string{"name": "Ramen", "plate_size": "small", "owner_id": "u2"}, true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env dishEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "u1", env.Data.Dish.OwnerID)
	assert.Equal(t, "small", env.Data.Dish.PlateSize)
	assert.NotNil(t, env.Data.Dish.QR)
	assert.NotContains(t, rec.Body.String(), "image_key")
}

func TestCreateHandler_MissingImageAndName(t *testing.T) {
	h, f := testRouter(t)
	rec := do(h, dishForm(t, http.MethodPost, "/dishes", "u1", map[string]string{"plate_size": "small"}, false))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Validation failed", body.Error)
	fields := map[string]string{}
	for _, d := range body.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "Dish name is required", fields["name"])
	assert.Equal(t, MsgImageRequired, fields["image"])
	assert.Empty(t, f.assets.events)
}

func TestCreateHandler_InvalidFileType(t *testing.T) {
	h, f := testRouter(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Ramen"))
	part, err := mw.CreateFormFile("image", "x.exe")
	require.NoError(t, err)
	_, _ = part.Write([]byte("MZ"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/dishes", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", "u1")

	rec := do(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), upload.MsgInvalidType)
	assert.Empty(t, f.assets.events)
}

func TestGetHandler(t *testing.T) {
	h, _ := testRouter(t)
	id := createDish(t, h, "u1")

	rec := do(h, httptest.NewRequest(http.MethodGet, "/dishes/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/dishes/not-an-id", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid ID format")

	rec = do(h, httptest.NewRequest(http.MethodGet, "/dishes/424242", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Dish not found"}`, rec.Body.String())
}

func TestUpdateHandler(t *testing.T) {
	h, _ := testRouter(t)
	id := createDish(t, h, "u1")

	req := httptest.NewRequest(http.MethodPut, "/dishes/"+id, strings.NewReader(`{"name":"Pho","plate_size":"large"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "u2")
	rec := do(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgForbiddenUpdate)

	req = httptest.NewRequest(http.MethodPut, "/dishes/"+id, strings.NewReader(`{"name":"Pho","plate_size":"large"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "u1")
	rec = do(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var env dishEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "Pho", env.Data.Dish.Name)
	assert.Equal(t, "large", env.Data.Dish.PlateSize)

	req = httptest.NewRequest(http.MethodPut, "/dishes/"+id, strings.NewReader(`{"plate_size":"xl"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "u1")
	assert.Equal(t, http.StatusBadRequest, do(h, req).Code)
}

func TestUpdateHandler_ReplacesImage(t *testing.T) {
	h, f := testRouter(t)
	id := createDish(t, h, "u1")

	rec := do(h, dishForm(t, http.MethodPut, "/dishes/"+id, "u1", nil, true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"store:img1.png", "store:img2.png", "discard:img1.png"}, f.assets.events)
}

func TestDeleteHandler(t *testing.T) {
	h, _ := testRouter(t)
	id := createDish(t, h, "u1")

	req := httptest.NewRequest(http.MethodDelete, "/dishes/"+id, nil)
	req.Header.Set("X-Test-User", "u2")
	assert.Equal(t, http.StatusForbidden, do(h, req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/dishes/"+id, nil)
	req.Header.Set("X-Test-User", "u1")
	rec := do(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Dish deleted successfully"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(h, httptest.NewRequest(http.MethodGet, "/dishes/"+id, nil)).Code)
}

func TestListHandler(t *testing.T) {
	h, _ := testRouter(t)
	for i := 0; i < 3; i++ {
		createDish(t, h, "u1")
	}

	req := httptest.NewRequest(http.MethodGet, "/dishes?page=1&limit=500", nil)
	req.Header.Set("X-Test-User", "u1")
	rec := do(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data ListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Len(t, env.Data.Dishes, 3)
	assert.Equal(t, Pagination{Page: 1, Limit: 100, Total: 3, Pages: 1}, env.Data.Pagination)

	assert.Equal(t, http.StatusUnauthorized, do(h, httptest.NewRequest(http.MethodGet, "/dishes", nil)).Code)
}
