package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
)

// formOverhead is the room left in the body cap for text fields and boundaries.
const formOverhead int64 = 1 << 20

// ReadForm parses a multipart, urlencoded or JSON body into one form shape.
// Bodies beyond maxBytes plus a small overhead are rejected as too large.
func ReadForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (*multipart.Form, error) {
	form := &multipart.Form{Value: map[string][]string{}, File: map[string][]*multipart.FileHeader{}}
	if r.Body == nil || r.Body == http.NoBody {
		return form, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, bodyError(err, maxBytes)
		}
		if r.MultipartForm != nil {
			form = r.MultipartForm
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err, maxBytes)
		}
		form.Value = r.PostForm
	case "application/json":
		var body map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, bodyError(err, maxBytes)
		}
		for k, v := range body {
			switch t := v.(type) {
			case string:
				form.Value[k] = []string{t}
			case json.Number, bool:
				form.Value[k] = []string{fmt.Sprint(t)}
			}
		}
	}
	return form, nil
}

func bodyError(err error, maxBytes int64) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return TooLarge(maxBytes)
	}
	return apperr.UploadRejected("Malformed request body")
}
