// Package upload accepts a single image per request, names and stores it on a
// Storage backend and removes it again when the surrounding operation fails.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
	"github.com/ovaphlow/dinear/service-api/pkg/utilities"
)

const (
	// Field is the only form field a file may arrive on.
	Field = "image"

	DefaultMaxBytes int64 = 5 << 20
)

// Rejection messages.
const (
	MsgTooManyFiles   = "Too many files"
	MsgUnexpectedFile = "Unexpected file field"
	MsgInvalidType    = "Invalid file type. Only JPEG, PNG, and WebP images are allowed"
)

// extensions maps accepted content types to the stored file extension.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// TooLarge is the rejection for files or bodies above maxBytes.
func TooLarge(maxBytes int64) *apperr.Error {
	return apperr.UploadRejected(fmt.Sprintf("File size too large (max %dMB)", maxBytes>>20))
}

// Pending is an accepted file that has not been written anywhere yet.
type Pending struct {
	header      *multipart.FileHeader
	ContentType string
	Size        int64
}

// Asset names a stored image and its thumbnail. ThumbName equals Name when no
// separate thumbnail was produced.
type Asset struct {
	Name      string
	ThumbName string
}

type Uploader struct {
	storage  Storage
	maxBytes int64
	now      func() time.Time
	logger   *zap.SugaredLogger
}

func NewUploader(storage Storage, maxBytes int64, logger *zap.SugaredLogger) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Uploader{storage: storage, maxBytes: maxBytes, now: time.Now, logger: logger}
}

// MaxBytes is the per-file limit.
func (u *Uploader) MaxBytes() int64 { return u.maxBytes }

// Accept checks the files on form. It returns nil, nil when no file was sent.
func (u *Uploader) Accept(form *multipart.Form) (*Pending, error) {
	if form == nil {
		return nil, nil
	}
	var files []*multipart.FileHeader
	for field, fhs := range form.File {
		if len(fhs) == 0 {
			continue
		}
		if field != Field {
			return nil, apperr.UploadRejected(MsgUnexpectedFile)
		}
		files = append(files, fhs...)
	}
	switch {
	case len(files) == 0:
		return nil, nil
	case len(files) > 1:
		return nil, apperr.UploadRejected(MsgTooManyFiles)
	}

	fh := files[0]
	ct := contentType(fh)
	if _, ok := extensions[ct]; !ok {
		return nil, apperr.UploadRejected(MsgInvalidType)
	}
	if fh.Size > u.maxBytes {
		return nil, TooLarge(u.maxBytes)
	}
	return &Pending{header: fh, ContentType: ct, Size: fh.Size}, nil
}

func contentType(fh *multipart.FileHeader) string {
	mt, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// newName builds <unix-millis>-<ksuid><ext>. The client file name is never used.
func (u *Uploader) newName(ct string) string {
	return fmt.Sprintf("%d-%s%s", u.now().UnixMilli(), utilities.NewKSUID(), extensions[ct])
}

// Store writes the pending file and, for JPEG and PNG input, a thumbnail.
// A failed thumbnail is logged and the original is used in its place.
func (u *Uploader) Store(ctx context.Context, p *Pending) (*Asset, error) {
	f, err := p.header.Open()
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, u.maxBytes+1))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("read upload: %w", err))
	}
	if int64(len(data)) > u.maxBytes {
		return nil, TooLarge(u.maxBytes)
	}

	asset := &Asset{Name: u.newName(p.ContentType)}
	if err := u.storage.Put(ctx, asset.Name, bytes.NewReader(data), int64(len(data)), p.ContentType); err != nil {
		return nil, apperr.Internal(fmt.Errorf("store upload: %w", err))
	}
	asset.ThumbName = asset.Name

	thumb, err := Thumbnail(data, p.ContentType)
	switch {
	case err != nil:
		u.logger.Warnw("thumbnail failed, using original", "name", asset.Name, "err", err)
	case thumb != nil:
		name := ThumbName(asset.Name)
		if err := u.storage.Put(ctx, name, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
			u.logger.Warnw("thumbnail store failed, using original", "name", name, "err", err)
		} else {
			asset.ThumbName = name
		}
	}
	return asset, nil
}

// Discard deletes everything belonging to a. Failures are logged only.
func (u *Uploader) Discard(ctx context.Context, a *Asset) {
	if a == nil {
		return
	}
	names := []string{a.Name}
	if a.ThumbName != "" && a.ThumbName != a.Name {
		names = append(names, a.ThumbName)
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		if err := u.storage.Delete(ctx, n); err != nil {
			u.logger.Warnw("failed to delete stored file", "name", n, "err", err)
		}
	}
}

// PublicURL maps a stored name to the URL clients fetch it from.
func (u *Uploader) PublicURL(origin, name string) string {
	if name == "" {
		return ""
	}
	return u.storage.URL(origin, name)
}
