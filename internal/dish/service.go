// Package dish runs the ownership-enforcing create, read, update and delete
// pipeline for dishes, keeping stored images consistent with the records.
package dish

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
	"github.com/ovaphlow/dinear/service-api/internal/dish/entity"
	dishrepo "github.com/ovaphlow/dinear/service-api/internal/dish/repo"
	"github.com/ovaphlow/dinear/service-api/internal/upload"
)

// Client-facing messages.
const (
	MsgNotFound        = "Dish not found"
	MsgForbiddenUpdate = "Not authorized to update this dish"
	MsgForbiddenDelete = "Not authorized to delete this dish"
	MsgImageRequired   = "Image is required"
)

// Repository is the storage the service needs; *repo.DishRepo implements it.
type Repository interface {
	Insert(ctx context.Context, d *entity.Dish) error
	GetByID(ctx context.Context, id string) (*entity.Dish, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]entity.Dish, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Update(ctx context.Context, d *entity.Dish) error
	Delete(ctx context.Context, id, ownerID string) error
}

// Assets persists and removes images; *upload.Uploader implements it.
type Assets interface {
	Store(ctx context.Context, p *upload.Pending) (*upload.Asset, error)
	Discard(ctx context.Context, a *upload.Asset)
	PublicURL(origin, name string) string
}

// QRGenerator renders the viewer link; *qr.Generator implements it.
type QRGenerator interface {
	DataURL(content string) (string, error)
}

type IDSource interface {
	NewID() string
}

type Service struct {
	repo      Repository
	assets    Assets
	qr        QRGenerator
	ids       IDSource
	clientURL string
	logger    *zap.SugaredLogger
}

// NewService wires the pipeline. clientURL is the base of the AR viewer that
// QR codes point at.
func NewService(repo Repository, assets Assets, qr QRGenerator, ids IDSource, clientURL string, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		repo:      repo,
		assets:    assets,
		qr:        qr,
		ids:       ids,
		clientURL: strings.TrimRight(clientURL, "/"),
		logger:    logger,
	}
}

// CreateInput is a validated create request. Origin is the request's
// scheme://host, used for local asset URLs.
type CreateInput struct {
	OwnerID   string
	Name      string
	PlateSize string
	Image     *upload.Pending
	Origin    string
}

// UpdateInput carries only the fields to change. Image is optional.
type UpdateInput struct {
	ID        string
	CallerID  string
	Name      *string
	PlateSize *string
	Image     *upload.Pending
	Origin    string
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type ListResult struct {
	Dishes     []entity.Dish `json:"dishes"`
	Pagination Pagination    `json:"pagination"`
}

// ViewerURL is the AR viewer address encoded in a dish's QR code.
func (s *Service) ViewerURL(id string) string {
	return s.clientURL + "/ar/" + id
}

// Create stores the image, then writes the record. If the write fails the
// stored image is discarded. A QR failure leaves the payload empty.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Dish, error) {
	if in.Image == nil {
		return nil, apperr.Validation(apperr.FieldError{Field: upload.Field, Message: MsgImageRequired})
	}
	asset, err := s.assets.Store(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	d := &entity.Dish{
		ID:           s.ids.NewID(),
		OwnerID:      in.OwnerID,
		Name:         in.Name,
		PlateSize:    in.PlateSize,
		ThumbnailURL: s.assets.PublicURL(in.Origin, asset.ThumbName),
		ModelURL:     s.assets.PublicURL(in.Origin, asset.Name),
		ImageKey:     asset.Name,
		ThumbnailKey: asset.ThumbName,
	}
	if payload, err := s.qr.DataURL(s.ViewerURL(d.ID)); err != nil {
		s.logger.Warnw("qr generation failed", "dish_id", d.ID, "err", err)
	} else {
		d.QRPayloadURL = &payload
	}

	if err := s.repo.Insert(ctx, d); err != nil {
		s.assets.Discard(ctx, asset)
		return nil, apperr.Internal(err)
	}
	s.logger.Infow("dish created", "dish_id", d.ID, "owner_id", d.OwnerID)
	return d, nil
}

// Get is open to anonymous callers.
func (s *Service) Get(ctx context.Context, id string) (*entity.Dish, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, dishrepo.ErrNotFound) {
			return nil, apperr.NotFound(MsgNotFound)
		}
		return nil, apperr.Internal(err)
	}
	return d, nil
}

// List returns one page of the owner's dishes, newest first.
func (s *Service) List(ctx context.Context, ownerID string, page, limit int) (*ListResult, error) {
	page = max(page, 1)
	limit = max(limit, 1)
	total, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	dishes, err := s.repo.ListByOwner(ctx, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if dishes == nil {
		dishes = []entity.Dish{}
	}
	return &ListResult{
		Dishes: dishes,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

// owned loads the dish and checks the caller against the stored owner.
func (s *Service) owned(ctx context.Context, id, callerID, forbidden string) (*entity.Dish, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID == "" || d.OwnerID != callerID {
		return nil, apperr.Authorization(forbidden)
	}
	return d, nil
}

// Update applies the change for the owner only. With a replacement image the
// old files are removed after the write succeeds; on failure the new ones are.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*entity.Dish, error) {
	d, err := s.owned(ctx, in.ID, in.CallerID, MsgForbiddenUpdate)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		d.Name = *in.Name
	}
	if in.PlateSize != nil {
		d.PlateSize = *in.PlateSize
	}

	var fresh, stale *upload.Asset
	if in.Image != nil {
		fresh, err = s.assets.Store(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		stale = &upload.Asset{Name: d.ImageKey, ThumbName: d.ThumbnailKey}
		d.ImageKey, d.ThumbnailKey = fresh.Name, fresh.ThumbName
		d.ThumbnailURL = s.assets.PublicURL(in.Origin, fresh.ThumbName)
		d.ModelURL = s.assets.PublicURL(in.Origin, fresh.Name)
	}

	if err := s.repo.Update(ctx, d); err != nil {
		s.assets.Discard(ctx, fresh)
		if errors.Is(err, dishrepo.ErrNotFound) {
			return nil, apperr.NotFound(MsgNotFound)
		}
		return nil, apperr.Internal(err)
	}
	s.assets.Discard(ctx, stale)
	return d, nil
}

// Delete removes the record for the owner only, then its files. File removal
// never changes the outcome.
func (s *Service) Delete(ctx context.Context, id, callerID string) error {
	d, err := s.owned(ctx, id, callerID, MsgForbiddenDelete)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, d.ID, d.OwnerID); err != nil {
		if errors.Is(err, dishrepo.ErrNotFound) {
			return apperr.NotFound(MsgNotFound)
		}
		return apperr.Internal(err)
	}
	s.assets.Discard(ctx, &upload.Asset{Name: d.ImageKey, ThumbName: d.ThumbnailKey})
	s.logger.Infow("dish deleted", "dish_id", d.ID, "owner_id", d.OwnerID)
	return nil
}
