package user

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
	"github.com/ovaphlow/dinear/service-api/internal/auth"
	"github.com/ovaphlow/dinear/service-api/internal/user/entity"
	userrepo "github.com/ovaphlow/dinear/service-api/internal/user/repo"
	"github.com/ovaphlow/dinear/service-api/internal/validate"
)

// Client-facing messages.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgEmailTaken         = "Email already registered"
	MsgUserNotFound       = "User not found"
)

// Repository is the storage the service needs; *repo.UserRepo implements it.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation. Zero Cost means DefaultCost.
type BcryptHasher struct{ Cost int }

// DefaultBcryptCost matches the work factor existing hashes were created with.
const DefaultBcryptCost = 12

// MaxBcryptBytes is the longest input bcrypt reads. Longer passwords are cut
// to this length on both Hash and Verify, as existing hashes were.
const MaxBcryptBytes = 72

func bcryptInput(pw string) []byte {
	b := []byte(pw)
	if len(b) > MaxBcryptBytes {
		b = b[:MaxBcryptBytes]
	}
	return b
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	h, err := bcrypt.GenerateFromPassword(bcryptInput(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(pw)) == nil
}

// IDSource mints record ids.
type IDSource interface {
	NewID() string
}

// Service orchestrates signup, login and identity lookup.
type Service struct {
	repo   Repository
	hasher PasswordHasher
	ids    IDSource
	logger *zap.SugaredLogger

	// dummyHash is compared against when the email is unknown.
	dummyHash string
}

func NewService(repo Repository, hasher PasswordHasher, ids IDSource, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: DefaultBcryptCost}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Service{repo: repo, hasher: hasher, ids: ids, logger: logger}
	h, err := hasher.Hash("dinear-timing-equalizer")
	if err != nil {
		logger.Warnw("dummy hash failed", "err", err)
	}
	s.dummyHash = h
	return s
}

// Signup creates an identity. Both the pre-check and the unique index report
// a taken email as Conflict.
func (s *Service) Signup(ctx context.Context, email, password string) (*entity.User, error) {
	email = validate.NormalizeEmail(email)
	taken, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if taken {
		return nil, apperr.Conflict(MsgEmailTaken)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	u := &entity.User{ID: s.ids.NewID(), Email: email, PasswordHash: hash}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return nil, apperr.Conflict(MsgEmailTaken)
		}
		return nil, apperr.Internal(err)
	}
	s.logger.Infow("user signed up", "user_id", u.ID)
	return u, nil
}

// Authenticate checks a password. Unknown email and wrong password give the
// same error, and an unknown email still pays for one hash comparison.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := s.repo.GetByEmail(ctx, validate.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			s.hasher.Verify(s.dummyHash, password)
			return nil, apperr.Authentication(MsgInvalidCredentials)
		}
		return nil, apperr.Internal(err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, apperr.Authentication(MsgInvalidCredentials)
	}
	return u, nil
}

// Get returns the identity or NotFound.
func (s *Service) Get(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, apperr.NotFound(MsgUserNotFound)
		}
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// ResolveIdentity implements auth.Resolver.
func (s *Service) ResolveIdentity(ctx context.Context, id string) (*auth.Identity, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, auth.ErrIdentityNotFound
		}
		return nil, err
	}
	return &auth.Identity{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}, nil
}
