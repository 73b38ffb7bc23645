package user

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ovaphlow/dinear/service-api/internal/user/entity"
	userrepo "github.com/ovaphlow/dinear/service-api/internal/user/repo"
)

// memRepo is an in-memory Repository keyed by lower-cased email.
type memRepo struct {
	mu      sync.Mutex
	byID    map[string]*entity.User
	byEmail map[string]*entity.User
	err     error
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*entity.User{}, byEmail: map[string]*entity.User{}}
}

func (m *memRepo) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byEmail[u.Email]; ok {
		return userrepo.ErrEmailTaken
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.byID[u.ID] = &cp
	m.byEmail[u.Email] = &cp
	return nil
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byEmail[email]
	if !ok {
		return nil, userrepo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, userrepo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.byEmail[email]
	return ok, nil
}

func (m *memRepo) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		delete(m.byEmail, u.Email)
		delete(m.byID, id)
	}
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string { return strconv.FormatInt(1000+s.n.Add(1), 10) }

// countingHasher records how many hashes and comparisons ran.
type countingHasher struct {
	BcryptHasher
	hashes   atomic.Int32
	verifies atomic.Int32
}

func (c *countingHasher) Hash(pw string) (string, error) {
	c.hashes.Add(1)
	return c.BcryptHasher.Hash(pw)
}

func (c *countingHasher) Verify(hash, pw string) bool {
	c.verifies.Add(1)
	return c.BcryptHasher.Verify(hash, pw)
}

var errDB = errors.New("db down")
