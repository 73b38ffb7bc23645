package dish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ovaphlow/dinear/service-api/internal/dish/entity"
	dishrepo "github.com/ovaphlow/dinear/service-api/internal/dish/repo"
	"github.com/ovaphlow/dinear/service-api/internal/upload"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	mu        sync.Mutex
	rows      map[string]entity.Dish
	insertErr error
	updateErr error
	deleteErr error
	clock     time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]entity.Dish{}, clock: time.Unix(1_700_000_000, 0)}
}

func (m *memRepo) Insert(_ context.Context, d *entity.Dish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.clock = m.clock.Add(time.Second)
	d.CreatedAt, d.UpdatedAt = m.clock, m.clock
	m.rows[d.ID] = *d
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*entity.Dish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, dishrepo.ErrNotFound
	}
	return &d, nil
}

func (m *memRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]entity.Dish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []entity.Dish
	for _, d := range m.rows {
		if d.OwnerID == ownerID {
			all = append(all, d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (m *memRepo) CountByOwner(_ context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.rows {
		if d.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Update(_ context.Context, d *entity.Dish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cur, ok := m.rows[d.ID]
	if !ok || cur.OwnerID != d.OwnerID {
		return dishrepo.ErrNotFound
	}
	m.rows[d.ID] = *d
	return nil
}

func (m *memRepo) Delete(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	cur, ok := m.rows[id]
	if !ok || cur.OwnerID != ownerID {
		return dishrepo.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

// fakeAssets records stores and discards in order.
type fakeAssets struct {
	mu       sync.Mutex
	n        int
	live     map[string]bool
	events   []string
	storeErr error
}

func newFakeAssets() *fakeAssets { return &fakeAssets{live: map[string]bool{}} }

func (f *fakeAssets) Store(_ context.Context, _ *upload.Pending) (*upload.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	f.n++
	a := &upload.Asset{Name: fmt.Sprintf("img%d.png", f.n), ThumbName: fmt.Sprintf("img%d-thumb.jpg", f.n)}
	f.live[a.Name], f.live[a.ThumbName] = true, true
	f.events = append(f.events, "store:"+a.Name)
	return a, nil
}

func (f *fakeAssets) Discard(_ context.Context, a *upload.Asset) {
	if a == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, a.Name)
	delete(f.live, a.ThumbName)
	f.events = append(f.events, "discard:"+a.Name)
}

func (f *fakeAssets) PublicURL(origin, name string) string { return origin + "/uploads/" + name }

func (f *fakeAssets) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

type fakeQR struct{ err error }

func (q fakeQR) DataURL(content string) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	return "data:image/png;base64," + content, nil
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string { return strconv.FormatInt(1_000_000+s.n.Add(1), 10) }

var errDB = errors.New("db down")
