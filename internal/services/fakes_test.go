package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/boatfuel/fueltracker/internal/storage"
	"github.com/boatfuel/fueltracker/internal/store"
	"github.com/boatfuel/fueltracker/internal/txn"
	"github.com/boatfuel/fueltracker/types"
)

// fakeRunner runs work inline and fires hooks like txn.Runner does.
type fakeRunner struct {
	err error
}

func (r *fakeRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx txn.DBTX) error, extra ...txn.Hooks) error {
	if r.err != nil {
		return r.err
	}
	for _, h := range extra {
		if h.Begin != nil {
			h.Begin(ctx)
		}
	}
	if err := fn(ctx, nil); err != nil {
		for _, h := range extra {
			if h.AfterCommit != nil {
				h.AfterCommit(ctx, false)
			}
		}
		return err
	}
	for _, h := range extra {
		if h.BeforeCommit != nil {
			h.BeforeCommit(ctx)
		}
	}
	for _, h := range extra {
		if h.AfterCommit != nil {
			h.AfterCommit(ctx, true)
		}
	}
	return nil
}

func (r *fakeRunner) Run(ctx context.Context, fn func(ctx context.Context, db txn.DBTX) error) error {
	if r.err != nil {
		return r.err
	}
	return fn(ctx, nil)
}

type fakeFuelUpRepo struct {
	mu        sync.Mutex
	nextID    int64
	items     map[int64]types.FuelUp
	createErr error
	listErr   error
	creates   int
}

func newFakeFuelUpRepo() *fakeFuelUpRepo {
	return &fakeFuelUpRepo{items: make(map[int64]types.FuelUp)}
}

func (r *fakeFuelUpRepo) factory() func(txn.DBTX) FuelUpRepository {
	return func(txn.DBTX) FuelUpRepository { return r }
}

func (r *fakeFuelUpRepo) Create(_ context.Context, f types.FuelUp) (types.FuelUp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return types.FuelUp{}, r.createErr
	}
	r.nextID++
	f.ID = r.nextID
	f.CreatedAt = time.Now()
	r.items[f.ID] = f
	return f, nil
}

func (r *fakeFuelUpRepo) Get(_ context.Context, id int64) (types.FuelUp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.items[id]
	if !ok {
		return types.FuelUp{}, store.ErrNotFound
	}
	return f, nil
}

func (r *fakeFuelUpRepo) ListByUser(_ context.Context, userID string) ([]types.FuelUp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]types.FuelUp, 0)
	for _, f := range r.items {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeFuelUpRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

type fakeEvents struct {
	created []types.FuelUp
	deleted []types.FuelUp
	err     error
}

func (e *fakeEvents) FuelUpCreated(_ context.Context, f types.FuelUp) error {
	e.created = append(e.created, f)
	return e.err
}

func (e *fakeEvents) FuelUpDeleted(_ context.Context, f types.FuelUp) error {
	e.deleted = append(e.deleted, f)
	return e.err
}

type fakeObjectStore struct {
	key         string
	body        []byte
	contentType string
	deleted     []string
}

func (s *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.key, s.body, s.contentType = key, data, contentType
	return nil
}

func (s *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if key != s.key {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(s.body)), nil
}

func (s *fakeObjectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	if key != s.key {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(s.body)), ContentType: s.contentType}, nil
}

func (s *fakeObjectStore) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	if key == s.key {
		s.key, s.body = "", nil
	}
	return nil
}

type fakeUserRepo struct {
	byID       map[string]types.User
	createErr  error
	lastLogins map[string]time.Time
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:       make(map[string]types.User),
		lastLogins: make(map[string]time.Time),
	}
}

func (r *fakeUserRepo) factory() func(txn.DBTX) UserRepository {
	return func(txn.DBTX) UserRepository { return r }
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, u := range r.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	if r.createErr != nil {
		return types.User{}, r.createErr
	}
	for _, u := range r.byID {
		if u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.CreatedAt = time.Now()
	r.byID[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	if _, ok := r.byID[id]; !ok {
		return store.ErrNotFound
	}
	r.lastLogins[id] = at
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

type countingRecorder struct {
	created, deleted int
	failed           []string
}

func (c *countingRecorder) FuelUpCreated()         { c.created++ }
func (c *countingRecorder) FuelUpDeleted()         { c.deleted++ }
func (c *countingRecorder) FuelUpFailed(op string) { c.failed = append(c.failed, op) }
