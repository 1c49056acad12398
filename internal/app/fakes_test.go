package app_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"docaria/internal/domain"
)

// ---- connectivity ----

type fakeNet struct {
	online bool
	calls  atomic.Int32
}

func (n *fakeNet) Online(context.Context) bool {
	n.calls.Add(1)
	return n.online
}

// ---- places ----

type fakePlaces struct {
	places []domain.Place
	err    error
	calls  atomic.Int32
}

func (p *fakePlaces) Nearby(ctx context.Context, q domain.NearbyQuery) ([]domain.Place, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.places, nil
}

func place(id, name string, lat, lon float64, rating float64) domain.Place {
	return domain.Place{PlaceID: id, Name: name, Vicinity: "Street 1, Pittsburgh", Rating: &rating, Location: domain.Coords{Lat: lat, Lon: lon}}
}

// ---- document store ----

// fakeDocs serializes CommitReview behind one mutex, like a row lock would.
type fakeDocs struct {
	mu        sync.Mutex
	ests      map[string]domain.Establishment
	reviews   map[string]domain.Review
	users     map[string]domain.User
	commitErr error
	listErr   error
	calls     atomic.Int32
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		ests:    map[string]domain.Establishment{},
		reviews: map[string]domain.Review{},
		users:   map[string]domain.User{},
	}
}

func (d *fakeDocs) GetEstablishment(ctx context.Context, id string) (domain.Establishment, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.ests[id]
	if !ok {
		return domain.Establishment{}, domain.ErrNotFound
	}
	return e, nil
}

func (d *fakeDocs) MergeEstablishment(ctx context.Context, e domain.Establishment) error {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.ests[e.ID]; ok {
		e.AvgRating, e.TotalReviews = cur.AvgRating, cur.TotalReviews
	} else {
		e.AvgRating, e.TotalReviews = 0, 0
	}
	d.ests[e.ID] = e
	return nil
}

func (d *fakeDocs) CommitReview(ctx context.Context, r domain.Review) error {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.commitErr != nil {
		return d.commitErr
	}
	e, ok := d.ests[r.EstablishmentID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur, dup := d.reviews[r.ID]; dup {
		if cur.UserID != r.UserID || cur.EstablishmentID != r.EstablishmentID {
			return fmt.Errorf("review %s: %w", r.ID, domain.ErrConflict)
		}
		cur.ImageRef, cur.AudioRef = r.ImageRef, r.AudioRef
		d.reviews[r.ID] = cur
		return nil
	}
	d.reviews[r.ID] = r
	e.AvgRating, e.TotalReviews = domain.FoldRating(e.AvgRating, e.TotalReviews, r.Rating)
	d.ests[e.ID] = e
	return nil
}

func (d *fakeDocs) filter(keep func(domain.Review) bool) []domain.Review {
	var out []domain.Review
	for _, r := range d.reviews {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (d *fakeDocs) ListEstablishmentReviews(ctx context.Context, id string) ([]domain.Review, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.filter(func(r domain.Review) bool { return r.EstablishmentID == id }), nil
}

func (d *fakeDocs) ListUserReviews(ctx context.Context, userID string) ([]domain.Review, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.filter(func(r domain.Review) bool { return r.UserID == userID }), nil
}

func (d *fakeDocs) LastUserReview(ctx context.Context, userID, estID string) (*domain.Review, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	rs := d.filter(func(r domain.Review) bool { return r.UserID == userID && r.EstablishmentID == estID })
	if len(rs) == 0 {
		return nil, nil
	}
	return &rs[0], nil
}

func (d *fakeDocs) GetUser(ctx context.Context, id string) (domain.User, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (d *fakeDocs) PutUser(ctx context.Context, u domain.User) error {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
	return nil
}

// ---- blob store ----

type fakeBlobs struct {
	mu    sync.Mutex
	keys  []string
	fail  func(key string) bool
	calls atomic.Int32
}

func (b *fakeBlobs) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	b.calls.Add(1)
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	if b.fail != nil && b.fail(key) {
		return "", errors.New("upload refused")
	}
	b.mu.Lock()
	b.keys = append(b.keys, key)
	b.mu.Unlock()
	return "https://blobs.test/" + key, nil
}

func memOpener(path string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("bytes of " + path)), nil
}

// ---- local cache ----

type fakeLocal struct {
	mu      sync.Mutex
	ests    map[string]domain.Establishment
	reviews map[string]domain.Review
	visited map[domain.VisitedRelation]struct{}
	users   map[string]domain.User
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		ests:    map[string]domain.Establishment{},
		reviews: map[string]domain.Review{},
		visited: map[domain.VisitedRelation]struct{}{},
		users:   map[string]domain.User{},
	}
}

func (l *fakeLocal) UpsertEstablishments(ctx context.Context, es []domain.Establishment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range es {
		l.ests[e.ID] = e
	}
	return nil
}

func (l *fakeLocal) GetEstablishment(ctx context.Context, id string) (domain.Establishment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.ests[id]
	if !ok {
		return domain.Establishment{}, domain.ErrNotFound
	}
	return e, nil
}

func (l *fakeLocal) ListEstablishments(ctx context.Context) ([]domain.Establishment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Establishment, 0, len(l.ests))
	for _, e := range l.ests {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *fakeLocal) EstablishmentsByIDs(ctx context.Context, ids []string) ([]domain.Establishment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []domain.Establishment{}
	for _, id := range ids {
		if e, ok := l.ests[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLocal) UpsertReviews(ctx context.Context, rs []domain.Review) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rs {
		l.reviews[r.ID] = r
	}
	return nil
}

func (l *fakeLocal) GetReview(ctx context.Context, id string) (domain.Review, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return r, nil
}

func (l *fakeLocal) pick(keep func(domain.Review) bool) []domain.Review {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []domain.Review{}
	for _, r := range l.reviews {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (l *fakeLocal) ReviewsByEstablishment(ctx context.Context, id string) ([]domain.Review, error) {
	return l.pick(func(r domain.Review) bool { return r.EstablishmentID == id }), nil
}

func (l *fakeLocal) ReviewsByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	return l.pick(func(r domain.Review) bool { return r.UserID == userID }), nil
}

func (l *fakeLocal) PendingReviews(ctx context.Context) ([]domain.Review, error) {
	return l.pick(func(r domain.Review) bool { return !r.Synced }), nil
}

func (l *fakeLocal) LastUserReview(ctx context.Context, userID, estID string) (*domain.Review, error) {
	rs := l.pick(func(r domain.Review) bool { return r.UserID == userID && r.EstablishmentID == estID })
	if len(rs) == 0 {
		return nil, nil
	}
	return &rs[0], nil
}

func (l *fakeLocal) ReplaceSyncedUserReviews(ctx context.Context, userID string, rs []domain.Review) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, r := range l.reviews {
		if r.UserID == userID && r.Synced {
			delete(l.reviews, id)
		}
	}
	for _, r := range rs {
		l.reviews[r.ID] = r
	}
	return nil
}

func (l *fakeLocal) DeleteReview(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reviews, id)
	return nil
}

func (l *fakeLocal) DeleteAllReviews(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reviews = map[string]domain.Review{}
	return nil
}

func (l *fakeLocal) UpsertVisited(ctx context.Context, rels []domain.VisitedRelation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rels {
		l.visited[r] = struct{}{}
	}
	return nil
}

func (l *fakeLocal) VisitedEstablishmentIDs(ctx context.Context, userID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for r := range l.visited {
		if r.UserID == userID {
			ids = append(ids, r.EstablishmentID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *fakeLocal) UpsertUser(ctx context.Context, u domain.User) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[u.ID] = u
	return nil
}

func (l *fakeLocal) GetUser(ctx context.Context, id string) (domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

// ---- response cache ----

type memCache struct {
	mu     sync.Mutex
	store  map[string]any
	err    error
	getErr error // fails reads only, like an undecodable entry
	dels   []string
}

func (c *memCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.getErr != nil {
		return false, c.getErr
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	*(dst.(*[]domain.Place)) = v.([]domain.Place)
	return true, nil
}

func (c *memCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *memCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dels = append(c.dels, key)
	if c.err != nil {
		return c.err
	}
	delete(c.store, key)
	return nil
}
