package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"trackitall/internal/core"
	"trackitall/internal/storage"
)

type storedExpense struct {
	e    core.Expense
	etag int
}

// fakeExpenseStore mimics the document store: partitioned by owner, etag
// checked on replace, and storage sentinel errors.
type fakeExpenseStore struct {
	mu       sync.Mutex
	items    map[string]storedExpense
	failWith error
	writes   int
	// beforeReplace runs inside Replace before the etag check.
	beforeReplace func()
}

func newFakeExpenseStore() *fakeExpenseStore {
	return &fakeExpenseStore{items: map[string]storedExpense{}}
}

func key(ownerID, id string) string { return ownerID + "/" + id }

func (f *fakeExpenseStore) Create(_ context.Context, e core.Expense) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	k := key(e.OwnerID, e.ID)
	if _, ok := f.items[k]; ok {
		return "", storage.ErrAlreadyExists
	}
	e.Category = nil
	f.items[k] = storedExpense{e: e, etag: 1}
	f.writes++
	return "1", nil
}

func (f *fakeExpenseStore) Get(_ context.Context, ownerID, id string) (core.Expense, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return core.Expense{}, "", f.failWith
	}
	it, ok := f.items[key(ownerID, id)]
	if !ok {
		return core.Expense{}, "", fmt.Errorf("get expense: %w", storage.ErrNotFound)
	}
	return it.e, strconv.Itoa(it.etag), nil
}

func (f *fakeExpenseStore) Replace(_ context.Context, e core.Expense, ifMatch string) (string, error) {
	if f.beforeReplace != nil {
		f.beforeReplace()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	k := key(e.OwnerID, e.ID)
	it, ok := f.items[k]
	if !ok {
		return "", storage.ErrNotFound
	}
	if ifMatch != "" && ifMatch != strconv.Itoa(it.etag) {
		return "", fmt.Errorf("replace expense: %w", storage.ErrPreconditionFailed)
	}
	e.Category = nil
	f.items[k] = storedExpense{e: e, etag: it.etag + 1}
	f.writes++
	return strconv.Itoa(it.etag + 1), nil
}

func (f *fakeExpenseStore) Delete(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	k := key(ownerID, id)
	if _, ok := f.items[k]; !ok {
		return storage.ErrNotFound
	}
	delete(f.items, k)
	f.writes++
	return nil
}

func (f *fakeExpenseStore) list(ownerID string, keep func(core.Expense) bool) ([]core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []core.Expense
	for _, it := range f.items {
		if it.e.OwnerID == ownerID && keep(it.e) {
			out = append(out, it.e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (f *fakeExpenseStore) ListByOwner(_ context.Context, ownerID string) ([]core.Expense, error) {
	return f.list(ownerID, func(core.Expense) bool { return true })
}

func (f *fakeExpenseStore) ListInRange(_ context.Context, ownerID string, start, end time.Time) ([]core.Expense, error) {
	return f.list(ownerID, func(e core.Expense) bool {
		return !e.Date.Before(start) && !e.Date.After(end)
	})
}

func (f *fakeExpenseStore) put(e core.Expense) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key(e.OwnerID, e.ID)] = storedExpense{e: e, etag: 1}
}

type staticCategories []core.Category

func (s staticCategories) Categories() []core.Category {
	out := make([]core.Category, len(s))
	copy(out, s)
	return out
}

type fakeBlobs struct {
	mu         sync.Mutex
	objects    map[string][]byte
	types      map[string]string
	signs      int
	failUpload error
	failDelete error
	failSign   error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobs) Upload(_ context.Context, name string, r io.Reader, contentType string) error {
	if f.failUpload != nil {
		return f.failUpload
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = b
	f.types[name] = contentType
	return nil
}

func (f *fakeBlobs) DeleteIfExists(_ context.Context, name string) (bool, error) {
	if f.failDelete != nil {
		return false, f.failDelete
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[name]
	delete(f.objects, name)
	return ok, nil
}

func (f *fakeBlobs) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[name]
	return ok, nil
}

func (f *fakeBlobs) SignedReadURL(_ context.Context, name string, validity time.Duration) (string, error) {
	if f.failSign != nil {
		return "", f.failSign
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signs++
	return fmt.Sprintf("https://blobs.test/%s?ttl=%d&sig=%d", name, int(validity.Seconds()), f.signs), nil
}

type sentMessage struct {
	queue string
	body  []byte
}

type fakeQueue struct {
	mu       sync.Mutex
	sent     []sentMessage
	failWith error
}

func (f *fakeQueue) Send(_ context.Context, queue string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.sent = append(f.sent, sentMessage{queue: queue, body: body})
	return nil
}

type fakeOnboarding struct {
	mu       sync.Mutex
	users    map[string]string
	readErr  error
	writeErr error
}

func newFakeOnboarding() *fakeOnboarding {
	return &fakeOnboarding{users: map[string]string{}}
}

func (f *fakeOnboarding) IsOnboarded(_ context.Context, oid string) (bool, error) {
	if f.readErr != nil {
		return false, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[oid]
	return ok, nil
}

func (f *fakeOnboarding) MarkOnboarded(_ context.Context, oid, email string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[oid] = email
	return nil
}

// fakeCategorySource counts loads and returns a fixed result.
type fakeCategorySource struct {
	mu    sync.Mutex
	cats  []core.Category
	err   error
	loads int
}

func (f *fakeCategorySource) ListCategories(context.Context) ([]core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return append([]core.Category(nil), f.cats...), nil
}

func (f *fakeCategorySource) set(cats []core.Category, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cats, f.err = cats, err
}

func (f *fakeCategorySource) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}
