package syncer

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/mmcdole/brewsync/internal/domain"
)

// fakeAPI is an in-memory EntityAPI. Errors queued with failNext are
// returned by the following calls in order.
type fakeAPI[T domain.Record[T], P domain.Patch[T]] struct {
	mu      sync.Mutex
	prefix  string
	nextID  int
	records map[string]T
	errs    []error
	calls   []string
}

func newFakeAPI[T domain.Record[T], P domain.Patch[T]](prefix string) *fakeAPI[T, P] {
	return &fakeAPI[T, P]{prefix: prefix, records: make(map[string]T)}
}

func (f *fakeAPI[T, P]) failNext(errs ...error) {
	f.mu.Lock()
	f.errs = append(f.errs, errs...)
	f.mu.Unlock()
}

func (f *fakeAPI[T, P]) popErr(call string) error {
	f.calls = append(f.calls, call)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeAPI[T, P]) get(id string) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

func (f *fakeAPI[T, P]) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI[T, P]) List(ctx context.Context) ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popErr("list"); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeAPI[T, P]) Create(ctx context.Context, record T) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popErr("create " + record.RecordID()); err != nil {
		var zero T
		return zero, err
	}
	f.nextID++
	created := record.WithID(fmt.Sprintf("%s-%d", f.prefix, f.nextID))
	f.records[created.RecordID()] = created
	return created, nil
}

func (f *fakeAPI[T, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	if err := f.popErr("update " + id); err != nil {
		return zero, err
	}
	r, ok := f.records[id]
	if !ok {
		return zero, &domain.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	r = patch.Apply(r)
	f.records[id] = r
	return r, nil
}

func (f *fakeAPI[T, P]) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popErr("delete " + id); err != nil {
		return err
	}
	if _, ok := f.records[id]; !ok {
		return &domain.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	delete(f.records, id)
	return nil
}
