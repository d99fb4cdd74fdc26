package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mmcdole/brewsync/internal/domain"
)

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// resource serves CRUD for one entity type, partitioned by user.
type resource[T domain.Record[T], P domain.Patch[T]] struct {
	srv *Server
	// check returns a rejection message for records that reference
	// something the user does not own.
	check func(userID string, record T) string

	mu      sync.Mutex
	records map[string]map[string]T
	order   map[string][]string
}

func newResource[T domain.Record[T], P domain.Patch[T]](srv *Server, check func(string, T) string) *resource[T, P] {
	return &resource[T, P]{
		srv:     srv,
		check:   check,
		records: make(map[string]map[string]T),
		order:   make(map[string][]string),
	}
}

func (res *resource[T, P]) get(userID, id string) (T, bool) {
	res.mu.Lock()
	defer res.mu.Unlock()
	r, ok := res.records[userID][id]
	return r, ok
}

func (res *resource[T, P]) list(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	writeJSON(w, http.StatusOK, res.all(userID))
}

func (res *resource[T, P]) create(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var record T
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := record.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if res.check != nil {
		if msg := res.check(userID, record); msg != "" {
			writeError(w, http.StatusUnprocessableEntity, msg)
			return
		}
	}

	// Client ids are local placeholders; the server always assigns its own.
	record = record.WithID(uuid.NewString())

	res.mu.Lock()
	if res.records[userID] == nil {
		res.records[userID] = make(map[string]T)
	}
	res.records[userID][record.RecordID()] = record
	res.order[userID] = append(res.order[userID], record.RecordID())
	res.mu.Unlock()

	res.srv.logger.Debug("created", "entity", record.EntityType(), "id", record.RecordID(), "user", userID)
	writeJSON(w, http.StatusCreated, record)
}

func (res *resource[T, P]) update(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	id := mux.Vars(r)["id"]

	var patch P
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res.mu.Lock()
	defer res.mu.Unlock()

	current, ok := res.records[userID][id]
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	updated := patch.Apply(current)
	if err := updated.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res.records[userID][id] = updated
	writeJSON(w, http.StatusOK, updated)
}

func (res *resource[T, P]) remove(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	id := mux.Vars(r)["id"]

	res.mu.Lock()
	defer res.mu.Unlock()

	if _, ok := res.records[userID][id]; !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	delete(res.records[userID], id)
	ids := res.order[userID]
	for i, v := range ids {
		if v == id {
			res.order[userID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// seed stores records for userID as if they had been created through the API.
func (res *resource[T, P]) seed(userID string, records ...T) {
	res.mu.Lock()
	defer res.mu.Unlock()
	if res.records[userID] == nil {
		res.records[userID] = make(map[string]T)
	}
	for _, r := range records {
		if _, exists := res.records[userID][r.RecordID()]; !exists {
			res.order[userID] = append(res.order[userID], r.RecordID())
		}
		res.records[userID][r.RecordID()] = r
	}
}

func (res *resource[T, P]) all(userID string) []T {
	res.mu.Lock()
	defer res.mu.Unlock()
	out := make([]T, 0, len(res.order[userID]))
	for _, id := range res.order[userID] {
		out = append(out, res.records[userID][id])
	}
	return out
}
