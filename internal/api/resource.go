package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/rbacdash/internal/audit"
	"github.com/foxzi/rbacdash/internal/collection"
	"github.com/foxzi/rbacdash/internal/export"
)

// ListResponse is the response for GET /{entity}
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
	Total int `json:"total"`
}

// DeleteResponse is the response for DELETE /{entity}/{id}
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// ActivityResponse is the response for GET /{entity}/activity
type ActivityResponse struct {
	Entries audit.Log `json:"entries"`
}

// guard runs before every handler of a resource and reports whether the
// request may proceed
type guard func(w http.ResponseWriter, r *http.Request) bool

// resource serves one managed collection
type resource[T any] struct {
	s      *Server
	entity string
	m      *collection.Manager[T]
	guard  guard
}

func mountResource[T any](r chi.Router, s *Server, entity string, m *collection.Manager[T], g guard) {
	res := &resource[T]{s: s, entity: entity, m: m, guard: g}

	r.Route("/"+entity, func(r chi.Router) {
		if g != nil {
			r.Use(res.guardMiddleware)
		}
		r.Get("/", res.list)
		r.Post("/", res.create)
		r.Get("/export", res.export)
		r.Get("/activity", res.activity)
		r.Get("/{id}", res.get)
		r.Put("/{id}", res.update)
		r.Delete("/{id}", res.delete)
	})
}

func (res *resource[T]) guardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if res.guard(w, r) {
			next.ServeHTTP(w, r)
		}
	})
}

// query builds a projection query from search, sort, dir and the
// collection's filter parameters
func (res *resource[T]) query(r *http.Request) collection.Query {
	params := r.URL.Query()

	q := collection.Query{
		Search: params.Get("search"),
		Sort: collection.Sort{
			Key:       params.Get("sort"),
			Direction: collection.ParseDirection(params.Get("dir")),
		},
	}

	for name := range res.m.Schema().Filters {
		if v := params.Get(name); v != "" {
			if q.Filters == nil {
				q.Filters = make(map[string]string)
			}
			q.Filters[name] = v
		}
	}
	return q
}

func (res *resource[T]) list(w http.ResponseWriter, r *http.Request) {
	items, err := res.m.View(res.query(r))
	if err != nil {
		res.s.sendServiceError(w, err)
		return
	}

	res.s.sendJSON(w, http.StatusOK, ListResponse[T]{
		Items: items,
		Count: len(items),
		Total: res.m.Len(),
	})
}

func (res *resource[T]) get(w http.ResponseWriter, r *http.Request) {
	id, ok := res.id(w, r)
	if !ok {
		return
	}

	rec, found := res.m.Get(id)
	if !found {
		res.s.sendError(w, http.StatusNotFound, "Record not found")
		return
	}
	res.s.sendJSON(w, http.StatusOK, rec)
}

func (res *resource[T]) create(w http.ResponseWriter, r *http.Request) {
	draft := res.m.NewDraft()
	if err := json.NewDecoder(r.Body).Decode(&draft.Value); err != nil {
		res.s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := res.m.Commit(r.Context(), draft)
	if err != nil {
		res.s.sendServiceError(w, err)
		return
	}

	res.s.logger.Debug("record created via API", "collection", res.entity, "by", principal(r.Context()))
	res.s.sendJSON(w, http.StatusCreated, rec)
}

func (res *resource[T]) update(w http.ResponseWriter, r *http.Request) {
	id, ok := res.id(w, r)
	if !ok {
		return
	}

	draft, err := res.m.Edit(id)
	if err != nil {
		res.s.sendServiceError(w, err)
		return
	}

	// The body replaces the draft; fields it omits keep their zero value
	// and are filled from the stored record where the schema merges them
	var zero T
	draft.Value = zero
	if err := json.NewDecoder(r.Body).Decode(&draft.Value); err != nil {
		res.s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := res.m.Commit(r.Context(), draft)
	if err != nil {
		res.s.sendServiceError(w, err)
		return
	}
	res.s.sendJSON(w, http.StatusOK, rec)
}

func (res *resource[T]) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := res.id(w, r)
	if !ok {
		return
	}

	deleted, err := res.m.Delete(r.Context(), id)
	if err != nil {
		res.s.sendServiceError(w, err)
		return
	}
	res.s.sendJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
}

func (res *resource[T]) export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	name, err := res.s.svc.Export(r.Context(), res.entity, res.query(r), &buf)
	if err != nil {
		res.s.sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (res *resource[T]) activity(w http.ResponseWriter, r *http.Request) {
	limit := res.s.recentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			res.s.sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	res.s.sendJSON(w, http.StatusOK, ActivityResponse{Entries: res.m.Activity(limit)})
}

func (res *resource[T]) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		res.s.sendError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
