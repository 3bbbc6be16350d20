package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// UserFunc resolves the authenticated user for a request. It returns an
// empty string when the request is unauthenticated.
type UserFunc func(r *http.Request) string

// HeaderUser resolves the user from the X-User-ID header.
func HeaderUser(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// API serves the store HTTP endpoints. Every request is scoped to its
// authenticated user: requests without an explicit namespace operate on the
// user's private ["users", <id>] namespace.
type API struct {
	store  Store
	user   UserFunc
	logger *slog.Logger
}

// NewAPI creates the store API handler set. user defaults to HeaderUser,
// logger to slog.Default().
func NewAPI(s Store, user UserFunc, logger *slog.Logger) *API {
	if user == nil {
		user = HeaderUser
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{store: s, user: user, logger: logger}
}

// Register mounts the store endpoints on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("PUT /store/items", a.handlePut)
	mux.HandleFunc("GET /store/items", a.handleGet)
	mux.HandleFunc("DELETE /store/items", a.handleDelete)
	mux.HandleFunc("POST /store/items/search", a.handleSearch)
}

type putRequest struct {
	Namespace []string       `json:"namespace"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
}

type getResponse struct {
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	Namespace []string       `json:"namespace"`
}

type deleteRequest struct {
	Namespace []string `json:"namespace"`
	Key       string   `json:"key"`
}

type searchRequest struct {
	NamespacePrefix []string `json:"namespace_prefix"`
	Query           string   `json:"query"`
	Limit           int      `json:"limit"`
	Offset          int      `json:"offset"`
}

type searchResponse struct {
	Items  []searchItem `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type searchItem struct {
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	Namespace []string       `json:"namespace"`
}

func (a *API) handlePut(w http.ResponseWriter, r *http.Request) {
	user, ok := a.authenticate(w, r)
	if !ok {
		return
	}

	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		httpError(w, http.StatusUnprocessableEntity, "missing 'key'")
		return
	}
	if err := validateNamespace(req.Namespace); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	namespace := ScopeNamespace(user, req.Namespace)
	if err := a.store.Put(r.Context(), namespace, req.Key, req.Value); err != nil {
		a.logger.Error("store put failed", "namespace", namespace, "key", req.Key, "error", err)
		httpError(w, http.StatusInternalServerError, "store failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := a.authenticate(w, r)
	if !ok {
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		httpError(w, http.StatusUnprocessableEntity, "missing 'key' parameter")
		return
	}
	namespace := ScopeNamespace(user, namespaceFromQuery(r))

	item, err := a.store.Get(r.Context(), namespace, key)
	if errors.Is(err, ErrNotFound) {
		httpError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		a.logger.Error("store get failed", "namespace", namespace, "key", key, "error", err)
		httpError(w, http.StatusInternalServerError, "store failure")
		return
	}
	writeJSON(w, http.StatusOK, getResponse{Key: key, Value: item.Value, Namespace: namespace})
}

// handleDelete accepts both the JSON body form {namespace, key} and query
// parameters for manual use.
func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := a.authenticate(w, r)
	if !ok {
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		req.Key = r.URL.Query().Get("key")
		req.Namespace = namespaceFromQuery(r)
	}
	if req.Key == "" {
		httpError(w, http.StatusUnprocessableEntity, "missing 'key' parameter")
		return
	}

	namespace := ScopeNamespace(user, req.Namespace)
	if err := a.store.Delete(r.Context(), namespace, req.Key); err != nil {
		a.logger.Error("store delete failed", "namespace", namespace, "key", req.Key, "error", err)
		httpError(w, http.StatusInternalServerError, "store failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	user, ok := a.authenticate(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	prefix := ScopeNamespace(user, req.NamespacePrefix)
	results, err := a.store.Search(r.Context(), prefix, req.Query, req.Limit, req.Offset)
	if err != nil {
		a.logger.Error("store search failed", "namespace", prefix, "error", err)
		httpError(w, http.StatusInternalServerError, "store failure")
		return
	}

	items := make([]searchItem, len(results))
	for i, item := range results {
		items[i] = searchItem{Key: item.Key, Value: item.Value, Namespace: item.Namespace}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Items:  items,
		Total:  len(items),
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

func (a *API) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := a.user(r)
	if user == "" {
		httpError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return user, true
}

// namespaceFromQuery accepts repeated namespace parameters or a single
// dotted path, matching both client conventions.
func namespaceFromQuery(r *http.Request) []string {
	values := r.URL.Query()["namespace"]
	if len(values) == 1 && strings.Contains(values[0], ".") {
		var parts []string
		for _, part := range strings.Split(values[0], ".") {
			if part != "" {
				parts = append(parts, part)
			}
		}
		return parts
	}
	var parts []string
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return parts
}

func validateNamespace(namespace []string) error {
	for _, part := range namespace {
		if part == "" {
			return errors.New("namespace parts must be non-empty")
		}
		if strings.Contains(part, namespaceSeparator) {
			return errors.New("namespace parts must not contain '/'")
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
