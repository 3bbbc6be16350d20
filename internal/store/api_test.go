package store

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	s := newTestStore(t)
	mux := http.NewServeMux()
	NewAPI(s, nil, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, user string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPIPutGetDelete(t *testing.T) {
	srv := newTestAPI(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/store/items", map[string]any{
		"namespace": []string{"knowledge", "asst-1"},
		"key":       "k1",
		"value":     map[string]any{"title": "Dragons"},
	}, "u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/store/items?key=k1&namespace=knowledge.asst-1", nil, "u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got getResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Value["title"] != "Dragons" {
		t.Fatalf("value = %v", got.Value)
	}
	// The reported namespace is the user-scoped one.
	if len(got.Namespace) != 4 || got.Namespace[0] != "users" || got.Namespace[1] != "u1" {
		t.Fatalf("namespace = %v", got.Namespace)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/store/items", map[string]any{
		"namespace": []string{"knowledge", "asst-1"},
		"key":       "k1",
	}, "u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/store/items?key=k1&namespace=knowledge.asst-1", nil, "u1")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIDefaultsToUserNamespace(t *testing.T) {
	srv := newTestAPI(t)

	doJSON(t, http.MethodPut, srv.URL+"/store/items", map[string]any{
		"key":   "private",
		"value": map[string]any{"note": "mine"},
	}, "alice")

	// Same key without namespace resolves per user.
	resp := doJSON(t, http.MethodGet, srv.URL+"/store/items?key=private", nil, "alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner get status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/store/items?key=private", nil, "bob")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("other user get status = %d, want 404", resp.StatusCode)
	}
}

func TestAPISearch(t *testing.T) {
	srv := newTestAPI(t)

	for key, content := range map[string]string{
		"a": "dragons breathe fire",
		"b": "knights wear armor",
	} {
		doJSON(t, http.MethodPut, srv.URL+"/store/items", map[string]any{
			"namespace": []string{"knowledge", "asst-1"},
			"key":       key,
			"value":     map[string]any{"content": content},
		}, "u1")
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/store/items/search", map[string]any{
		"namespace_prefix": []string{"knowledge", "asst-1"},
		"query":            "dragons",
	}, "u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", resp.StatusCode)
	}
	var got searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 1 || len(got.Items) != 1 {
		t.Fatalf("got %+v, want one result", got)
	}
	if got.Items[0].Key != "a" {
		t.Fatalf("key = %q, want a", got.Items[0].Key)
	}
	if got.Limit != 20 {
		t.Fatalf("limit = %d, want default 20", got.Limit)
	}
}

func TestAPIValidation(t *testing.T) {
	srv := newTestAPI(t)

	// Unauthenticated.
	resp := doJSON(t, http.MethodPut, srv.URL+"/store/items", map[string]any{"key": "k"}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	// Missing key.
	resp = doJSON(t, http.MethodPut, srv.URL+"/store/items", map[string]any{
		"value": map[string]any{},
	}, "u1")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	// Namespace part containing the separator.
	resp = doJSON(t, http.MethodPut, srv.URL+"/store/items", map[string]any{
		"namespace": []string{"bad/part"},
		"key":       "k",
		"value":     map[string]any{},
	}, "u1")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	// Missing key on delete.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/store/items", nil, "u1")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}
