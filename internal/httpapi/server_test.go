package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/metrics"
	"github.com/locallibrary/catalog/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type publishedEvent struct {
	eventType     string
	id            string
	fieldsChanged []string
}

type mockPublisher struct {
	mu      sync.Mutex
	events  []publishedEvent
	healthy bool
}

func (m *mockPublisher) record(e publishedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockPublisher) published() []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedEvent(nil), m.events...)
}

func (m *mockPublisher) PublishBookCreated(ctx context.Context, book *db.Book) error {
	return m.record(publishedEvent{eventType: "book.created", id: fmt.Sprint(book.ID)})
}

func (m *mockPublisher) PublishBookUpdated(ctx context.Context, book *db.Book, fieldsChanged []string) error {
	return m.record(publishedEvent{eventType: "book.updated", id: fmt.Sprint(book.ID), fieldsChanged: fieldsChanged})
}

func (m *mockPublisher) PublishBookDeleted(ctx context.Context, bookID uint) error {
	return m.record(publishedEvent{eventType: "book.deleted", id: fmt.Sprint(bookID)})
}

func (m *mockPublisher) PublishInstanceCreated(ctx context.Context, instance *db.BookInstance) error {
	return m.record(publishedEvent{eventType: "instance.created", id: instance.ID.String()})
}

func (m *mockPublisher) PublishInstanceUpdated(ctx context.Context, instance *db.BookInstance, fieldsChanged []string) error {
	return m.record(publishedEvent{eventType: "instance.updated", id: instance.ID.String(), fieldsChanged: fieldsChanged})
}

func (m *mockPublisher) PublishInstanceDeleted(ctx context.Context, instanceID uuid.UUID) error {
	return m.record(publishedEvent{eventType: "instance.deleted", id: instanceID.String()})
}

func (m *mockPublisher) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *mockPublisher) Close() error {
	return nil
}

type testServer struct {
	srv       *Server
	handler   http.Handler
	publisher *mockPublisher
}

func setupServer(t *testing.T, opts Options) *testServer {
	database, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(database))

	log := zap.NewNop()
	publisher := &mockPublisher{healthy: true}
	srv := NewServer(database, repo.NewCatalogRepository(database, log), publisher, metrics.New(), log, opts)

	t.Cleanup(func() {
		srv.Close()
		database.Close()
	})
	return &testServer{srv: srv, handler: srv.Routes(), publisher: publisher}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		js, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(js)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func (ts *testServer) create(t *testing.T, path, key string, body any) map[string]any {
	t.Helper()
	code, resp := ts.do(t, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, code, "response: %v", resp)
	return resp[key].(map[string]any)
}

func TestGenreCRUD(t *testing.T) {
	ts := setupServer(t, Options{})

	genre := ts.create(t, "/v1/genres", "genre", map[string]any{"name": "Fantasy"})
	path := fmt.Sprintf("/v1/genres/%v", genre["id"])

	code, resp := ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Fantasy", resp["genre"].(map[string]any)["name"])

	code, resp = ts.do(t, http.MethodPatch, path, map[string]any{"name": "High Fantasy"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "High Fantasy", resp["genre"].(map[string]any)["name"])

	code, resp = ts.do(t, http.MethodGet, "/v1/genres", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, resp["genres"], 1)

	code, _ = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "the requested resource could not be found", resp["error"])
}

func TestCreateLanguageConflict(t *testing.T) {
	ts := setupServer(t, Options{})

	ts.create(t, "/v1/languages", "language", map[string]any{"name": "English"})

	code, resp := ts.do(t, http.MethodPost, "/v1/languages", map[string]any{"name": "eNGLISH"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Language already exists (case insensitive match)", resp["error"])

	ts.create(t, "/v1/languages", "language", map[string]any{"name": "Ñandú"})
	code, resp = ts.do(t, http.MethodPost, "/v1/languages", map[string]any{"name": "ÑANDÚ"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Language already exists (case insensitive match)", resp["error"])
}

func TestRequestErrors(t *testing.T) {
	ts := setupServer(t, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"malformed json", http.MethodPost, "/v1/genres", `{"name":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/genres", `{"name":"x","colour":"red"}`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/v1/authors", "", http.StatusBadRequest},
		{"blank name", http.MethodPost, "/v1/genres", map[string]any{"name": "  "}, http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, "/v1/authors", map[string]any{"first_name": "A", "last_name": "B", "date_of_birth": "1990-13-01"}, http.StatusUnprocessableEntity},
		{"isbn too long", http.MethodPost, "/v1/books", map[string]any{"title": "T", "isbn": "97800000000000"}, http.StatusUnprocessableEntity},
		{"unknown author", http.MethodPost, "/v1/books", map[string]any{"title": "T", "author_id": 99}, http.StatusUnprocessableEntity},
		{"bad status", http.MethodPost, "/v1/bookinstances", map[string]any{"imprint": "I", "status": "lost"}, http.StatusUnprocessableEntity},
		{"bad id", http.MethodGet, "/v1/books/abc", nil, http.StatusNotFound},
		{"bad uuid", http.MethodGet, "/v1/bookinstances/123", nil, http.StatusNotFound},
		{"bad filter", http.MethodGet, "/v1/books?author_id=x", nil, http.StatusUnprocessableEntity},
		{"no route", http.MethodGet, "/v1/shelves", nil, http.StatusNotFound},
		{"method", http.MethodPut, "/v1/genres", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.NotNil(t, resp["error"])
		})
	}
}

func TestCreateBookBeforeAuthorBirth(t *testing.T) {
	ts := setupServer(t, Options{})

	author := ts.create(t, "/v1/authors", "author", map[string]any{
		"first_name": "Ursula", "last_name": "Le Guin", "date_of_birth": "1929-10-21",
	})
	assert.Equal(t, "Le Guin, Ursula", author["name"])
	assert.Equal(t, fmt.Sprintf("/catalog/author/%v", author["id"]), author["url"])

	code, resp := ts.do(t, http.MethodPost, "/v1/books", map[string]any{
		"title": "Earthsea", "author_id": author["id"], "date_added": "1920-01-01",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, map[string]any{"date_added": "book added date cannot precede the author's date of birth"}, resp["error"])

	code, resp = ts.do(t, http.MethodGet, "/v1/books", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp["books"])
	assert.Empty(t, ts.publisher.published())
}

func TestBookLifecycle(t *testing.T) {
	ts := setupServer(t, Options{})

	author := ts.create(t, "/v1/authors", "author", map[string]any{"first_name": "Ursula", "last_name": "Le Guin"})
	language := ts.create(t, "/v1/languages", "language", map[string]any{"name": "English"})
	var genreIDs []any
	for _, name := range []string{"Fantasy", "Science Fiction", "Young Adult", "Classics"} {
		genreIDs = append(genreIDs, ts.create(t, "/v1/genres", "genre", map[string]any{"name": name})["id"])
	}

	book := ts.create(t, "/v1/books", "book", map[string]any{
		"title":       "A Wizard of Earthsea",
		"isbn":        "9780547773742",
		"date_added":  "2024-05-01",
		"author_id":   author["id"],
		"language_id": language["id"],
		"genre_ids":   genreIDs,
	})
	assert.Equal(t, "Fantasy, Science Fiction, Young Adult", book["display_genre"])
	assert.Equal(t, "2024-05-01", book["date_added"])
	path := fmt.Sprintf("/v1/books/%v", book["id"])
	assert.Equal(t, fmt.Sprintf("/catalog/book/%v", book["id"]), book["url"])

	code, resp := ts.do(t, http.MethodPatch, path, map[string]any{"summary": "Ged's story", "genre_ids": genreIDs[:1]})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"summary", "genres"}, resp["fields_changed"])
	assert.Equal(t, "Fantasy", resp["book"].(map[string]any)["display_genre"])

	code, resp = ts.do(t, http.MethodPatch, path, map[string]any{"summary": "Ged's story"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, resp["fields_changed"])

	code, resp = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/books?title=wizard&author_id=%v", author["id"]), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp["books"], 1)
	assert.Equal(t, float64(1), resp["metadata"].(map[string]any)["total_records"])

	code, _ = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, code)

	ts.srv.Close()
	var types []string
	for _, e := range ts.publisher.published() {
		types = append(types, e.eventType)
	}
	assert.ElementsMatch(t, []string{"book.created", "book.updated", "book.deleted"}, types)
}

func TestBookInstanceLifecycle(t *testing.T) {
	ts := setupServer(t, Options{})

	book := ts.create(t, "/v1/books", "book", map[string]any{"title": "The Dispossessed"})

	instance := ts.create(t, "/v1/bookinstances", "book_instance", map[string]any{
		"book_id": book["id"],
		"imprint": "Harper & Row, 1974",
	})
	assert.Equal(t, "maintenance", instance["status"])
	assert.Equal(t, "Maintenance", instance["status_label"])
	assert.Equal(t, fmt.Sprintf("%v (The Dispossessed)", instance["id"]), instance["display"])
	path := fmt.Sprintf("/v1/bookinstances/%v", instance["id"])

	code, resp := ts.do(t, http.MethodPatch, path, map[string]any{
		"status":      "on_loan",
		"borrower_id": "user-1",
		"due_back":    "2000-01-01",
	})
	require.Equal(t, http.StatusOK, code)
	updated := resp["book_instance"].(map[string]any)
	assert.Equal(t, "on_loan", updated["status"])
	assert.Equal(t, true, updated["is_overdue"])
	assert.ElementsMatch(t, []any{"status", "borrower_id", "due_back"}, resp["fields_changed"])

	code, resp = ts.do(t, http.MethodGet, "/v1/bookinstances?status=on_loan&borrower_id=user-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp["book_instances"], 1)

	code, _ = ts.do(t, http.MethodPatch, path, map[string]any{"id": uuid.NewString()})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/books/%v", book["id"]), nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, resp["book_instance"].(map[string]any)["book_id"])

	code, _ = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateBookInstanceWithID(t *testing.T) {
	ts := setupServer(t, Options{})
	id := uuid.NewString()

	instance := ts.create(t, "/v1/bookinstances", "book_instance", map[string]any{"id": id, "imprint": "Ace"})
	assert.Equal(t, id, instance["id"])

	code, _ := ts.do(t, http.MethodPost, "/v1/bookinstances", map[string]any{"id": id, "imprint": "Ace"})
	assert.Equal(t, http.StatusConflict, code)
}

func TestCreateBookInstanceBlankStatus(t *testing.T) {
	ts := setupServer(t, Options{})

	instance := ts.create(t, "/v1/bookinstances", "book_instance", map[string]any{"imprint": "Ace", "status": ""})
	assert.Equal(t, "maintenance", instance["status"])

	path := fmt.Sprintf("/v1/bookinstances/%v", instance["id"])
	code, resp := ts.do(t, http.MethodPatch, path, map[string]any{"status": ""})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "maintenance", resp["book_instance"].(map[string]any)["status"])
	assert.Equal(t, []any{}, resp["fields_changed"])
}

func TestHealthz(t *testing.T) {
	ts := setupServer(t, Options{})

	code, resp := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "available", resp["status"])

	ts.publisher.mu.Lock()
	ts.publisher.healthy = false
	ts.publisher.mu.Unlock()

	code, resp = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", resp["checks"].(map[string]any)["broker"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupServer(t, Options{})
	ts.create(t, "/v1/genres", "genre", map[string]any{"name": "Poetry"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `catalog_entities{entity="genre"} 1`)
	assert.Contains(t, body, `catalog_http_requests_total{code="201",method="POST",route="/v1/genres"} 1`)
}

func TestCorrelationID(t *testing.T) {
	ts := setupServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/genres", nil)
	req.Header.Set(correlationHeader, "abc-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(correlationHeader))

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/genres", nil))
	_, err := uuid.Parse(rec.Header().Get(correlationHeader))
	assert.NoError(t, err)
}

func TestRateLimit(t *testing.T) {
	ts := setupServer(t, Options{RateLimit: 1, Burst: 2})

	var codes []int
	for i := 0; i < 3; i++ {
		code, _ := ts.do(t, http.MethodGet, "/v1/genres", nil)
		codes = append(codes, code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRecoverPanic(t *testing.T) {
	ts := setupServer(t, Options{})
	handler := ts.srv.recoverPanic(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
}
