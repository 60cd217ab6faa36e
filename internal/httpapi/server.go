// Package httpapi exposes the catalog over a JSON HTTP API.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/events"
	"github.com/locallibrary/catalog/internal/metrics"
	"github.com/locallibrary/catalog/internal/repo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const eventTimeout = 10 * time.Second

// Server holds the dependencies of the HTTP handlers
type Server struct {
	db        *db.DB
	repo      *repo.CatalogRepository
	publisher events.CatalogPublisher
	metrics   *metrics.Metrics
	log       *zap.Logger

	limit rate.Limit
	burst int

	wg   sync.WaitGroup
	done chan struct{}
}

// Options configures NewServer. A zero RateLimit disables rate limiting.
type Options struct {
	RateLimit float64
	Burst     int
}

// NewServer creates the HTTP API server
func NewServer(database *db.DB, repository *repo.CatalogRepository, publisher events.CatalogPublisher, m *metrics.Metrics, log *zap.Logger, opts Options) *Server {
	return &Server{
		db:        database,
		repo:      repository,
		publisher: publisher,
		metrics:   m,
		log:       log,
		limit:     rate.Limit(opts.RateLimit),
		burst:     opts.Burst,
		done:      make(chan struct{}),
	}
}

// Routes registers every endpoint and wraps the router in middleware:
//
//	recoverPanic → correlate → rateLimit → router
func (s *Server) Routes() http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(s.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(s.methodNotAllowedResponse)

	handle := func(method, path string, h http.HandlerFunc) {
		router.Handler(method, path, s.instrument(path, h))
	}

	handle(http.MethodGet, "/healthz", s.healthHandler)
	handle(http.MethodGet, "/metrics", s.metricsHandler)

	handle(http.MethodPost, "/v1/genres", s.createGenreHandler)
	handle(http.MethodGet, "/v1/genres", s.listGenresHandler)
	handle(http.MethodGet, "/v1/genres/:id", s.showGenreHandler)
	handle(http.MethodPatch, "/v1/genres/:id", s.updateGenreHandler)
	handle(http.MethodDelete, "/v1/genres/:id", s.deleteGenreHandler)

	handle(http.MethodPost, "/v1/languages", s.createLanguageHandler)
	handle(http.MethodGet, "/v1/languages", s.listLanguagesHandler)
	handle(http.MethodGet, "/v1/languages/:id", s.showLanguageHandler)
	handle(http.MethodPatch, "/v1/languages/:id", s.updateLanguageHandler)
	handle(http.MethodDelete, "/v1/languages/:id", s.deleteLanguageHandler)

	handle(http.MethodPost, "/v1/authors", s.createAuthorHandler)
	handle(http.MethodGet, "/v1/authors", s.listAuthorsHandler)
	handle(http.MethodGet, "/v1/authors/:id", s.showAuthorHandler)
	handle(http.MethodPatch, "/v1/authors/:id", s.updateAuthorHandler)
	handle(http.MethodDelete, "/v1/authors/:id", s.deleteAuthorHandler)

	handle(http.MethodPost, "/v1/books", s.createBookHandler)
	handle(http.MethodGet, "/v1/books", s.listBooksHandler)
	handle(http.MethodGet, "/v1/books/:id", s.showBookHandler)
	handle(http.MethodPatch, "/v1/books/:id", s.updateBookHandler)
	handle(http.MethodDelete, "/v1/books/:id", s.deleteBookHandler)

	handle(http.MethodPost, "/v1/bookinstances", s.createInstanceHandler)
	handle(http.MethodGet, "/v1/bookinstances", s.listInstancesHandler)
	handle(http.MethodGet, "/v1/bookinstances/:id", s.showInstanceHandler)
	handle(http.MethodPatch, "/v1/bookinstances/:id", s.updateInstanceHandler)
	handle(http.MethodDelete, "/v1/bookinstances/:id", s.deleteInstanceHandler)

	return s.recoverPanic(s.correlate(s.rateLimit(router)))
}

// publishAsync runs publish in the background so that a broker outage never
// fails the request. The request's correlation id is carried over.
func (s *Server) publishAsync(r *http.Request, eventType string, publish func(ctx context.Context) error) {
	correlationID := events.CorrelationID(r.Context())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(events.WithCorrelationID(context.Background(), correlationID), eventTimeout)
		defer cancel()

		err := publish(ctx)
		s.metrics.ObserveEvent(eventType, err)
		if err != nil {
			s.log.Error("Failed to publish event",
				zap.String("event_type", eventType),
				zap.String("correlation_id", correlationID),
				zap.Error(err),
			)
		}
	}()
}

// Close stops background work and waits for pending events to be published
func (s *Server) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.wg.Wait()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "broker": "ok"}
	status := http.StatusOK

	if err := s.db.Ping(); err != nil {
		s.log.Error("Database health check failed", zap.Error(err))
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if !s.publisher.IsHealthy() {
		s.log.Error("RabbitMQ health check failed")
		checks["broker"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	state := "available"
	if status != http.StatusOK {
		state = "unavailable"
	}
	if err := writeJSON(w, status, envelope{"status": state, "checks": checks}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

// metricsHandler refreshes the catalog gauges before serving the registry
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.metrics.Refresh(r.Context(), s.repo); err != nil {
		s.log.Warn("Failed to refresh catalog metrics", zap.Error(err))
	}
	s.metrics.Handler().ServeHTTP(w, r)
}
