package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/meur/compendium/internal/cache"
	"github.com/meur/compendium/internal/config"
	"github.com/meur/compendium/internal/jobs"
	"github.com/meur/compendium/internal/search"
	"github.com/meur/compendium/internal/storage"
)

// Server holds the HTTP server dependencies
type Server struct {
	store    *storage.Store
	engine   *search.Engine
	importer *search.Importer
	cache    cache.Cache
	jobs     *jobs.Registry
	cfg      config.Config
	router   chi.Router
}

// Option customizes a Server
type Option func(*Server)

// WithConfig overrides the default settings
func WithConfig(cfg config.Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithCache caches search result pages
func WithCache(c cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithJobs enables the admin endpoints, which run on the given registry
func WithJobs(r *jobs.Registry) Option {
	return func(s *Server) { s.jobs = r }
}

// New creates a new API server
func New(store *storage.Store, engine *search.Engine, opts ...Option) *Server {
	s := &Server{
		store:  store,
		engine: engine,
		cache:  cache.Nop(),
		cfg:    config.Default(),
		router: chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.importer = NewImporter(store, engine, s.cfg.Search.ImportChunkSize)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// NewImporter wires the store tables into an importer for engine
func NewImporter(store *storage.Store, engine *search.Engine, chunkSize int) *search.Importer {
	return search.NewImporter(engine, chunkSize, map[string]search.Source{
		search.Items.Name: search.ItemSource(store),
		search.Races.Name: search.RaceSource(store),
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.API.RateLimit > 0 {
		s.router.Use(newRateLimiter(s.cfg.API.RateLimit, s.cfg.API.RateBurst).Handler)
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		// Items
		r.Get("/items", s.handleListItems)
		r.Get("/items/{idOrSlug}", s.handleGetItem)
		r.Get("/item-types", s.handleGetItemTypes)

		// Races
		r.Get("/races", s.handleListRaces)
		r.Get("/races/{idOrSlug}", s.handleGetRace)

		// Index administration
		if s.jobs != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Get("/indexes", s.handleIndexStatus)
				r.Post("/indexes/configure", s.handleConfigureIndexes)
				r.Post("/indexes/{type}/import", s.handleImportIndex)
				r.Post("/indexes/{type}/flush", s.handleFlushIndex)
				r.Get("/jobs", s.handleListJobs)
				r.Get("/jobs/{id}", s.handleGetJob)
			})
		}
	})

	// Health check
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not Found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
}

// --- Response helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}
