// Package server provides the HTTP server and routing for the portfolio dashboard.
package server

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/degiro-portfolio/degiro-portfolio/internal/config"
	"github.com/degiro-portfolio/degiro-portfolio/internal/di"
	chartshandlers "github.com/degiro-portfolio/degiro-portfolio/internal/modules/charts/handlers"
	currencyhandlers "github.com/degiro-portfolio/degiro-portfolio/internal/modules/currency/handlers"
	historicalhandlers "github.com/degiro-portfolio/degiro-portfolio/internal/modules/historical/handlers"
	marketdatahandlers "github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata/handlers"
	portfoliohandlers "github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio/handlers"
	"github.com/degiro-portfolio/degiro-portfolio/pkg/embedded"
	"github.com/degiro-portfolio/degiro-portfolio/pkg/logger"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Container *di.Container
	Config    *config.Config
	LogBuffer *logger.RingBuffer // Source for /api/system/logs, may be nil
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	logHandlers    *LogHandlers
	eventsHandler  *EventsStreamHandler
	started        time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	_ = mime.AddExtensionType(".js", "application/javascript")
	_ = mime.AddExtensionType(".css", "text/css")
	_ = mime.AddExtensionType(".svg", "image/svg+xml")

	started := time.Now()

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		started:   started,
	}
	s.systemHandlers = NewSystemHandlers(cfg.Container, cfg.Config, started, cfg.Log)
	s.logHandlers = NewLogHandlers(cfg.LogBuffer, cfg.Log)
	s.eventsHandler = NewEventsStreamHandler(cfg.Container.EventBus, cfg.Log)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	// No Read/WriteTimeout: the websocket stream and market data updates
	// outlive them. Request deadlines come from the Timeout middleware.
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container
	requestTimeout := s.cfg.RequestTimeout

	portfolioHandler := portfoliohandlers.NewHandler(c.PortfolioService, c.ImportService, s.log)
	chartsHandler := chartshandlers.NewHandler(c.ChartsService, s.log)
	currencyHandler := currencyhandlers.NewHandler(c.RateRepo, s.log)
	historicalHandler := historicalhandlers.NewHandler(c.Loader, s.log)
	marketDataHandler := marketdatahandlers.NewHandler(c.MarketDataService, requestTimeout*10, s.log)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/ping", s.handlePing)

		// Long-running routes manage their own deadlines
		r.Get("/events", s.eventsHandler.ServeHTTP)
		marketDataHandler.RegisterRoutes(r)
		r.Post("/backup", s.systemHandlers.HandleCreateBackup)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/health", s.handleHealth)

			portfolioHandler.RegisterRoutes(r)
			chartsHandler.RegisterRoutes(r)
			currencyHandler.RegisterRoutes(r)
			historicalHandler.RegisterRoutes(r)

			r.Get("/backups", s.systemHandlers.HandleListBackups)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
				r.Post("/jobs/{name}", s.systemHandlers.HandleRunJob)
				r.Get("/logs", s.logHandlers.HandleGetLogs)
				r.Get("/logs/errors", s.logHandlers.HandleGetErrors)
			})
		})
	})

	staticFS, err := fs.Sub(embedded.Files, "static")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to open embedded static files")
		return
	}

	s.router.Handle("/static/*", http.StripPrefix("/static/", s.assetsHandler(http.FileServer(http.FS(staticFS)))))
	s.router.Get("/", s.handleDashboard(staticFS))

	// Unknown non-API paths fall back to the dashboard
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/static/") {
			http.NotFound(w, r)
			return
		}
		s.handleDashboard(staticFS)(w, r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.eventsHandler.CloseAll()
	return s.server.Shutdown(ctx)
}

// assetsHandler wraps the file server to set correct MIME types
func (s *Server) assetsHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType := mime.TypeByExtension(path.Ext(r.URL.Path)); contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

// handleDashboard serves index.html from the embedded filesystem
func (s *Server) handleDashboard(staticFS fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		indexFile, err := staticFS.Open("index.html")
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to open embedded index.html")
			http.Error(w, "Dashboard not available", http.StatusInternalServerError)
			return
		}
		defer indexFile.Close()

		data, err := io.ReadAll(indexFile)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to read embedded index.html")
			http.Error(w, "Dashboard not available", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(data); err != nil {
			s.log.Error().Err(err).Msg("Failed to write index.html response")
		}
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
