package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/zring/cfbmodel/internal/api/websocket"
	"github.com/zring/cfbmodel/internal/logging"
	"github.com/zring/cfbmodel/internal/pipeline"
	"github.com/zring/cfbmodel/internal/report"
	"github.com/zring/cfbmodel/internal/season"
	"github.com/zring/cfbmodel/internal/storage"
)

// Server represents the REST API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	listener   net.Listener
	cfg        Config

	svc    *pipeline.Service
	runs   storage.RunRepository
	hub    *websocket.Hub
	logger *logrus.Logger

	watcher   *ModelWatcher
	scheduler *Scheduler

	// now is swapped in tests.
	now func() time.Time

	runMu sync.Mutex
}

// Config holds configuration for the API server.
type Config struct {
	Port           int
	AllowedOrigins []string

	// WatchModel reloads the model when its file changes.
	WatchModel bool

	// Schedule is a cron expression for automatic weekly predictions.
	// Empty disables scheduling.
	Schedule string
	Location *time.Location

	RequestTimeout time.Duration
}

// DefaultConfig returns the default API server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		AllowedOrigins: []string{"*"},
		WatchModel:     true,
		RequestTimeout: 60 * time.Second,
	}
}

// NewServer creates an API server. runs may be nil, in which case
// predictions are not stored and the run routes are not mounted.
func NewServer(cfg *Config, svc *pipeline.Service, runs storage.RunRepository, logger *logrus.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	logger = logging.OrNop(logger)

	s := &Server{
		router: chi.NewRouter(),
		cfg:    *cfg,
		svc:    svc,
		runs:   runs,
		logger: logger,
		now:    time.Now,
	}
	s.hub = websocket.NewHub(logger, s.originAllowed)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Content-Type enforcement for requests with bodies.
	s.router.Use(s.jsonContentTypeMiddleware)
}

// requestLogger logs each request through logrus.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

// jsonContentTypeMiddleware enforces application/json content-type for requests with bodies.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && !strings.HasPrefix(contentType, "application/json;") {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed applies the CORS origin list to WebSocket upgrades.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// RunWeek predicts a week and stores the run. Year 0 means the current year
// and week 0 the current week of that season, never earlier than week 1.
func (s *Server) RunWeek(ctx context.Context, year, week int) (*report.Run, error) {
	// One prediction at a time keeps API usage bounded.
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.now()
	if year == 0 {
		year = now.Year()
	}
	week = max(season.Resolve(week, year, now), 1)

	run, err := s.svc.PredictWeek(ctx, pipeline.PredictRequest{Year: year, Week: week})
	if err != nil {
		return nil, err
	}
	if s.runs != nil {
		if err := s.runs.Save(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to store run: %w", err)
		}
	}

	s.hub.Publish(websocket.EventRunCompleted, run.Metadata)
	return run, nil
}

// reloadModel is called by the model watcher. A model trained after the
// previous one is also announced as newly trained.
func (s *Server) reloadModel() error {
	prev := s.svc.Model()
	m, err := s.svc.LoadModel()
	if err != nil {
		return err
	}
	info := m.GetModelInfo()
	s.hub.Publish(websocket.EventModelReloaded, info)
	if prev == nil || info.TrainedAt.After(prev.GetModelInfo().TrainedAt) {
		s.hub.Publish(websocket.EventModelTrained, info)
	}
	return nil
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the port and serves in a goroutine. It also starts the event
// hub, the model watcher and the prediction schedule when configured.
func (s *Server) Start() error {
	if s.cfg.Schedule != "" {
		sched, err := NewScheduler(s.cfg.Schedule, s.cfg.Location, func(ctx context.Context) error {
			_, err := s.RunWeek(ctx, 0, 0)
			return err
		}, s.logger)
		if err != nil {
			return err
		}
		s.scheduler = sched
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	s.listener = ln

	if s.cfg.WatchModel && s.svc.ModelPath() != "" {
		s.watcher = NewModelWatcher(s.svc.ModelPath(), s.reloadModel, s.logger)
		if err := s.watcher.Start(); err != nil {
			// Serving without hot reload is still useful.
			s.logger.WithError(err).Warn("Model hot reload disabled")
			s.watcher = nil
		}
	}

	go s.hub.Run()
	if s.scheduler != nil {
		s.scheduler.Start()
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("API server starting")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("API server error")
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.scheduler != nil {
		s.scheduler.Stop(ctx)
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close model watcher")
		}
	}
	s.hub.Stop()

	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.cfg.Port
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Hub returns the event hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}
