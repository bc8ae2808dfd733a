// Package server exposes the playback engine over HTTP/3 with an
// HTTP/1.1 and HTTP/2 fallback: snapshot ingestion, time reports,
// settings, the SSE event stream, and operational endpoints.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Import for side effects (registers pprof handlers)
	"time"

	"github.com/gorilla/mux"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/avolens/dubsync/internal/config"
	"github.com/avolens/dubsync/internal/errors"
	"github.com/avolens/dubsync/internal/events"
	"github.com/avolens/dubsync/internal/health"
	"github.com/avolens/dubsync/internal/history"
	"github.com/avolens/dubsync/internal/logger"
	"github.com/avolens/dubsync/internal/narration"
	"github.com/avolens/dubsync/internal/playback"
	"github.com/avolens/dubsync/internal/settings"
	"github.com/avolens/dubsync/internal/subtitle"
)

// Deps are the playback engine components the API drives.
type Deps struct {
	Bus        *events.Bus
	Subtitles  *subtitle.Resolver
	Narrations *narration.Registry
	Settings   *settings.Store
	Clock      *playback.Clock
	Scheduler  *playback.Scheduler
	Pool       *playback.Pool
	Journal    *history.Journal // nil when history is disabled
}

// Server hosts the HTTP/3 API.
type Server struct {
	config       *config.Config
	router       *mux.Router
	http3Server  *http3.Server
	httpServer   *http.Server
	logger       *logrus.Logger
	redis        *redis.Client
	healthMgr    *health.Manager
	errorHandler *errors.ErrorHandler
	deps         Deps
}

// New creates a server instance.
func New(cfg *config.Config, log *logrus.Logger, redisClient *redis.Client, deps Deps) *Server {
	s := &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		logger:       log,
		redis:        redisClient,
		healthMgr:    health.NewManager(log),
		errorHandler: errors.NewErrorHandler(log),
		deps:         deps,
	}

	s.registerHealthCheckers()
	s.setupRoutes()

	return s
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
		NextProtos: []string{"h3"},
	}

	cert, err := tls.LoadX509KeyPair(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificates: %w", err)
	}
	tlsConfig.Certificates = []tls.Certificate{cert}

	quicConfig := &quic.Config{
		MaxIncomingStreams:    s.config.Server.MaxIncomingStreams,
		MaxIncomingUniStreams: s.config.Server.MaxIncomingUniStreams,
		MaxIdleTimeout:        s.config.Server.MaxIdleTimeout,
	}

	s.http3Server = &http3.Server{
		Addr:       fmt.Sprintf(":%d", s.config.Server.HTTP3Port),
		Handler:    s.router,
		QUICConfig: quicConfig,
		TLSConfig:  tlsConfig,
	}

	go s.healthMgr.StartPeriodicChecks(ctx, 30*time.Second)

	if s.config.Server.EnableHTTP {
		if err := s.startHTTPServer(); err != nil {
			return fmt.Errorf("failed to start HTTP/1.1/2 server: %w", err)
		}
	}

	s.logger.WithField("port", s.config.Server.HTTP3Port).Info("Starting HTTP/3 server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.http3Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops both listeners.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP servers")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("Fallback server shutdown failed")
		}
	}

	if err := s.http3Server.Close(); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server shutdown complete")
	return nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)

	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods("GET")
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/subtitles/{registry}", s.handleReplaceSubtitles).Methods("PUT")
	api.HandleFunc("/subtitles/{registry}", s.handleListSubtitles).Methods("GET")
	api.HandleFunc("/narrations/{track}", s.handleReplaceNarrations).Methods("PUT")
	api.HandleFunc("/narrations/{track}", s.handleListNarrations).Methods("GET")

	api.HandleFunc("/playback/time", s.handleTimeReport).Methods("POST")
	api.HandleFunc("/playback/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/playback/interaction", s.handleInteraction).Methods("POST")

	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handlePutSettings).Methods("PUT")

	api.HandleFunc("/history", s.handleHistory).Methods("GET")

	api.HandleFunc("/events", s.deps.Bus.SSEHandler()).Methods("GET")

	if s.config.Server.DebugEndpoints {
		s.setupDebugEndpoints()
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

func (s *Server) startHTTPServer() error {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	cert, err := tls.LoadX509KeyPair(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificates: %w", err)
	}
	tlsConfig.Certificates = []tls.Certificate{cert}

	if s.config.Server.EnableHTTP2 {
		tlsConfig.NextProtos = []string{"h2", "http/1.1"}
	} else {
		tlsConfig.NextProtos = []string{"http/1.1"}
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.HTTPPort),
		Handler:      s.router,
		TLSConfig:    tlsConfig,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	go func() {
		s.logger.WithFields(logrus.Fields{
			"port":  s.config.Server.HTTPPort,
			"http2": s.config.Server.EnableHTTP2,
		}).Info("Starting fallback HTTP server")

		if err := s.httpServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP/1.1/2 server error")
		}
	}()

	return nil
}

func (s *Server) registerHealthCheckers() {
	if s.redis != nil {
		s.healthMgr.Register(health.NewRedisChecker(s.redis))
	}
	s.healthMgr.Register(health.NewMediaChecker(s.config.Media.BaseURL))
}

func (s *Server) setupDebugEndpoints() {
	s.logger.Info("Enabling debug endpoints")

	// pprof handlers register themselves on the default mux
	s.router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
}

// GetRouter returns the router for testing.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
