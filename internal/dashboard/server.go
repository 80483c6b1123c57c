// Package dashboard serves the catalog pages. Every page handler asks the
// session manager for a token first and renders the login prompt instead of
// the page when none is available.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pricedash/pricedash/internal/apiclient"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/session"
)

// Server represents the dashboard HTTP server
type Server struct {
	router    *gin.Engine
	config    *config.Config
	logger    zerolog.Logger
	client    *apiclient.Client
	manager   *session.Manager
	registry  *session.Registry
	scheduler *cron.Cron
}

// New creates a new dashboard server instance
func New(cfg *config.Config, zlog zerolog.Logger) (*Server, error) {
	client := apiclient.New(cfg.API, nil, zlog)
	registry := session.NewRegistry(cfg.Server.StateTTL, cfg.API.CacheTTL, zlog)

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	// Idle render states are evicted on a schedule
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Server.SweepEvery, func() { registry.Sweep() }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Server.SweepEvery, err)
	}

	s := &Server{
		config:    cfg,
		logger:    zlog,
		client:    client,
		manager:   session.NewManager(client, cfg.Cookie, zlog),
		registry:  registry,
		scheduler: scheduler,
	}
	s.setupRouter(tmpl)

	return s, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter(tmpl *template.Template) {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()
	s.router.SetHTMLTemplate(tmpl)

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.GET("/health", s.healthCheck)

	// Pages run one render at a time per browser session
	pages := s.router.Group("/")
	pages.Use(s.sessionMiddleware())
	{
		pages.GET("/", s.home)
		pages.POST("/", s.home)

		pages.GET("/catalog/skus", s.skus)
		pages.POST("/catalog/skus", s.skus)
		pages.GET("/catalog/skus/:code", s.skuDetail)
		pages.POST("/catalog/skus/:code", s.skuDetail)

		pages.GET("/catalog/suppliers", s.suppliers)
		pages.POST("/catalog/suppliers", s.suppliers)
		pages.GET("/catalog/suppliers/:id", s.supplierDetail)
		pages.POST("/catalog/suppliers/:id", s.supplierDetail)

		pages.GET("/catalog/categories", s.categories)
		pages.POST("/catalog/categories", s.categories)
		pages.GET("/catalog/categories/:id", s.categoryDetail)
		pages.POST("/catalog/categories/:id", s.categoryDetail)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "pricedash-dashboard",
		"sessions":  s.registry.Len(),
		"api":       s.client.BaseURL(),
	})
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.scheduler.Start()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("api", s.client.BaseURL()).Msg("Starting dashboard")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case err := <-errChan:
		s.scheduler.Stop()
		return fmt.Errorf("dashboard server failed: %w", err)
	}

	<-s.scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.logger.Info().Msg("Dashboard shutdown complete")
	return nil
}
