/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/amtp-protocol/schemaresolver/internal/config"
	"github.com/amtp-protocol/schemaresolver/internal/logging"
	"github.com/amtp-protocol/schemaresolver/internal/metrics"
	"github.com/amtp-protocol/schemaresolver/internal/middleware"
	"github.com/amtp-protocol/schemaresolver/internal/schema"
	"github.com/amtp-protocol/schemaresolver/internal/storage"
)

// Version is reported by the health endpoints
const Version = "1.0.0"

// Server represents the schema resolver HTTP server
type Server struct {
	config     *config.Config
	httpServer *http.Server
	router     *gin.Engine
	manager    *schema.Manager
	storage    storage.SchemaStorage
	logger     *logging.Logger

	metrics       metrics.MetricsProvider
	simpleMetrics *metrics.SimpleMetrics
	registry      *prometheus.Registry
}

// New creates a new schema resolver server
func New(cfg *config.Config) (*Server, error) {
	store, err := newStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema storage: %w", err)
	}
	return NewWithStorage(cfg, store)
}

// NewWithStorage creates a server backed by the given storage. A nil store
// disables publishing and store repositories.
func NewWithStorage(cfg *config.Config, store storage.SchemaStorage) (*Server, error) {
	baseLogger := logging.NewLogger(cfg.Logging)
	logger := baseLogger.WithComponent("server")

	server := &Server{
		config:  cfg,
		storage: store,
		logger:  logger,
	}

	// Create metrics if enabled
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		server.simpleMetrics = metrics.NewSimpleMetrics()
		server.registry = prometheus.NewRegistry()
		server.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		server.metrics = metrics.NewMultiProvider(server.simpleMetrics, metrics.NewMetrics(server.registry))
	}

	managerConfig, err := buildManagerConfig(context.Background(), cfg, store)
	if err != nil {
		return nil, err
	}
	managerConfig.Logger = baseLogger.WithComponent("resolver")
	if server.metrics != nil {
		managerConfig.LookupObserver = server.metrics
		managerConfig.ValidationObserver = server.metrics
	}

	server.manager, err = schema.NewManager(managerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema manager: %w", err)
	}

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server.router = gin.New()
	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Configure TLS if enabled
	if cfg.TLS.Enabled {
		server.httpServer.TLSConfig = server.createTLSConfig()
	}

	repos := server.manager.Resolver().Repositories()
	names := make([]string, 0, len(repos))
	for _, ref := range repos {
		names = append(names, ref.Config().Name)
	}
	logger.WithFields(map[string]interface{}{
		"repositories": strings.Join(names, ", "),
		"storage":      storageType(cfg.Storage),
		"cache_ttl":    managerConfig.CacheTTL.String(),
	}).Info("Schema resolver initialized")

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	if s.config.TLS.Enabled {
		return s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and releases storage
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.storage != nil {
		if closeErr := s.storage.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// GetRouter returns the Gin router for testing purposes
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Manager returns the schema manager
func (s *Server) Manager() *schema.Manager {
	return s.manager
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.config.Logging))
	s.router.Use(middleware.CORS(s.config.Auth))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.RequestSizeLimit(s.config.Server.MaxRequestSize))
	s.router.Use(middleware.SecurityHeaders())
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	// Health check endpoints
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)

	if s.metrics != nil {
		s.router.GET("/metrics", s.handleMetrics)
		s.router.GET("/metrics/prometheus", s.handlePrometheus())
	}

	api := s.router.Group("/api")
	api.Use(middleware.APIKeyAuth(s.config.Auth))
	{
		api.GET("/repositories", s.withRequestLogging(s.handleListRepositories))

		api.GET("/schemas", s.withRequestLogging(s.handleListSchemas))
		api.GET("/schemas/:vendor/:name/:format/:version", s.withRequestLogging(s.handleGetSchema))
		api.GET("/schemas/:vendor/:name/:format/:version/history", s.withRequestLogging(s.handleGetHistory))

		api.POST("/validate", s.withRequestLogging(s.handleValidate))
		api.POST("/validate/:vendor/:name/:format/:version", s.withRequestLogging(s.handleValidateInstance))
		api.POST("/verify", s.withRequestLogging(s.handleVerify))

		// Admin endpoints (admin protected)
		admin := api.Group("")
		admin.Use(middleware.AdminAuth(s.config.Auth))
		{
			admin.PUT("/schemas/:vendor/:name/:format/:version", s.withRequestLogging(s.handlePublishSchema))
			admin.DELETE("/schemas/:vendor/:name/:format/:version", s.withRequestLogging(s.handleDeleteSchema))
			admin.GET("/stats", s.withRequestLogging(s.handleStats))
		}
	}
}

// createTLSConfig creates TLS configuration
func (s *Server) createTLSConfig() *tls.Config {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
	}

	switch s.config.TLS.MinVersion {
	case "1.2":
		tlsConfig.MinVersion = tls.VersionTLS12
	default:
		tlsConfig.MinVersion = tls.VersionTLS13
	}

	return tlsConfig
}

// checkHealth performs basic health checks (liveness)
func (s *Server) checkHealth() (bool, map[string]string) {
	healthy := true
	checks := make(map[string]string)

	if s.router == nil {
		healthy = false
		checks["router"] = "not_initialized"
	} else {
		checks["router"] = "healthy"
	}

	if s.manager == nil {
		healthy = false
		checks["resolver"] = "not_initialized"
	} else {
		checks["resolver"] = "healthy"
	}

	if s.storage == nil {
		checks["storage"] = "disabled"
	} else {
		checks["storage"] = "healthy"
	}

	return healthy, checks
}

// checkReadiness checks the dependencies needed to serve traffic
func (s *Server) checkReadiness(ctx context.Context) (bool, map[string]string) {
	ready := true
	checks := make(map[string]string)

	if s.manager == nil {
		ready = false
		checks["resolver"] = "not_initialized"
	} else {
		checks["resolver"] = fmt.Sprintf("ready (%d repositories)", len(s.manager.Resolver().Repositories()))
	}

	if s.storage != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.storage.HealthCheck(ctx); err != nil {
			ready = false
			checks["storage"] = "unavailable: " + err.Error()
		} else {
			checks["storage"] = "ready"
		}
	} else {
		checks["storage"] = "disabled"
	}

	return ready, checks
}
