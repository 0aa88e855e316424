// Package server exposes a log store over HTTP: entries are ingested in
// batches and read back with the declarative query language.
//
//	POST /v1/logs    one entry object or an array of them
//	POST /v1/query   a logquery.Spec
//	GET  /v1/logs    a logquery.Spec given as URL parameters
//	GET  /metrics    Prometheus metrics
//	GET  /healthz
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartikbazzad/bunbase/bunlog/internal/config"
	"github.com/kartikbazzad/bunbase/bunlog/internal/querycache"
	"github.com/kartikbazzad/bunbase/bunlog/transport"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg     config.Server
	log     *slog.Logger
	ingest  *transport.BatchTransport
	cache   *querycache.Cache
	limiter *ingestLimiter
	schemas *schemas
	reg     *prometheus.Registry
	router  *gin.Engine

	requests *prometheus.CounterVec
}

// Open creates the store cfg selects and a server over it.
func Open(cfg config.Server, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := OpenStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	s, err := New(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// New builds a server over store. The server owns store and closes it on
// Close.
func New(cfg config.Server, store Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sch, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	cache, err := querycache.New(cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := transport.NewMetrics(reg)
	storeName := cfg.Store.Kind
	if storeName == "" {
		storeName = "memory"
	}

	s := &Server{
		cfg:     cfg,
		log:     logger,
		cache:   cache,
		schemas: sch,
		reg:     reg,
		ingest: transport.NewBatchTransport(transport.Instrument(store, storeName, metrics), transport.BatchConfig{
			MaxBatchSize: cfg.Batch.Size,
			MaxBatchTime: cfg.Batch.Interval,
			FlushOnClose: true,
			Logger:       logger,
		}),
	}
	if cfg.HTTP.Rate > 0 {
		s.limiter = newIngestLimiter(cfg.HTTP.Rate, cfg.HTTP.Burst, 15*time.Minute)
	}
	s.registerMetrics()
	s.router = s.routes()
	return s, nil
}

func (s *Server) registerMetrics() {
	factory := promauto.With(s.reg)
	s.requests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunlog_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "bunlog_query_cache_hits_total",
		Help: "Query documents served from the decode cache",
	}, func() float64 {
		hits, _ := s.cache.Stats()
		return float64(hits)
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "bunlog_query_cache_misses_total",
		Help: "Query documents decoded on a cache miss",
	}, func() float64 {
		_, misses := s.cache.Stats()
		return float64(misses)
	})
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.observe())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	v1.POST("/logs", s.handleIngest)
	v1.GET("/logs", s.handleSearch)
	v1.POST("/query", s.handleQuery)
	return router
}

// observe counts requests and logs them at debug level.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
		)
	}
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.router }

// Registry returns the registry /metrics serves.
func (s *Server) Registry() *prometheus.Registry { return s.reg }

// Run serves on cfg.HTTP.Addr until ctx ends, then shuts down gracefully
// and closes the store.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("bunlog server starting", "addr", srv.Addr, "store", s.cfg.Store.Kind)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("shutdown: %w", err)
		}
	}
	return errors.Join(serveErr, s.Close())
}

// Close delivers queued entries and closes the store.
func (s *Server) Close() error {
	return s.ingest.Close()
}
