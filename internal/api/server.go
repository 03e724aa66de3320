// Package api exposes a read-only HTTP query surface over the live
// store, the registry and the statistics aggregator, plus the
// prometheus scrape endpoint.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeberg.org/benchkit/dmmlogd/internal/logger"
	"codeberg.org/benchkit/dmmlogd/internal/registry"
	"codeberg.org/benchkit/dmmlogd/internal/scpi"
	"codeberg.org/benchkit/dmmlogd/internal/stats"
	"codeberg.org/benchkit/dmmlogd/internal/store"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	store  *store.Store
	reg    *registry.Registry
	log    logger.Logger
	window time.Duration
	srv    *http.Server
}

func New(listen string, st *store.Store, reg *registry.Registry, defaultWindow time.Duration, log logger.Logger) *Server {
	s := &Server{
		store:  st,
		reg:    reg,
		log:    log,
		window: defaultWindow,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := engine.Group("/api")
	apiGroup.GET("/devices", s.handleDevices)
	apiGroup.GET("/functions", s.handleFunctions)
	apiGroup.GET("/measurements", s.handleMeasurements)
	apiGroup.GET("/series/:device", s.handleSeries)
	apiGroup.GET("/stats", s.handleStats)

	s.srv = &http.Server{Addr: listen, Handler: engine}

	return s
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Shutdown is called. Serve errors other than
// graceful close are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.srv.Addr).Msg("HTTP API listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

func (s *Server) handleDevices(c *gin.Context) {
	names := s.reg.Devices()
	out := make([]registry.Status, 0, len(names))
	for _, name := range names {
		out = append(out, s.reg.Status(name))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleFunctions(c *gin.Context) {
	type functionInfo struct {
		Name        string   `json:"name"`
		Unit        string   `json:"unit"`
		Description string   `json:"description"`
		Ranges      []string `json:"ranges"`
	}

	names := scpi.Functions()
	out := make([]functionInfo, 0, len(names))
	for _, name := range names {
		out = append(out, functionInfo{
			Name:        name,
			Unit:        scpi.UnitFor(name),
			Description: scpi.DescriptionFor(name),
			Ranges:      scpi.RangesFor(name),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleMeasurements(c *gin.Context) {
	device := c.Query("device")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	c.JSON(http.StatusOK, s.store.Query(device, limit))
}

func (s *Server) handleSeries(c *gin.Context) {
	device := c.Param("device")

	window := s.window
	if raw := c.Query("window"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window"})
			return
		}
		window = time.Duration(seconds) * time.Second
	}

	c.JSON(http.StatusOK, s.store.RecentSeries(device, window))
}

func (s *Server) handleStats(c *gin.Context) {
	device := c.Query("device")
	c.JSON(http.StatusOK, stats.Compute(s.store.Query(device, 0)))
}
