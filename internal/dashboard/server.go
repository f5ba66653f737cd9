package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"betflow/config"
	"betflow/internal/bet"
	"betflow/internal/channel"
	"betflow/internal/feed"
	"betflow/internal/market"
	"betflow/internal/metrics"
	"betflow/internal/position"
	"betflow/internal/stream"
	"betflow/logger"
)

// Deps are the live engines the dashboard reads from. All reads go
// through the engines' snapshot methods, never interior state.
type Deps struct {
	Stream    *stream.Manager
	Feed      *feed.Store
	Book      *market.Book
	Positions *position.Reconciler
	Channels  *channel.Channels
	Bets      *bet.Client

	// SwitchContext runs the match-context change: positions, book and
	// feed are wholesale-cleared before the new context's data arrives.
	SwitchContext func(contextID string)

	MatchPollError    func() string
	PositionPollError func() string
}

// Server hosts the Gin-powered monitoring and control API for Betflow.
type Server struct {
	cfg               config.DashboardConfig
	deps              Deps
	log               *logger.Log
	metricStore       *metricStore
	logStore          *logStore
	metricHandler     metrics.MetricHandlerID
	httpServer        *http.Server
	refreshIntervalMs int
	resourceSampler   *resourceSampler
}

// NewServer constructs a dashboard server when the dashboard feature is
// enabled. When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, deps Deps, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}

	metricStore := newMetricStore(cfg.LogHistory)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	sampler := newResourceSampler(cfg.LogHistory, cfg.RefreshInterval, "/", log)

	server := &Server{
		cfg:               cfg,
		deps:              deps,
		log:               log,
		metricStore:       metricStore,
		logStore:          logStore,
		metricHandler:     handlerID,
		refreshIntervalMs: int(cfg.RefreshInterval / time.Millisecond),
		resourceSampler:   sampler,
	}

	if server.refreshIntervalMs <= 0 {
		server.refreshIntervalMs = int((5 * time.Second) / time.Millisecond)
	}

	return server, nil
}

// Run starts the dashboard HTTP server and blocks until the provided
// context is cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	if s.resourceSampler != nil {
		s.resourceSampler.start(ctx)
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
	if s.resourceSampler != nil {
		s.resourceSampler.stop()
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"app":                 appName,
			"refresh_interval_ms": s.refreshIntervalMs,
		})
	})

	router.GET("/api/status", func(c *gin.Context) {
		payload := gin.H{}
		if s.deps.Stream != nil {
			payload["connection"] = s.deps.Stream.Status()
		}
		if s.deps.Positions != nil {
			payload["context_id"] = s.deps.Positions.ContextID()
		}
		if s.deps.Channels != nil {
			payload["channels"] = s.deps.Channels.GetStats()
		}
		if s.deps.MatchPollError != nil {
			payload["match_poll_error"] = s.deps.MatchPollError()
		}
		if s.deps.PositionPollError != nil {
			payload["position_poll_error"] = s.deps.PositionPollError()
		}
		c.JSON(http.StatusOK, payload)
	})

	router.GET("/api/matches", func(c *gin.Context) {
		if s.deps.Feed == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, s.deps.Feed.View())
	})

	router.GET("/api/markets", func(c *gin.Context) {
		if s.deps.Book == nil {
			c.JSON(http.StatusOK, gin.H{"markets": []interface{}{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"markets": s.deps.Book.Snapshot()})
	})

	router.GET("/api/positions", func(c *gin.Context) {
		if s.deps.Positions == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, s.deps.Positions.View())
	})

	router.POST("/api/context", func(c *gin.Context) {
		var req struct {
			ContextID string `json:"context_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.ContextID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "context_id is required"})
			return
		}
		if s.deps.SwitchContext == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "context switching unavailable"})
			return
		}
		s.deps.SwitchContext(req.ContextID)
		c.JSON(http.StatusOK, gin.H{"context_id": req.ContextID})
	})

	router.POST("/api/bets", func(c *gin.Context) {
		if s.deps.Bets == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bet placement unavailable"})
			return
		}
		var ticket bet.Ticket
		if err := c.ShouldBindJSON(&ticket); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if ticket.MarketID == "" || ticket.Stake <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "market_id and a positive stake are required"})
			return
		}
		if err := s.deps.Bets.Place(c.Request.Context(), ticket); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		payload := gin.H{"placed": true}
		if s.deps.Positions != nil {
			payload["positions"] = s.deps.Positions.View()
		}
		c.JSON(http.StatusOK, payload)
	})

	router.GET("/api/metrics", s.handleMetrics)
	router.GET("/api/logs", s.handleLogs)
	router.GET("/api/resources", s.handleResources)

	return router, nil
}

// metricView is the wire form of a captured metric.
type metricView struct {
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component,omitempty"`
	Name      string        `json:"name"`
	Value     interface{}   `json:"value"`
	Type      string        `json:"type"`
	Fields    logger.Fields `json:"fields,omitempty"`
}

func (s *Server) handleMetrics(c *gin.Context) {
	snapshot := s.metricStore.snapshot()
	payload := make([]metricView, len(snapshot))
	for i, m := range snapshot {
		payload[i] = metricView{
			Timestamp: m.Timestamp,
			Component: m.Component,
			Name:      m.Name,
			Value:     m.Value,
			Type:      m.Type,
			Fields:    m.Fields,
		}
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
}

func (s *Server) handleResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
}

// normalizeAddress turns whatever listen address the config carries into
// host:port form. Bare ports, bare hosts, URLs and wildcard hosts are all
// accepted.
func normalizeAddress(addr string) string {
	const (
		defaultHost = "0.0.0.0"
		defaultPort = "8080"
	)

	addr = strings.TrimSpace(addr)
	if addr == "" {
		return defaultHost + ":" + defaultPort
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			switch {
			case parsed.Host != "":
				addr = parsed.Host
			case parsed.Opaque != "":
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") && len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
		return defaultHost + addr
	}

	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" || host == "*" {
			host = defaultHost
		}
		if port == "" {
			port = defaultPort
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}
