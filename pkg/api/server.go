// Package api exposes the gateway over HTTP: event intake, diary and
// event-log reads, operational surfaces (status, DLQ, audit, health,
// metrics), contact resolution, and the WebSocket endpoint.
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carelane/carelane/pkg/config"
	"github.com/carelane/carelane/pkg/diarystore"
	"github.com/carelane/carelane/pkg/gateway"
	"github.com/carelane/carelane/pkg/heartbeat"
	"github.com/carelane/carelane/pkg/identity"
	"github.com/carelane/carelane/pkg/push"
	"github.com/carelane/carelane/pkg/queue"
)

// Deps carries the collaborators the HTTP surface exposes. Heartbeat,
// Resolver, and Hub are optional; their endpoints report accordingly
// when absent.
type Deps struct {
	Gateway   *gateway.Gateway
	Store     *diarystore.Store
	Queue     *queue.Manager
	Heartbeat *heartbeat.Scheduler
	Resolver  *identity.Resolver
	Hub       *push.Hub
}

// Server is the HTTP server over the gateway.
type Server struct {
	cfg      *config.ServerConfig
	gw       *gateway.Gateway
	store    *diarystore.Store
	queue    *queue.Manager
	sched    *heartbeat.Scheduler
	resolver *identity.Resolver
	hub      *push.Hub

	echo    *echo.Echo
	httpSrv *http.Server
	started time.Time
}

// NewServer builds the server and registers all routes. A nil cfg uses
// the defaults.
func NewServer(cfg *config.ServerConfig, deps Deps) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	s := &Server{
		cfg:      cfg,
		gw:       deps.Gateway,
		store:    deps.Store,
		queue:    deps.Queue,
		sched:    deps.Heartbeat,
		resolver: deps.Resolver,
		hub:      deps.Hub,
		echo:     echo.New(),
		started:  time.Now().UTC(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(securityHeaders())

	e.POST("/api/gateway/emit", s.emitEventHandler)

	e.GET("/api/gateway/diary/:patient_id", s.getDiaryHandler)
	e.GET("/api/gateway/patients", s.listPatientsHandler)

	e.GET("/api/gateway/events", s.listEventsHandler)
	e.GET("/api/gateway/events/:patient_id", s.listEventsHandler)

	e.GET("/api/gateway/status", s.statusHandler)
	e.GET("/api/gateway/dlq", s.dlqHandler)
	e.GET("/api/gateway/audit", s.auditTrailHandler)
	e.GET("/api/gateway/identity/resolve", s.resolveContactHandler)

	e.GET("/api/gateway/ws", s.wsHandler)

	e.GET("/healthz", s.healthzHandler)
	e.GET("/metrics", func(c *echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// parseLimit reads an optional positive integer limit query parameter,
// applying a default and an upper cap.
func parseLimit(c *echo.Context, def, max int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}
