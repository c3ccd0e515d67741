package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pvescale/lxc-autoscaler/api/handlers"
	"github.com/pvescale/lxc-autoscaler/api/middleware"
	"github.com/pvescale/lxc-autoscaler/api/websocket"
	"github.com/pvescale/lxc-autoscaler/internal/events"
	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/pkg/config"
)

// Server exposes the read-only HTTP surface: health, loop status,
// container views, operation history, Prometheus metrics, and a
// websocket event stream. It never mutates autoscaler state.
type Server struct {
	httpServer *http.Server
	hub        *websocket.Hub
	bridge     *websocket.Bridge
}

func NewServer(cfg config.APIConfig, appMode string, provider handlers.StatusProvider, bus *events.EventBus, metricsHandler http.Handler) *Server {
	if appMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())

	hub := websocket.NewHub()
	bridge := websocket.NewBridge(hub, bus)

	health := handlers.NewHealthHandler(provider)
	status := handlers.NewStatusHandler(provider)
	containers := handlers.NewContainerHandler(provider)

	router.GET("/health", health.Health)
	router.GET("/status", status.Status)
	router.GET("/containers", containers.List)
	router.GET("/containers/:vmid", containers.Get)
	router.GET("/operations/recent", status.RecentOperations)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
	router.GET("/ws", hub.HandleConnection)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		hub:    hub,
		bridge: bridge,
	}
}

// Start runs the server until it fails or Shutdown is called. The
// websocket hub and event bridge run alongside it.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.bridge.Run()

	logger.WithField("addr", s.httpServer.Addr).Info("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	return s.httpServer.Shutdown(shutdownCtx)
}
