package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"chronosync/internal/logger"
	"chronosync/internal/scheduler"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	echo    *echo.Echo
	manager *Manager
	port    int
	stopCh  chan struct{}
}

func NewServer(manager *Manager, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		manager: manager,
		port:    port,
		stopCh:  make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// For the entire daemon
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)

	// For a specific job
	g := s.echo.Group("/jobs")
	g.GET("", s.handleListJobs)
	g.POST("/:id/run", s.handleRunJob)
	g.GET("/:id/history", s.handleJobHistory)

	// History
	s.echo.GET("/history", s.handleHistory)
}

func (s *Server) Start() {
	go func() {
		addr := ":" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.manager.Stop()
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	stats, err := s.manager.History().GetStats()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"jobs":       s.manager.Scheduler().Snapshots(),
		"total_runs": stats.Total,
		"success":    stats.Success,
		"failed":     stats.Failed,
	})
}

func (s *Server) handleStop(c echo.Context) error {
	// Shutdown is already underway when the channel is full.
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"jobs": s.manager.Scheduler().Snapshots(),
	})
}

func (s *Server) handleRunJob(c echo.Context) error {
	id := c.Param("id")

	if err := s.manager.Scheduler().RunNow(id); err != nil {
		status := http.StatusConflict
		if errors.Is(err, scheduler.ErrUnknownJob) {
			status = http.StatusNotFound
		}
		return c.JSON(status, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleJobHistory(c echo.Context) error {
	histories, err := s.manager.History().GetByJob(c.Param("id"), historyLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, histories)
}

func (s *Server) handleHistory(c echo.Context) error {
	histories, err := s.manager.History().GetRecent(historyLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, histories)
}

func historyLimit(c echo.Context) int {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return n
}
