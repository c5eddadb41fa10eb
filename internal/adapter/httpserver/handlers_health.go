package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chatrelay/internal/platform/version"
)

const storeProbeTimeout = 2 * time.Second

// ConnectionCounter reports how many clients are currently registered.
type ConnectionCounter interface {
	Len() int
}

// StoreProbe is the slice of the retention store the probes look at.
type StoreProbe interface {
	Ping(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

type livenessResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Connections   int     `json:"connections"`
}

type readinessResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Retained    *int   `json:"retained,omitempty"`
	StoreError  string `json:"store_error,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// Liveness does not consult the store.
func (s *Server) handleLiveness(c echo.Context) error {
	return writeJSON(c, http.StatusOK, livenessResponse{
		Status:        "ok",
		UptimeSeconds: s.clock.Since(s.startTime).Seconds(),
		Connections:   s.connections.Len(),
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeProbeTimeout)
	defer cancel()

	resp := readinessResponse{Status: "ready", Connections: s.connections.Len()}

	if err := s.store.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "Readiness probe failed", "error", err)
		resp.Status = "unavailable"
		resp.StoreError = err.Error()
		return writeJSON(c, http.StatusServiceUnavailable, resp)
	}

	// A failed count only degrades the report.
	if n, err := s.store.Len(ctx); err == nil {
		resp.Retained = &n
	}
	return writeJSON(c, http.StatusOK, resp)
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, http.StatusOK, version.Get())
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write %s response: %w", c.Path(), err)
	}
	return nil
}
