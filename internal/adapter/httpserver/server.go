package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

// Server hosts the relay's WebSocket endpoint and its operational routes.
type Server struct {
	echo  *echo.Echo
	port  string
	clock clockwork.Clock

	websocketHandler http.Handler
	connections      ConnectionCounter
	store            StoreProbe
	startTime        time.Time
}

func NewServer(port string, websocketHandler http.Handler, connections ConnectionCounter, store StoreProbe, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		port:             port,
		clock:            clock,
		websocketHandler: websocketHandler,
		connections:      connections,
		store:            store,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Hijacked
// WebSocket connections are not tracked by net/http and must be closed by their
// owner.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
