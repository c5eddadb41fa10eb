package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
	"github.com/pscheid92/chatrelay/internal/relay"
)

const shutdownReason = "server shutting down"

// Connections is the part of the relay registry the handler needs.
type Connections interface {
	Register(t relay.Transport) uuid.UUID
	Unregister(t relay.Transport) bool
}

// InboundHandler consumes frames read from a client.
type InboundHandler interface {
	HandleInbound(ctx context.Context, sender uuid.UUID, raw []byte)
}

type HandlerConfig struct {
	// SharedKey is the base64 key sent to each client before anything else.
	SharedKey       string
	AllowedOrigins  []string
	IsDevelopment   bool
	MaxMessageBytes int64
	// Limits is optional; nil admits every connection.
	Limits *ConnectionLimits
	Clock  clockwork.Clock
}

// Handler upgrades requests and owns the resulting connections until they end.
type Handler struct {
	connections Connections
	inbound     InboundHandler
	keyFrame    []byte
	upgrader    websocket.Upgrader
	limits      *ConnectionLimits
	clock       clockwork.Clock
	readLimit   int64

	mu       sync.Mutex
	active   map[*Conn]struct{}
	closing  atomic.Bool
	sessions sync.WaitGroup
}

func NewHandler(connections Connections, inbound InboundHandler, cfg HandlerConfig) (*Handler, error) {
	keyFrame, err := json.Marshal(domain.NewKeyEnvelope(cfg.SharedKey))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key envelope: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Handler{
		connections: connections,
		inbound:     inbound,
		keyFrame:    keyFrame,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment),
		},
		limits:    cfg.Limits,
		clock:     clock,
		readLimit: cfg.MaxMessageBytes,
		active:    make(map[*Conn]struct{}),
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closing.Load() {
		metrics.WebSocketConnectionsRejected.WithLabelValues("shutting_down").Inc()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ip := remoteIP(r)
	if h.limits != nil {
		ok, reason := h.limits.Acquire(ip)
		if !ok {
			metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
			slog.Warn("WebSocket connection rejected", "reason", reason, "remote_ip", ip)
			status := http.StatusServiceUnavailable
			if reason == LimitReasonRate {
				status = http.StatusTooManyRequests
			}
			http.Error(w, "too many connections", status)
			return
		}
		defer h.limits.Release(ip)
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Debug("WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}

	h.serve(r.Context(), NewConn(ws, h.clock), ip)
}

func (h *Handler) serve(ctx context.Context, conn *Conn, ip string) {
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	// Queued ahead of any broadcast because registration happens afterwards.
	if err := conn.Send(h.keyFrame); err != nil {
		conn.Close()
		return
	}

	if !h.track(conn) {
		conn.CloseGraceful(shutdownReason)
		return
	}
	defer h.untrack(conn)

	id := h.connections.Register(conn)
	ctx = correlation.WithClient(ctx, id)
	start := h.clock.Now()
	metrics.WebSocketConnectionsTotal.Inc()
	slog.InfoContext(ctx, "Client connected", "remote_ip", ip)

	err := h.readLoop(ctx, conn, id)
	closedByServer := !conn.IsOpen()

	h.connections.Unregister(conn)
	conn.Close()
	metrics.WebSocketConnectionDuration.Observe(h.clock.Since(start).Seconds())

	if err != nil && !closedByServer && !isExpectedClose(err) {
		slog.WarnContext(ctx, "Client read failed", "error", err)
	}
	slog.InfoContext(ctx, "Client disconnected", "duration", h.clock.Since(start))
}

// readLoop hands frames to the engine one at a time, preserving per-client order.
func (h *Handler) readLoop(ctx context.Context, conn *Conn, id uuid.UUID) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		h.inbound.HandleInbound(ctx, id, data)
	}
}

func (h *Handler) track(conn *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing.Load() {
		return false
	}
	h.active[conn] = struct{}{}
	h.sessions.Add(1)
	return true
}

func (h *Handler) untrack(conn *Conn) {
	h.mu.Lock()
	delete(h.active, conn)
	h.mu.Unlock()
	h.sessions.Done()
}

// ActiveConnections returns the number of connections currently being served.
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Shutdown refuses new connections, sends every live client a normal-closure
// frame and waits for their sessions to end or ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing.Store(true)
	conns := make([]*Conn, 0, len(h.active))
	for c := range h.active {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	slog.InfoContext(ctx, "Closing WebSocket connections", "count", len(conns))
	for _, c := range conns {
		c.CloseGraceful(shutdownReason)
	}

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for websocket sessions: %w", ctx.Err())
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
