package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pscheid92/chatrelay/internal/metrics"
)

// NewCheckOrigin returns an upgrader CheckOrigin func. Requests without an
// Origin header (non-browser clients) always pass. An empty allow-list accepts
// every origin; otherwise the origin must match an entry exactly, ignoring case
// and a trailing slash. In development, localhost origins are also accepted.
func NewCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if n := normalizeOrigin(o); n != "" {
			allowSet[n] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowSet) == 0 {
			return true
		}

		if _, ok := allowSet[normalizeOrigin(origin)]; ok {
			return true
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		metrics.WebSocketConnectionsRejected.WithLabelValues("origin").Inc()
		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
