package httpx

import (
	"net/http"

	"log/slog"

	"github.com/harshhgithub/CodeSync/internal/app"
	"github.com/harshhgithub/CodeSync/internal/room"
	"github.com/harshhgithub/CodeSync/internal/ws"
	"github.com/harshhgithub/CodeSync/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, co *room.Coordinator) http.Handler {
	mw := NewMiddleware(cfg)
	api := &RoomsAPI{Co: co}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	// Archive download
	mux.Handle("GET /api/rooms/{id}/archive", http.HandlerFunc(api.Archive))

	// Built frontend, if present
	if cfg.StaticDir != "" {
		mux.Handle("/", spaHandler(cfg.StaticDir))
	}

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
