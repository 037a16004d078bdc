package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	app "github.com/harshhgithub/CodeSync/internal/app"
	exec "github.com/harshhgithub/CodeSync/internal/exec"
	httpx "github.com/harshhgithub/CodeSync/internal/http"
	room "github.com/harshhgithub/CodeSync/internal/room"
	ws "github.com/harshhgithub/CodeSync/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Execution gateway
	gateway := exec.NewClient(cfg, logger)

	// Hub is the broadcast channel; the coordinator owns all room state.
	// They reference each other, so the hub is bound after construction.
	hub := ws.NewHub(logger)
	co := room.New(cfg, logger, hub, gateway)
	hub.Bind(co)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub, co)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	// shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
