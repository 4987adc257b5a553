// Command relay is the ephemeral authority: it holds one shared todo list in
// memory and relays snapshots and presence between websocket clients.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"todo-sync/internal/config"
	"todo-sync/internal/relay"
	"todo-sync/internal/routes"
	"todo-sync/internal/server"
	"todo-sync/pkg/logger"
)

func main() {
	config.LoadEnvFile(".env")

	cfg := config.Get()
	logger.SetLevel(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := relay.NewHub(relay.Options{MergeMode: cfg.RelayMergeMode})
	limits := relay.Limits{RPS: cfg.RelayMsgRPS, Burst: cfg.RelayMsgBurst}
	srv := server.New(":"+cfg.RelayPort, routes.RelayRouter(hub, limits))
	logger.Info(ctx, "Relay starting", "merge_mode", cfg.RelayMergeMode, "msg_rps", cfg.RelayMsgRPS)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx, srv)
	})
	if err := g.Wait(); err != nil {
		logger.Error(ctx, "Relay error", "error", err)
		os.Exit(1)
	}
}
