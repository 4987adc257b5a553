// Command server is the durable authority: the todo REST API backed by
// Postgres, with a Redis list cache and a websocket change feed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"todo-sync/internal/cache"
	"todo-sync/internal/config"
	"todo-sync/internal/controller"
	"todo-sync/internal/database"
	"todo-sync/internal/feed"
	"todo-sync/internal/queue"
	"todo-sync/internal/repository"
	"todo-sync/internal/routes"
	"todo-sync/internal/server"
	"todo-sync/internal/service"
	"todo-sync/internal/worker"
	"todo-sync/pkg/logger"
)

func main() {
	config.LoadEnvFile(".env")

	cfg := config.Get()
	logger.SetLevel(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == "" {
		logger.Error(ctx, "JWT_SECRET is not set; mutations cannot be authenticated")
		os.Exit(1)
	}
	if err := database.MigrateOrCreateSchema(ctx); err != nil {
		logger.Error(ctx, "Schema migration failed", "error", err)
		os.Exit(1)
	}
	repo := repository.NewTodos(database.DB(ctx))
	lists := cache.NewListCache(cache.Client(ctx), cfg.CacheTTLDuration())

	changes := feed.NewHub(0)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		changes.Run(gctx)
		return nil
	})

	var pub service.Publisher = changes
	if cfg.FeedBackend == config.FeedBackendKafka {
		// events go through the topic so every replica's feed sees them
		queue.EnsureTopic(ctx)
		if w := queue.Producer(ctx); w != nil {
			pub = queue.NewPublisher(w)
			g.Go(func() error {
				worker.Run(gctx, changes)
				return nil
			})
		} else {
			logger.Warn(ctx, "Kafka feed requested without brokers; publishing locally")
		}
	}
	logger.Info(ctx, "Change feed ready", "backend", cfg.FeedBackend)

	todos := controller.NewTodos(service.New(repo, lists, pub))
	srv := server.New(":"+cfg.HTTPPort, routes.Router(todos, changes, cfg.JWTSecret))
	g.Go(func() error {
		return server.Run(gctx, srv)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "Server error", "error", err)
		os.Exit(1)
	}
	if w := queue.Producer(ctx); w != nil && cfg.FeedBackend == config.FeedBackendKafka {
		_ = w.Close()
	}
}
