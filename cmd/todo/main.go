// Command todo is the terminal client. In relay mode it shares an in-memory
// list through the relay; in notify mode it edits the server's list and
// follows its change feed.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/golang-jwt/jwt/v5"

	"todo-sync/internal/authority"
	"todo-sync/internal/config"
	"todo-sync/internal/models"
	"todo-sync/internal/reconciler"
	"todo-sync/internal/syncchan"
	"todo-sync/internal/syncerr"
	"todo-sync/internal/tui"
	"todo-sync/pkg/logger"
)

const version = "0.1.0"

const usage = `Shared todo list.

In relay mode --name is required. In notify mode the identity comes from the
token's sub and name claims.

Usage:
    todo relay --name=<name> [--relay_url=<url>] [--log=<file>]
    todo notify [--server_url=<url>] [--token=<jwt>] [--log=<file>]
    todo -h | --help
    todo --version

Options:
    -h --help             Show this screen.
    --version             Show version.
    --name=<name>         Name shown to the other participants.
    --relay_url=<url>     Relay websocket, defaults to RELAY_URL.
    --server_url=<url>    Server base URL, defaults to SERVER_URL.
    --token=<jwt>         Bearer token for mutations, defaults to AUTH_TOKEN.
    --log=<file>          Write logs here instead of discarding them.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		return err
	}
	config.LoadEnvFile(".env")
	cfg := config.Get()

	// the terminal belongs to the UI
	closeLog, err := redirectLog(opts, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings := syncchan.DefaultSettings()
	settings.ReconnectTimeout = cfg.ReconnectTimeout()

	var client reconciler.Client
	if relay, _ := opts.Bool("relay"); relay {
		name, _ := opts.String("--name")
		url := optOr(opts, "--relay_url", cfg.RelayURL)
		client = reconciler.NewRelay(syncchan.NewRelayChannel(url, settings), models.Identity{DisplayName: name})
	} else {
		base := optOr(opts, "--server_url", cfg.ServerURL)
		token := optOr(opts, "--token", cfg.AuthToken)
		who, err := identityFromToken(token)
		if err != nil {
			return err
		}
		api := authority.New(base, token, nil)
		client = reconciler.NewNotify(syncchan.NewFeedChannel(api.FeedURL(), api, settings), api, who)
	}

	if err := client.Start(ctx); err != nil {
		// unreachable authorities are retried in the background; bad input is not
		if syncerr.IsValidation(err) {
			return err
		}
		logger.Warn(ctx, "Starting offline", "error", err)
	}
	defer client.Close()

	return tui.Run(ctx, client)
}

func optOr(opts docopt.Opts, name, fallback string) string {
	if v, err := opts.String(name); err == nil && v != "" {
		return v
	}
	return fallback
}

// identityFromToken reads sub and name without verifying the signature; the
// server does that on every mutation.
func identityFromToken(token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, fmt.Errorf("notify mode needs a token (--token or AUTH_TOKEN)")
	}
	var claims models.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return models.Identity{}, fmt.Errorf("read token: %w", err)
	}
	if claims.Subject == "" {
		return models.Identity{}, fmt.Errorf("token has no sub claim")
	}
	return models.Identity{ID: claims.Subject, DisplayName: claims.Name}, nil
}

func redirectLog(opts docopt.Opts, level string) (func(), error) {
	path, _ := opts.String("--log")
	if path == "" {
		logger.SetOutput(io.Discard)
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	logger.SetOutput(f)
	logger.SetLevel(level)
	return func() { _ = f.Close() }, nil
}
