package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/txstate-etc/pagers/pkg/config"
	"github.com/txstate-etc/pagers/pkg/coordinator"
	"github.com/txstate-etc/pagers/pkg/session"
	"github.com/txstate-etc/pagers/pkg/worker"
)

func main() {
	// Setup logger.
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The coordinator's primary client is its own instance, even though it
	// targets the same URL as worker 0. A session.Client is not safe for
	// concurrent use and Renew mutates it in place, so the primary and
	// every worker must each own a distinct Client.
	primary, err := session.New(cfg.URLs[0])
	if err != nil {
		slog.Error("initializing primary session client", "error", err)
		os.Exit(1)
	}

	workerClients := make([]*session.Client, len(cfg.URLs))
	for i, u := range cfg.URLs {
		c, err := session.New(u)
		if err != nil {
			slog.Error("initializing session client", "endpoint", i, "error", err)
			os.Exit(1)
		}
		workerClients[i] = c
	}

	// cancel is handed to the coordinator so it can force worker shutdown
	// if drain's poll window expires with records still queued.
	coord := coordinator.New(primary, cfg.ArchiveDir, cfg.ArchiveExt, len(workerClients), cfg.ExportRatePerSec, cancel)

	var wg sync.WaitGroup
	for i, c := range workerClients {
		w := worker.New(i, c, cfg.ArchiveDir, cfg.ArchiveExt, cfg.PreviousExt, coord.RunID.String(), coord.Limiter)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, coord.Queue)
		}()
	}

	if err := coord.Run(ctx, cfg.Repos); err != nil {
		slog.Error("coordinator stopped", "error", err)
	}
	wg.Wait()
}
