// apartmentd hosts objects on a single-worker apartment and exposes them
// over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/apartment/internal/apartment"
	"github.com/seantiz/apartment/internal/api"
	"github.com/seantiz/apartment/internal/config"
	"github.com/seantiz/apartment/internal/engine"
	"github.com/seantiz/apartment/internal/factory"
	"github.com/seantiz/apartment/internal/kind"
	"github.com/seantiz/apartment/internal/lifetime"
	"github.com/seantiz/apartment/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("apartmentd: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	undoMaxProcs, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Info(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}
	defer undoMaxProcs()

	logger.Info("apartmentd: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"apartment", cfg.ApartmentName,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// This goroutine owns the apartment. Objects severed at shutdown report
	// back through its mailbox, which Shutdown serves while it waits.
	owner := apartment.NewMailbox(cfg.MailboxCapacity)
	f, err := factory.Start(new(lifetime.Counter), logger,
		apartment.WithName(cfg.ApartmentName),
		apartment.WithWakeCapacity(cfg.WakeCapacity),
		apartment.WithStopRetryInterval(cfg.StopRetryInterval),
		apartment.WithOwner(owner),
	)
	if err != nil {
		return err
	}

	eng := engine.NewEngine(db, kind.NewDefaultRegistry(), f, owner, logger)
	srv := api.NewServer(cfg.ListenAddr, db, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	_ = owner.Serve(gctx)
	serveErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Error("engine shutdown", "error", err)
	}
	logger.Info("apartmentd: stopped",
		"can_unload", f.CanUnloadNow(),
		"lifetime_refs", f.Lifetime().Count(),
	)
	return serveErr
}
