package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/fightcard-backend/internal/card"
	"github.com/DoyleJ11/fightcard-backend/internal/config"
	"github.com/DoyleJ11/fightcard-backend/internal/httpapi"
	"github.com/DoyleJ11/fightcard-backend/internal/hub"
	"github.com/DoyleJ11/fightcard-backend/internal/logging"
	"github.com/DoyleJ11/fightcard-backend/internal/mirror"
	"github.com/DoyleJ11/fightcard-backend/internal/ws"
	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	// --- Durable mirror ---
	// A database that cannot be reached at boot is not fatal; cards run in
	// memory and the file mirror, if any, takes every write.
	var store *mirror.Store
	if cfg.DatabaseURL != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		store, err = mirror.Open(openCtx, cfg.DatabaseURL, log.Named("gorm"))
		cancel()
		if err != nil {
			log.Warn("database unavailable, running without it", zap.Error(err))
			store = nil
		} else {
			defer store.Close()
			log.Info("database mirror ready", zap.String("dialect", mirror.Dialector(cfg.DatabaseURL).Name()))
		}
	}

	var files *mirror.FileMirror
	if cfg.FileMirrorDir != "" {
		files, err = mirror.NewFileMirror(cfg.FileMirrorDir, cfg.FileMirrorGit, log.Named("files"))
		if err != nil {
			log.Warn("file mirror unavailable", zap.Error(err))
			files = nil
		}
	}

	popts := mirror.PersisterOptions{
		Retries: cfg.PersistRetries,
		Backoff: cfg.PersistBackoff,
		Logger:  log.Named("persist"),
	}
	var sources mirror.Chain
	if store != nil {
		popts.Primary = store
		popts.Cards = store
		popts.Audits = store
		sources = append(sources, store)
	}
	if files != nil {
		if popts.Primary == nil {
			popts.Primary = files
		} else {
			popts.Fallback = files
		}
		sources = append(sources, files)
	}
	persister := mirror.NewPersister(popts)

	// --- Cards ---
	g, gctx := errgroup.WithContext(ctx)

	h := hub.NewHub(gctx, hub.Options{
		Card: card.Options{
			Persister:     persister,
			Auditor:       persister,
			Logger:        log.Named("card"),
			GuardCapacity: cfg.IdempotencyCapacity,
		},
		Recorder: persister,
		Logger:   log.Named("hub"),
	})

	records := []types.CardRecord{{Slug: cfg.DefaultCard, CreatedAt: time.Now()}}
	if store != nil {
		restored, err := store.ListCards(ctx, time.Now())
		if err != nil {
			log.Warn("listing stored cards failed", zap.Error(err))
		}
		for _, rec := range restored {
			if rec.Slug != cfg.DefaultCard {
				records = append(records, rec)
			}
		}
	}
	for _, rec := range records {
		state := mirror.Reconcile(ctx, sources, popts.Primary, rec.Slug, cfg.StartEmpty, log.Named("reconcile"))
		if _, err := h.Ensure(ctx, rec, state); err != nil {
			return fmt.Errorf("registering card %q: %w", rec.Slug, err)
		}
	}
	log.Info("cards ready", zap.Int("count", len(records)))

	// --- HTTP Server ---
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(h, httpapi.Config{
			AdminToken:    cfg.AdminToken,
			DefaultCard:   cfg.DefaultCard,
			PublicBaseURL: cfg.PublicBaseURL,
			CardTTL:       cfg.CardTTL(),
			WS: ws.Config{
				WriteTimeout:   cfg.WSWriteTimeout,
				PingInterval:   cfg.WSPingInterval,
				OriginPatterns: cfg.OriginPatterns,
			},
		}, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Run ---
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return persister.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-h.Done()
		persister.Flush(shutdownCtx)
		return err
	})

	return g.Wait()
}
