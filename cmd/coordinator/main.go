package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CallCoordinator/internal/auth"
	"CallCoordinator/internal/callsession"
	"CallCoordinator/internal/config"
	httpserver "CallCoordinator/internal/http_server"
	"CallCoordinator/internal/metrics"
	"CallCoordinator/internal/ratelimit"
	"CallCoordinator/internal/registrar"
	calljournal "CallCoordinator/internal/repository/call_journal"
	"CallCoordinator/internal/repository/memory"
	"CallCoordinator/internal/repository/presence"
	"CallCoordinator/internal/router"
	"CallCoordinator/internal/signaling"
	"CallCoordinator/internal/transport"
	"CallCoordinator/pkg/dbconnecter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

type presenceBackend interface {
	signaling.PresenceStore
	auth.NameResolver
	ResetOnline(ctx context.Context) (int64, error)
}

type callBackend interface {
	signaling.CallStore
	List(ctx context.Context, filter calljournal.ListFilter) ([]calljournal.CallJournal, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		pres  presenceBackend
		calls callBackend
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		pres = memory.NewPresenceRepository()
		calls = memory.NewCallJournalRepository()
		logger.Warn().Msg("using in-memory stores, nothing survives a restart")
	default:
		db, dbName, dbCloser, err := dbconnecter.DbConnecter(ctx, cfg.Postgres, false, cfg.Postgres.Retry)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer dbCloser()
		logger.Info().Str("database", dbName).Msg("database connected")
		pres = presence.NewPresenceRepo(db)
		calls = calljournal.NewCallJournalRepo(db)
	}

	if n, err := pres.ResetOnline(ctx); err != nil {
		logger.Error().Err(err).Msg("reset stale presence")
	} else if n > 0 {
		logger.Info().Int64("users", n).Msg("cleared stale online flags")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(promReg)

	reg := registrar.New()
	sig := signaling.New(
		reg,
		callsession.NewTable(),
		ratelimit.New(ratelimit.Config{Window: cfg.RateLimitWindow, MaxEvents: cfg.RateLimitMaxEvents}),
		calls,
		pres,
		signaling.Config{
			RingTimeout:       cfg.RingTimeout,
			SweepInterval:     cfg.SweepInterval,
			StoreWriteTimeout: cfg.StoreWriteTimeout,
			RecorderQueueSize: cfg.RecorderQueueSize,
		},
		logger,
	)

	hs := httpserver.NewHttpServer(
		sig,
		calls,
		auth.NewJWTAuthenticator(cfg.JWTSecret, pres, logger),
		transport.Config{
			SendBuffer:      cfg.SendBuffer,
			WriteWait:       cfg.WSWriteWait,
			PongWait:        cfg.WSPongWait,
			MaxMessageBytes: cfg.WSMaxMessageBytes,
		},
		logger,
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRouter(hs, promReg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The signaling workers outlive the signal context so the recorder can
	// persist the disconnect records produced while connections close.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return sig.Run(gctx)
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-gctx.Done():
		}
		logger.Info().Msg("shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
		if err := hs.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("websocket shutdown")
		}
		cancelRun()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("coordinator stopped")
		os.Exit(1)
	}
	logger.Info().Msg("coordinator stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogFormat == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Caller().Logger()
}
