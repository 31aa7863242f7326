// Command server runs the recipe extraction API, the dispatch worker pool and
// the maintenance sweeper in one process.
//
// @title                      Recipe Extraction API
// @version                    1.0
// @description                Turns short-form cooking videos, photos, voice notes and pasted text into structured recipe drafts, metered by a weekly and a referral credit pool.
// @BasePath                   /api/v1
// @securityDefinitions.apikey InternalToken
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	_ "github.com/tbourn/recipe-extraction-backend/docs"
	"github.com/tbourn/recipe-extraction-backend/internal/async"
	"github.com/tbourn/recipe-extraction-backend/internal/config"
	"github.com/tbourn/recipe-extraction-backend/internal/engine"
	httpapi "github.com/tbourn/recipe-extraction-backend/internal/http"
	"github.com/tbourn/recipe-extraction-backend/internal/ledger"
	"github.com/tbourn/recipe-extraction-backend/internal/observability"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
	"github.com/tbourn/recipe-extraction-backend/internal/services"
	"github.com/tbourn/recipe-extraction-backend/internal/storage"
	"github.com/tbourn/recipe-extraction-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
	if err != nil {
		return err
	}

	// Storage
	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	temp := storage.NewLocalStorage(cfg.TempDir)

	// Services
	l := ledger.New(db)
	eng := engine.NewClient(cfg.Engine.URL, cfg.Engine.Token, log.Logger)
	jobs := services.NewJobManager(db, l, eng, temp)
	jobs.EngineTimeout = cfg.Engine.Timeout
	jobs.IdempotencyTTL = cfg.IdempotencyTTL

	queue := async.New(jobs.Process, log.Logger,
		async.WithWorkers(cfg.Workers.Count),
		async.WithQueueSize(cfg.Workers.QueueSize),
		async.WithProcessTimeout(cfg.Workers.JobTimeout),
	)
	jobs.Dispatcher = queue

	sweeper := &services.Sweeper{
		Ledger:     l,
		Jobs:       jobs,
		Interval:   cfg.Workers.SweepInterval,
		JobTimeout: cfg.Workers.JobTimeout,
		Logger:     log.With().Str("component", "sweeper").Logger(),
	}

	// HTTP
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Services{
		Jobs:      jobs,
		Ledger:    l,
		Referrals: services.NewReferralService(db, l),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(sctx)
		// In-flight jobs finish or are recovered by the next sweeper run.
		queue.Shutdown(sctx)
		if oerr := shutdownOTel(sctx); oerr != nil {
			log.Warn().Err(oerr).Msg("otel shutdown")
		}
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return err
	})
	return g.Wait()
}
