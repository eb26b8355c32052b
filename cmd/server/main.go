package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"golang.org/x/sync/errgroup"

	"github.com/wer153/biosensor-api/internal/auth"
	"github.com/wer153/biosensor-api/internal/config"
	"github.com/wer153/biosensor-api/internal/db/migrations"
	"github.com/wer153/biosensor-api/internal/file"
	"github.com/wer153/biosensor-api/internal/handler"
	"github.com/wer153/biosensor-api/internal/jobs"
	"github.com/wer153/biosensor-api/internal/token"
	"github.com/wer153/biosensor-api/internal/user"
	"github.com/wer153/biosensor-api/pkg/db"
	"github.com/wer153/biosensor-api/pkg/health"
	"github.com/wer153/biosensor-api/pkg/logger"
	"github.com/wer153/biosensor-api/pkg/redis"
	"github.com/wer153/biosensor-api/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.NewWithSentry(cfg.Sentry, handler.RequestIDExtractor())

	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS, cfg.DB.MigrationsTable, log); err != nil {
		return err
	}
	if err := migrateRiver(ctx, pool); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	gateway, err := storage.New(cfg.Storage)
	if err != nil {
		return err
	}

	accessTokens := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTokenTTL)
	refreshTokens := token.NewStore(redisClient, cfg.Auth.RefreshTokenTTL)

	userSvc := user.NewService(user.NewRepository(pool), refreshTokens, accessTokens, log)
	fileSvc := file.NewService(file.NewRepository(pool), gateway, log)

	runner, err := jobs.NewRunner(pool, fileSvc, cfg.Jobs, log)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}

	router := handler.NewRouter(handler.RouterConfig{
		Users:  userSvc,
		Files:  fileSvc,
		Tokens: accessTokens,
		Checks: health.Checks{
			"postgres": db.Healthcheck(pool),
			"redis":    redis.Healthcheck(redisClient),
		},
		CORS: handler.CORSConfig{AllowOrigins: cfg.HTTP.CORSAllowOrigins},
		Log:  log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := runner.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
			log.Error("job runner shutdown failed", slog.Any("error", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown completed with errors")
		return err
	}

	log.Info("shutdown completed")
	return nil
}

// migrateRiver applies the job queue schema.
func migrateRiver(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return err
	}
	_, err = migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{})
	return err
}
