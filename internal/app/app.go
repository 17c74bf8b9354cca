package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/videolytics/utm-tracker/internal/config"
	"github.com/videolytics/utm-tracker/internal/database/postgres"
	"github.com/videolytics/utm-tracker/internal/enrichment"
	"github.com/videolytics/utm-tracker/internal/service"
	pg "github.com/videolytics/utm-tracker/pkg/postgres"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/videolytics/utm-tracker/internal/api/http/v1"
)

// newLogger builds the request logger for the configured environment. Production
// emits JSON, everything else gets the concise human-readable form.
func newLogger(env string) *httplog.Logger {
	opts := httplog.Options{
		LogLevel: slog.LevelDebug,
		Concise:  true,
	}

	if env == config.EnvProd {
		opts.LogLevel = slog.LevelInfo
		opts.JSON = true
		opts.Concise = false
	}

	return httplog.NewLogger("utm-tracker", opts)
}

// Run wires the application together and serves HTTP until ctx is cancelled.
// In-flight click recordings are drained before Run returns.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	db, err := pg.New(
		ctx,
		cfg.Postgres.DSN(),
		pg.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		pg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		pg.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		pg.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := pg.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	logger := newLogger(cfg.Env)

	linkRepo := postgres.NewLinkRepository(db)
	clickRepo := postgres.NewClickRepository(db)

	enricher := enrichment.New(
		enrichment.WithBaseURL(cfg.Enrichment.GeoBaseURL),
		enrichment.WithHTTPClient(&http.Client{Timeout: cfg.Enrichment.Timeout}),
	)
	recorder := service.NewRecorder(clickRepo, enricher, cfg.Enrichment.Timeout, logger.Logger)

	linkSvc := service.NewLinkService(linkRepo, clickRepo, recorder, logger.Logger, service.Options{
		SlugLength:            cfg.Links.SlugLength,
		RedirectToTrackingURL: cfg.Links.RedirectToTrackingURL,
		RecordTimeout:         cfg.Links.RecordTimeout,
	})
	defer linkSvc.Drain()

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        apihttp.NewRouter(logger, linkSvc),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
