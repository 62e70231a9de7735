// Package app builds the progress service's long-lived dependencies from
// Config and runs the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/game-progress/internal/api"
	"github.com/JakeFAU/game-progress/internal/config"
	"github.com/JakeFAU/game-progress/internal/handler"
	"github.com/JakeFAU/game-progress/internal/logging"
	"github.com/JakeFAU/game-progress/internal/progress"
	gcppublisher "github.com/JakeFAU/game-progress/internal/publisher/pubsub"
	"github.com/JakeFAU/game-progress/internal/storage/postgres"
	"github.com/JakeFAU/game-progress/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     progress.Store
	publisher progress.Publisher
	topic     string
	handler   *handler.Handler
	apiServer *api.Server
	closers   []func() error
}

// Option customizes an App.
type Option func(*App)

// WithPublisher sends progress events to publisher instead of the one
// derived from cfg.PubSub.
func WithPublisher(publisher progress.Publisher, topic string) Option {
	return func(a *App) {
		a.publisher = publisher
		a.topic = topic
	}
}

// New wires the store, publisher, handler and HTTP server described by cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, logger: logging.OrNop(logger)}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.setupStore(); err != nil {
		return nil, err
	}
	if a.publisher == nil {
		if err := a.setupPublisher(ctx); err != nil {
			return nil, err
		}
	}

	a.handler = handler.New(a.store, a.logger.Named("handler"), handler.WithPublisher(a.publisher, a.topic))
	a.apiServer = api.NewServer(a.handler, a.store, a.logger.Named("api"))

	a.logger.Info("application created",
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver),
		zap.String("table", cfg.Database.Table),
		zap.Bool("publish_events", a.publisher != nil),
	)
	return a, nil
}

func (a *App) setupStore() error {
	switch a.cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := postgres.NewStore(postgres.Config{DSN: a.cfg.Database.DSN, Table: a.cfg.Database.Table})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.store = store
	case config.DriverSQLite:
		store, err := sqlite.NewStore(sqlite.Config{DSN: a.cfg.Database.DSN, Table: a.cfg.Database.Table})
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		a.store = store
	default:
		return fmt.Errorf("unknown database driver %q", a.cfg.Database.Driver)
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		return nil
	}
	a.topic = a.cfg.PubSub.TopicName
	pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.publisher = pub
	a.closers = append(a.closers, pub.Close)
	a.logger.Info("publishing progress events",
		zap.String("project_id", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.topic),
	)
	return nil
}

// Handler exposes the progress handler for direct invocation.
func (a *App) Handler() *handler.Handler {
	return a.handler
}

// Handle runs one invocation through the progress handler.
func (a *App) Handle(ctx context.Context, req handler.Request) (handler.Response, error) {
	return a.handler.Handle(ctx, req)
}

// Store returns the configured progress store.
func (a *App) Store() progress.Store {
	return a.store
}

// Publisher returns the configured event publisher, or nil when events are
// not published.
func (a *App) Publisher() progress.Publisher {
	return a.publisher
}

// HTTPHandler returns the router served by Run.
func (a *App) HTTPHandler() http.Handler {
	return a.apiServer.Handler()
}

// Run listens on the configured port and blocks until ctx is canceled or
// SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", a.cfg.Server.Port, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is done, then shuts it down
// gracefully.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases the publisher and any other long-lived clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
