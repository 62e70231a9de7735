// Package cmd defines the CLI commands for the progress executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/game-progress/internal/app"
	"github.com/JakeFAU/game-progress/internal/config"
	"github.com/JakeFAU/game-progress/internal/handler"
	"github.com/JakeFAU/game-progress/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of *app.App the commands use. Tests swap in a fake
// through newApp.
type App interface {
	Handle(ctx context.Context, req handler.Request) (handler.Response, error)
	Run(ctx context.Context) error
	Close() error
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

type rootOptions struct {
	configPath string
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Game progress function: read-or-create and match-result updates.",
		Long: `progress serves a player's game statistics over HTTP. GET reads (and
lazily provisions) a player's record, POST applies one match result.
The same handler can be run once against an event file with "invoke".`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			opts.logger = logger

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if opts.logger != nil {
				// Sync on stderr/stdout returns EINVAL on some platforms.
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInvokeCmd())
	cmd.AddCommand(newLambdaCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// runWithApp resolves the App for fn and closes it when fn returns. Cobra
// skips post-run hooks after a RunE error, so the close happens here.
func runWithApp(fn func(cmd *cobra.Command, appInstance App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := appInstance.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close application: %w", cerr))
			}
		}()
		return fn(cmd, appInstance)
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "progress: %v\n", err)
		os.Exit(1)
	}
}
