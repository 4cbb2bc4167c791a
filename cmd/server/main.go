package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wikilinks/app/internal/app/bootstrap"
	"wikilinks/app/internal/config"
	applog "wikilinks/app/internal/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	serve := serveCommand()

	root := &cobra.Command{
		Use:           "wikilinks",
		Short:         "wiki cross-reference server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	root.AddCommand(serve, migrateCommand(), reconcileCommand())
	root.CompletionOptions.HiddenDefaultCmd = true

	return root
}

// runtime holds what every command needs before it touches the database.
type runtime struct {
	config    *config.Config
	logger    *logrus.Logger
	sentryHub *sentry.Hub
	flush     func()
}

func (r *runtime) dependencies() bootstrap.Dependencies {
	return bootstrap.Dependencies{
		Config:    *r.config,
		Logger:    r.logger,
		SentryHub: r.sentryHub,
	}
}

func loadRuntime() (*runtime, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, eris.Wrap(err, "failure loading configuration")
	}

	logger, err := applog.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, eris.Wrap(err, "failure initialising logger")
	}

	sentryHub, flush, err := applog.InitSentry(logger, applog.SentrySettings{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, eris.Wrap(err, "failure initialising sentry")
	}

	return &runtime{config: cfg, logger: logger, sentryHub: sentryHub, flush: flush}, nil
}
