package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/maildigest/internal/api"
	"github.com/maildigest/internal/config"
)

// ServeCommand returns the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP trigger server and the optional interval scheduler",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Run the pipeline every `DURATION` (overrides server.interval, 0 disables)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging for this command",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c, func(cfg *config.Config) {
		if c.IsSet("port") {
			cfg.Server.Port = c.Int("port")
		}
		if c.IsSet("interval") {
			cfg.Server.Interval = c.Duration("interval")
		}
	})
	if err != nil {
		return err
	}

	logger := setupLogging(c, cfg)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}

	coord := api.NewCoordinator(runner, logger)
	server := api.NewServer(cfg.Server.Port, coord, logger)
	scheduler := api.NewScheduler(coord, cfg.Server.Interval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	logger.Info().Int("port", cfg.Server.Port).Dur("interval", cfg.Server.Interval).Msg("Mail digest service started")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("Mail digest service stopped")
	return nil
}
