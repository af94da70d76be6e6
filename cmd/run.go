package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/maildigest/internal/config"
	"github.com/maildigest/pkg/models"
)

// RunCommand returns the run command
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the triage pipeline once and print the run result",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging for this command",
			},
			&cli.BoolFlag{
				Name:  "no-slack",
				Usage: "Skip Slack delivery for this run",
			},
		},
		Action: runPipeline,
	}
}

func runPipeline(c *cli.Context) error {
	cfg, err := loadConfig(c, runOverrides(c))
	if err != nil {
		return err
	}

	logger := setupLogging(c, cfg)

	runner, err := newRunner(c.Context, cfg, logger)
	if err != nil {
		return err
	}

	result := runner.Run(c.Context)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run result: %w", err)
	}
	fmt.Fprintln(c.App.Writer, string(out))

	if result.Status != models.RunStatusSuccess {
		return cli.Exit(fmt.Sprintf("pipeline failed in %s", result.FailedState), 1)
	}
	return nil
}

// runOverrides applies the run command's flags to the loaded config.
func runOverrides(c *cli.Context) func(*config.Config) {
	return func(cfg *config.Config) {
		if c.Bool("no-slack") {
			cfg.Slack.Enabled = false
		}
	}
}
