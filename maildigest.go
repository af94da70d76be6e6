package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/maildigest/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "maildigest",
		Usage:   "Triage unlabeled Gmail into a prioritized digest delivered to Slack",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./maildigest.toml, then ~/.maildigest.toml)",
			},
		},
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.ServeCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
