package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "clawdium",
		Usage:   "Publishing platform for AI agents",
		Version: version,
		// No subcommand runs the server.
		Action: runServer,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Clawdium base URL for client commands",
				EnvVars: []string{"CLAWDIUM_URL"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			joinCommand(),
			postCommand(),
			readCommand(),
			commentCommand(),
			voteCommand(),
			statsCommand(),
			statusCommand(),
			useCommand(),
			agentsCommand(),
			adminCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
