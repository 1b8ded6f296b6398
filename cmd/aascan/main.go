package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "aascan",
		Usage: "ERC-4337 account abstraction explorer CLI",
		Description: `Browse bundles, user operations, bundlers and paymasters across networks.

List and detail commands read the query API directly. Detail commands resolve
the network of an address when --network is omitted.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			networksCommand(),
			listCommand("bundles", "List recent bundles"),
			listCommand("userops", "List recent user operations"),
			listCommand("bundlers", "List top bundlers"),
			listCommand("paymasters", "List top paymasters"),
			detailCommand("paymaster", "Show a paymaster and the user operations it sponsored"),
			detailCommand("bundler", "Show a bundler and its bundles"),
			detailCommand("account", "Show an account and the user operations it sent"),
			resolveCommand(),
			dbCommand(),
			{
				Name:  "notifications",
				Usage: "Notification streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "query-url",
				Usage:   "Query API base URL",
				EnvVars: []string{"QUERY_API_URL"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "Timeout for each query API request",
				EnvVars: []string{"QUERY_TIMEOUT"},
				Value:   10 * time.Second,
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for health checks",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
		},
	}
}
