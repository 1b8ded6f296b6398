package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/aascan/service/db"
	"github.com/brojonat/aascan/service/session"
	"github.com/urfave/cli/v2"
)

func dbCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Session preference storage commands",
		Subcommands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Create the preference table if it does not exist",
				Action: func(c *cli.Context) error {
					store, err := getStore(c)
					if err != nil {
						return err
					}
					defer store.Close()
					fmt.Fprintln(c.App.Writer, "✓ Schema is up to date")
					return nil
				},
			},
			{
				Name:      "get-network",
				Usage:     "Show the network a session last selected",
				ArgsUsage: "<session_id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: session id")
					}
					store, err := getStore(c)
					if err != nil {
						return err
					}
					defer store.Close()

					network, err := store.SelectedNetwork(context.Background(), c.Args().First())
					if errors.Is(err, db.ErrNotFound) {
						return fmt.Errorf("no network stored for session %s", c.Args().First())
					}
					if err != nil {
						return fmt.Errorf("failed to get network: %w", err)
					}
					fmt.Fprintln(c.App.Writer, network)
					return nil
				},
			},
			{
				Name:  "prune",
				Usage: "Delete preferences that have not been updated recently",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age after which a preference is deleted",
						Value: session.PreferenceRetention,
					},
				},
				Action: func(c *cli.Context) error {
					store, err := getStore(c)
					if err != nil {
						return err
					}
					defer store.Close()

					n, err := store.DeleteBefore(context.Background(), time.Now().Add(-c.Duration("older-than")))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Deleted %d preferences\n", n)
					return nil
				},
			},
		},
	}
}

// getStore connects to the database and applies the schema.
func getStore(c *cli.Context) (*db.Store, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}
	store, err := db.Connect(context.Background(), dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store, nil
}
