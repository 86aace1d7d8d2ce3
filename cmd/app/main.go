// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/possync/cmd/app/commands"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "possync",
		Usage:   "Point-of-sale terminal with offline-durable back office synchronization",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the terminal: sync engine, health monitor and operator API",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx, version)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunMigrations()
				},
			},
			{
				Name:  "status",
				Usage: "Print the outbox queue state",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunStatus(ctx, cmd.String("format"))
				},
			},
			{
				Name:  "force-sync",
				Usage: "Drain the outbox once and report the result",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunForceSync(ctx, cmd.String("format"))
				},
			},
			{
				Name:  "record-sale",
				Usage: "Record a completed sale from a JSON document",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "sale",
						Aliases:  []string{"s"},
						Required: true,
						Usage:    "Sale document as JSON, or '-' to read from stdin",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunRecordSale(ctx, cmd.String("sale"), cmd.String("format"))
				},
			},
			{
				Name:  "purge-synced",
				Usage: "Delete synced change records older than the given age",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:     "older-than",
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "Minimum age of synced records to delete (e.g. 72h)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunPurgeSynced(ctx, cmd.Duration("older-than"), cmd.String("format"))
				},
			},
			{
				Name:  "clear-dead-letters",
				Usage: "Permanently delete every dead letter record",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "confirm",
						Value: false,
						Usage: "Confirm the destructive deletion",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunClearDeadLetters(ctx, cmd.Bool("confirm"), cmd.String("format"))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
