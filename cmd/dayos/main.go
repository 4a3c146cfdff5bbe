package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/jamesgiroux/dayos/internal"
	pkgconfig "github.com/jamesgiroux/dayos/pkg/config"
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to config file",
			DefaultText: "config/config.yaml",
			Value:       "config/config.yaml",
			Sources:     cli.EnvVars("DAYOS_CONFIG_FILE"),
		},
	}
}

// loadConfig reads the config file named by --config. A missing file at the
// default path is fine; the defaults apply. An explicitly named file must
// exist.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	path := cmd.String("config")

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !cmd.IsSet("config") {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("default config invalid: %w", err)
		}
		return cfg, nil
	}

	if err := pkgconfig.Load(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "dayos",
		Usage: "Entity workspace with canonical records, a SQLite mirror, generated narratives, and AI enrichment",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API, SSE stream, and workspace watcher",
				Flags: configFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.Run(ctx, internal.WithConfig(cfg))
				},
			},
			{
				Name:  "scan",
				Usage: "Reconcile the mirror with the workspace once and print the report",
				Flags: configFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.RunScan(ctx, internal.WithConfig(cfg))
				},
			},
			{
				Name:      "enrich",
				Usage:     "Run the enrichment pipeline for one entity (kind/slug) or --all",
				ArgsUsage: "[kind/slug]",
				Flags: append(configFlags(),
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Enrich every entity in the workspace",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Resynthesize even when the brief matches the current fingerprint",
					},
				),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					all := cmd.Bool("all")
					target := cmd.Args().First()
					if !all && target == "" {
						return fmt.Errorf("enrich needs a kind/slug target or --all")
					}
					return internal.RunEnrich(ctx, target, all, cmd.Bool("force"), internal.WithConfig(cfg))
				},
			},
			{
				Name:  "mcp",
				Usage: "Serve MCP tools for LLM agents over stdio",
				Flags: configFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.RunMCP(ctx, internal.WithConfig(cfg))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
