package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/starford/vaultlens/internal"
	"github.com/starford/vaultlens/internal/models"
	pkgconfig "github.com/starford/vaultlens/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if db := cmd.String("db"); db != "" {
		cfg.SQLite.Path = db
	}
	return cfg, nil
}

func openApp(cmd *cli.Command, opts ...internal.Option) (*internal.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	// Commands print their results on stdout.
	opts = append([]internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	}, opts...)
	return internal.New(opts...)
}

func wantJSON(cmd *cli.Command) bool {
	return cmd.Bool("json") || !isatty.IsTerminal(os.Stdout.Fd())
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	force := cmd.Bool("force")
	var results []*models.ScanResult
	var errs []error
	if paths := cmd.Args().Slice(); len(paths) > 0 {
		for _, p := range paths {
			res, err := app.Service.ScanPath(ctx, p, "", force)
			if err != nil {
				errs = append(errs, fmt.Errorf("scan %s: %w", p, err))
				continue
			}
			results = append(results, res)
		}
	} else {
		if len(app.Config.Vaults) == 0 {
			return errors.New("no vault paths given and none configured")
		}
		all, err := app.Service.ScanAll(ctx, app.Targets(), force)
		errs = append(errs, err)
		for _, res := range all {
			if res != nil {
				results = append(results, res)
			}
		}
	}

	if cmd.Bool("analyze") {
		for _, res := range results {
			if _, err := app.Service.Analyze(ctx, res.VaultID); err != nil {
				errs = append(errs, err)
			}
		}
	}

	p := newPrinter(os.Stdout, wantJSON(cmd))
	for _, res := range results {
		if err := p.scan(res); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// vaultIDs resolves vault refs from the arguments, or every registered
// vault when none are given.
func vaultIDs(ctx context.Context, app *internal.App, refs []string) ([]int64, error) {
	if len(refs) == 0 {
		vaults, err := app.Service.ListVaults(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(vaults))
		for i, v := range vaults {
			ids[i] = v.ID
		}
		return ids, nil
	}
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		v, err := app.Service.ResolveVault(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		ids = append(ids, v.ID)
	}
	return ids, nil
}

func analyze(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ids, err := vaultIDs(ctx, app, cmd.Args().Slice())
	if err != nil {
		return err
	}
	p := newPrinter(os.Stdout, wantJSON(cmd))
	var errs []error
	for _, id := range ids {
		res, err := app.Service.Analyze(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.analysis(res); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func report(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ids, err := vaultIDs(ctx, app, cmd.Args().Slice())
	if err != nil {
		return err
	}
	p := newPrinter(os.Stdout, wantJSON(cmd))
	for _, id := range ids {
		rep, err := app.Service.Report(ctx, id)
		if err != nil {
			return err
		}
		if err := p.report(rep, int(cmd.Int("limit"))); err != nil {
			return err
		}
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.ServeMCP()
}

func main() {
	jsonFlag := &cli.BoolFlag{
		Name:  "json",
		Usage: "Print JSON even on a terminal",
	}

	cmd := &cli.Command{
		Name:    "vaultlens",
		Usage:   "Scan Markdown vaults and analyse their link graph: hubs, orphans, broken links and clusters",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database path (overrides sqlite.path)",
				Sources: cli.EnvVars("VAULTLENS_DB"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Scan configured vaults, then serve the HTTP API and watch for changes",
				Action: serve,
			},
			{
				Name:      "scan",
				Usage:     "Scan vault directories (default: the configured vaults)",
				ArgsUsage: "[path...]",
				Action:    scan,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Reparse unchanged files"},
					&cli.BoolFlag{Name: "analyze", Aliases: []string{"a"}, Usage: "Analyse each vault after scanning"},
					jsonFlag,
				},
			},
			{
				Name:      "analyze",
				Usage:     "Recompute graph metrics and clusters (default: every registered vault)",
				ArgsUsage: "[vault-id|path...]",
				Action:    analyze,
				Flags:     []cli.Flag{jsonFlag},
			},
			{
				Name:      "report",
				Usage:     "Print hubs, orphans, broken links and clusters",
				ArgsUsage: "[vault-id|path...]",
				Action:    report,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Rows per section"},
					jsonFlag,
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
