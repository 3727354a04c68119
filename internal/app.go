package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/vaultlens/internal/analysis"
	"github.com/starford/vaultlens/internal/checksum"
	"github.com/starford/vaultlens/internal/index"
	"github.com/starford/vaultlens/internal/mcpserver"
	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/parser"
	"github.com/starford/vaultlens/internal/scanner"
	"github.com/starford/vaultlens/internal/sse"
	"github.com/starford/vaultlens/internal/vaultservice"
)

// App holds the wired components shared by every command.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	DB      *index.DB
	Service *vaultservice.Service
	Broker  *sse.Broker

	version string
}

// New opens the index and wires scanner, analyzer, event broker and
// service according to the configuration.
func New(opts ...Option) (*App, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	hash, err := checksum.ForAlgorithm(cfg.Scan.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	sc := scanner.New(db,
		scanner.WithParser(parser.New(parser.WithHash(hash))),
		scanner.WithStorageOptions(cfg.Scan.StorageOptions()...),
		scanner.WithConcurrency(cfg.Scan.Concurrency),
		scanner.WithLogger(logger))
	an := analysis.New(db,
		analysis.WithMetrics(cfg.Analysis.MetricsOptions()),
		analysis.WithCluster(cfg.Analysis.ClusterOptions()),
		analysis.WithLogger(logger))

	broker := sse.NewBroker(2 * time.Second)
	svc := vaultservice.NewService(db, sc, an,
		vaultservice.WithPublisher(broker),
		vaultservice.WithHubThreshold(cfg.Analysis.HubThreshold),
		vaultservice.WithLogger(logger))

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("vaults", len(cfg.Vaults)),
		slog.String("hash_algorithm", cfg.Scan.HashAlgorithm),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Service: svc,
		Broker:  broker,
		version: app.version,
	}, nil
}

// Close releases the broker and the database.
func (a *App) Close() error {
	a.Broker.Close()
	return a.DB.Close()
}

// Targets returns the configured vaults as scan targets.
func (a *App) Targets() []scanner.Target {
	targets := make([]scanner.Target, 0, len(a.Config.Vaults))
	for _, v := range a.Config.Vaults {
		targets = append(targets, scanner.Target{Root: v.Path, Name: v.Name})
	}
	return targets
}

// Bootstrap scans the configured vaults and analyses each one that scanned
// successfully. Per-vault failures are logged and joined into the returned
// error; the ids of the vaults that were scanned are returned regardless.
func (a *App) Bootstrap(ctx context.Context, force bool) ([]int64, error) {
	results, scanErr := a.Service.ScanAll(ctx, a.Targets(), force)
	if scanErr != nil {
		a.Logger.Warn("bootstrap: scan failed", slog.String("error", scanErr.Error()))
	}

	var ids []int64
	var errs []error
	if scanErr != nil {
		errs = append(errs, scanErr)
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		ids = append(ids, res.VaultID)
		logScan(a.Logger, res)
		if _, err := a.Service.Analyze(ctx, res.VaultID); err != nil {
			errs = append(errs, err)
		}
	}
	return ids, errors.Join(errs...)
}

// ServeMCP runs the MCP server on stdio until the client disconnects.
func (a *App) ServeMCP() error {
	return mcpserver.New(a.Service, a.version).ServeStdio()
}

func logScan(logger *slog.Logger, res *models.ScanResult) {
	logger.Info("bootstrap: scanned",
		slog.Int64("vault_id", res.VaultID),
		slog.Int("notes", res.NotesScanned),
		slog.Int("parsed", res.NotesParsed),
		slog.Int("skipped", res.NotesSkipped),
		slog.Int("removed", res.NotesRemoved),
		slog.Int("errors", len(res.Errors)),
		slog.Duration("duration", res.Duration))
}
