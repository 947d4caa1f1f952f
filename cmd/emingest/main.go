package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/emingest/internal/logger"
	"github.com/marmos91/emingest/internal/ratelimiter"
	"github.com/marmos91/emingest/pkg/catalog"
	"github.com/marmos91/emingest/pkg/config"
	"github.com/marmos91/emingest/pkg/ingest"
	"github.com/marmos91/emingest/pkg/transfer"
	"github.com/marmos91/emingest/pkg/volume/formats"
	"github.com/spf13/pflag"
)

const usage = `emingest - EMPIAR dataset ingestion

Usage:
  emingest [flags]            Ingest one entry
  emingest init [--force]     Write a default config file

Flags:
`

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		runInit(os.Args[2:])
		return
	}

	flags := pflag.NewFlagSet("emingest", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	config.BindFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Error("Ingestion failed: %v", err)
		os.Exit(1)
	}
}

func runInit(args []string) {
	flags := pflag.NewFlagSet("init", pflag.ExitOnError)
	force := flags.Bool("force", false, "overwrite an existing config file")
	path := flags.String("config", "", "where to write the config (default location if empty)")
	_ = flags.Parse(args)

	var err error
	target := *path
	if target == "" {
		target, err = config.InitConfig(*force)
	} else {
		err = config.InitConfigToPath(target, *force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration written to %s\n", target)
}

func run(cfg *config.Config) error {
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("emingest: source=%s entry=%s output=%s storage=%s",
		cfg.Source.Name, cfg.Source.EntryID, cfg.OutputDir, cfg.Storage.Type)

	// Metrics
	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Stores
	store, err := config.CreateContentStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	idx, err := config.CreateIndex(ctx, &cfg.Index)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			logger.Warn("Failed to close index: %v", err)
		}
	}()

	// Remote endpoints
	client, err := catalog.NewHTTPClient(catalog.HTTPClientConfig{
		BaseURL:  cfg.Source.APIBaseURL,
		Timeout:  cfg.Source.RequestTimeout,
		RetryMax: cfg.Source.RetryMax,
	})
	if err != nil {
		return err
	}

	dataPath := transfer.DataPath(cfg.Source.DataPath, cfg.Source.EntryID)
	openRepository := func(ctx context.Context) (transfer.Repository, error) {
		return transfer.DialFTP(ctx, transfer.FTPConfig{
			Server:   cfg.Source.FTPServer,
			DataPath: dataPath,
			Timeout:  cfg.Source.RequestTimeout,
		})
	}

	var progress io.Writer
	if cfg.Ingest.Progress {
		progress = os.Stderr
	}

	orch, err := ingest.NewOrchestrator(ingest.Config{
		Source:      cfg.Source.Name,
		EntryID:     cfg.Source.EntryID,
		FTPServer:   cfg.Source.FTPServer,
		DataPath:    dataPath,
		OutputDir:   cfg.OutputDir,
		MaxWorkers:  cfg.Ingest.MaxWorkers,
		UniqueNames: cfg.Ingest.UniqueNames,
		Progress:    progress,
	}, ingest.Dependencies{
		Catalog:        client,
		OpenRepository: openRepository,
		Registry:       formats.NewRegistry(),
		Store:          store,
		Index:          idx,
		Limiter:        ratelimiter.New(cfg.Source.RequestsPerSecond, cfg.Source.RequestsPerSecond),
		Metrics:        metricsResult.Ingest,
	})
	if err != nil {
		return err
	}

	summary, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		for kind, n := range summary.FailedByKind() {
			logger.Warn("%d file(s) failed with %s errors", n, kind)
		}
	}
	return nil
}
