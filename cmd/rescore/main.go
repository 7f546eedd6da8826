// Package main is the entry point for the offline rescoring tool.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/onnwee/bazaar/internal/catalog"
	"github.com/onnwee/bazaar/internal/config"
	"github.com/onnwee/bazaar/internal/db"
	"github.com/onnwee/bazaar/internal/middleware"
	"github.com/onnwee/bazaar/internal/ranking"
	"github.com/onnwee/bazaar/internal/scoring"
	"github.com/onnwee/bazaar/internal/settings"
)

// options selects what the tool does. Explain wins over Listing; with
// neither set a full pass runs.
type options struct {
	BatchSize int
	Listing   string
	Explain   string
}

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (env vars take precedence)")
	batchSize := flag.Int("batch-size", 0, "page size for a full pass (default from config)")
	weightsPath := flag.String("weights", "", "calibration JSON file overriding stored weights")
	listingID := flag.String("listing", "", "recompute a single listing")
	explainID := flag.String("explain", "", "print the score breakdown of a listing without saving it")
	flag.Parse()

	if *help {
		fmt.Println("Bazaar Rescore")
		fmt.Println()
		fmt.Println("Usage: rescore [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		slog.Error("invalid configuration", "error", config.ErrMissingDatabaseURL)
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultOptions())
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	var source ranking.WeightSource = settings.NewPostgresWeightSource(sqlDB)
	if *weightsPath != "" {
		source = ranking.NewFileWeightSource(*weightsPath)
	}

	store := catalog.NewPostgresStore(sqlDB, logger)
	engine := scoring.NewEngine(store, store, ranking.NewWeightProvider(source, logger), scoring.EngineConfig{
		Logger: logger,
	})

	opts := options{
		BatchSize: *batchSize,
		Listing:   *listingID,
		Explain:   *explainID,
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = cfg.RecomputeBatchSize
	}

	if err := execute(ctx, engine, opts, os.Stdout); err != nil {
		logger.Error("rescore failed", "error", err)
		os.Exit(1)
	}
}

// execute runs the selected operation and writes its result to out.
func execute(ctx context.Context, engine *scoring.Engine, opts options, out io.Writer) error {
	switch {
	case opts.Explain != "":
		explanation, err := engine.Explain(ctx, opts.Explain)
		if err != nil {
			return fmt.Errorf("explain %s: %w", opts.Explain, err)
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(explanation)

	case opts.Listing != "":
		score, err := engine.RecomputeOne(ctx, opts.Listing)
		if err != nil {
			return fmt.Errorf("recompute %s: %w", opts.Listing, err)
		}
		_, err = fmt.Fprintf(out, "%s\t%.4f\n", opts.Listing, score)
		return err

	default:
		if opts.BatchSize <= 0 {
			return scoring.ErrInvalidBatchSize
		}
		updated, err := engine.RecomputeAll(ctx, opts.BatchSize)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("recompute all: %w", err)
		}
		_, werr := fmt.Fprintf(out, "updated %d listings\n", updated)
		if err != nil {
			return err
		}
		return werr
	}
}
