package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dipscan/dipscan/internal/archive"
	"github.com/dipscan/dipscan/internal/batch"
	"github.com/dipscan/dipscan/internal/config"
	"github.com/dipscan/dipscan/internal/lightcurve"
	"github.com/dipscan/dipscan/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	timeout := flag.Duration("timeout", 0, "per-file download deadline (overrides config)")
	maxFiles := flag.Int("max-files", -1, "cap on files processed; 0 means no limit (overrides config)")
	binSize := flag.Float64("bin-size", 0, "deviation bin width in days (overrides config)")
	verbose := flag.Bool("v", false, "log per-file progress")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <kic-number>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	id, err := strconv.Atoi(flag.Arg(0))
	if err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "kic-number must be a positive integer, got %q\n", flag.Arg(0))
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	opts := batch.Options{
		Timeout:  cfg.Batch.DownloadTimeout,
		MaxFiles: cfg.Batch.MaxFiles,
		BinSize:  cfg.Batch.BinSize,
	}
	if *timeout > 0 {
		opts.Timeout = *timeout
	}
	if *maxFiles >= 0 {
		opts.MaxFiles = *maxFiles
	}
	if *binSize > 0 {
		opts.BinSize = *binSize
	}

	st, err := store.New(cfg.Store.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open result store: %v\n", err)
		os.Exit(1)
	}

	client := archive.New(cfg.Archive)
	runner := batch.New(client, client, st, cfg.Store.ScratchRoot)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	started := time.Now()
	res, err := runner.ProcessTarget(ctx, id, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "process kic %d: %v\n", id, err)
		os.Exit(1)
	}

	fmt.Printf("KIC %d: %s\n", id, res.Status)
	fmt.Printf("  files: %d total, %d processed, %d skipped (%.1f%%)\n",
		res.Meta.TotalFiles, res.Meta.ProcessedFiles, res.Meta.SkippedFiles, res.SkippedPct())

	if res.Status == batch.StatusCompleted {
		s := lightcurve.Summarize(res.Array)
		fmt.Printf("  bins:  %d valid, %d empty (bin size %g d)\n", s.Points, s.Empty, res.Meta.TimeBinSize)
		fmt.Printf("  deviation: mean %.3f%%, std %.3f%%, min %.3f%%, max %.3f%%\n",
			s.Mean, s.Std, s.Min, s.Max)
		fmt.Printf("  saved under %s\n", cfg.Store.Root)
	}
	fmt.Printf("  elapsed: %s\n", time.Since(started).Round(time.Millisecond))

	if res.Status == batch.StatusAllSkipped {
		os.Exit(1)
	}
}
