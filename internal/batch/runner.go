package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dipscan/dipscan/internal/archive"
	"github.com/dipscan/dipscan/internal/lightcurve"
	"github.com/dipscan/dipscan/internal/store"
)

// DefaultTimeout is the per-file download deadline used when Options.Timeout
// is zero.
const DefaultTimeout = 120 * time.Second

// Searcher is the catalogue discovery capability.
type Searcher interface {
	Search(ctx context.Context, id int) ([]archive.FileHandle, error)
}

// Downloader is the blocking file-fetch capability. It is not required to
// support cancellation; the runner enforces deadlines around it.
type Downloader interface {
	Download(h archive.FileHandle, dir string) (string, error)
}

// ResultStore is the subset of the result store the runner writes to.
type ResultStore interface {
	Save(id int, array []float64, meta store.Metadata) error
}

// convertFunc turns one downloaded raw file into a deviation array.
type convertFunc func(path string, opts lightcurve.Options) ([]float64, error)

// Options control one ProcessTarget run.
type Options struct {
	// Timeout is the per-file download deadline (default DefaultTimeout).
	Timeout time.Duration

	// MaxFiles caps how many discovered files are processed, keeping the
	// first files in discovery order. 0 means no limit.
	MaxFiles int

	// BinSize is the deviation bin width in days
	// (default lightcurve.DefaultBinSize).
	BinSize float64
}

// Runner drives the search → download → convert → accumulate loop for one
// target at a time. Files are handled strictly sequentially; the only
// concurrency is the detached goroutine used to enforce the download
// deadline.
//
// Concurrent ProcessTarget calls for different ids are independent. Two
// simultaneous runs for the same id race on the store and the scratch
// directory — callers must serialize per id.
type Runner struct {
	search      Searcher
	download    Downloader
	store       ResultStore
	scratchRoot string
	convert     convertFunc

	// Events, when set, receives progress notifications synchronously.
	// Handlers must not block. Set before the first ProcessTarget call.
	Events func(Event)
}

// New creates a Runner staging raw downloads under scratchRoot.
func New(search Searcher, download Downloader, st ResultStore, scratchRoot string) *Runner {
	return &Runner{
		search:      search,
		download:    download,
		store:       st,
		scratchRoot: scratchRoot,
		convert:     convertFile,
	}
}

// convertFile is the production converter: parse the CSV then run the
// deviation transform.
func convertFile(path string, opts lightcurve.Options) ([]float64, error) {
	c, err := lightcurve.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return lightcurve.Convert(c, opts)
}

// ProcessTarget runs one batch for the target id.
//
// Per-file download timeouts and conversion failures are absorbed into the
// skip counter and never abort the run; no retry is attempted. An error is
// returned only for batch-level conditions: bad arguments, search failure,
// scratch setup, cancellation between files, or a failed final store write.
//
// When at least one file converts, the accumulated deviation array and
// metadata are persisted as one ResultSet, wholesale-replacing any prior run
// for the same id. The run's scratch directory is removed regardless of
// outcome.
func (r *Runner) ProcessTarget(ctx context.Context, id int, opts Options) (*Result, error) {
	if id <= 0 {
		return nil, fmt.Errorf("batch: target id must be positive, got %d", id)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	binSize := opts.BinSize
	if binSize <= 0 {
		binSize = lightcurve.DefaultBinSize
	}

	started := time.Now()
	slog.Info("batch: processing target", "kic", id, "timeout", timeout, "max_files", opts.MaxFiles)

	handles, err := r.search.Search(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("batch: search kic %d: %w", id, err)
	}

	if len(handles) == 0 {
		slog.Info("batch: no files found", "kic", id)
		res := &Result{
			Status:  StatusEmpty,
			Meta:    store.Metadata{KICNumber: id, TimeBinSize: binSize},
			Elapsed: time.Since(started),
		}
		r.emit(Event{TargetID: id, Stage: StageDone, Message: string(StatusEmpty)})
		return res, nil
	}

	// Limit before counting: TotalFiles reflects the truncated set.
	if opts.MaxFiles > 0 && opts.MaxFiles < len(handles) {
		slog.Info("batch: limiting files", "kic", id, "available", len(handles), "limit", opts.MaxFiles)
		handles = handles[:opts.MaxFiles]
	}
	total := len(handles)
	r.emit(Event{TargetID: id, Stage: StageDiscover, TotalFiles: total})

	scratch := filepath.Join(r.scratchRoot, "kic_"+strconv.Itoa(id))
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("batch: create scratch dir: %w", err)
	}
	// Unconditional sweep: also collects files left by detached downloads.
	defer os.RemoveAll(scratch)

	var (
		deviations []float64
		processed  int
		skipped    int
	)

	for i, h := range handles {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch: kic %d cancelled after %d/%d files: %w", id, i, total, err)
		}

		idx := i + 1
		r.emit(Event{TargetID: id, Stage: StageDownload, FileIndex: idx, TotalFiles: total})

		out := downloadWithTimeout(r.download, h, scratch, timeout)
		switch out.kind {
		case outcomeTimedOut:
			skipped++
			slog.Warn("batch: download timed out, skipping file",
				"kic", id, "file", h.Filename, "timeout", timeout)
			r.emit(Event{TargetID: id, Stage: StageSkip, FileIndex: idx, TotalFiles: total, Reason: ReasonTimeout})
			continue
		case outcomeFailed:
			skipped++
			slog.Warn("batch: download failed, skipping file",
				"kic", id, "file", h.Filename, "err", out.err)
			r.emit(Event{TargetID: id, Stage: StageSkip, FileIndex: idx, TotalFiles: total,
				Reason: ReasonDownload, Message: out.err.Error()})
			continue
		}

		r.emit(Event{TargetID: id, Stage: StageConvert, FileIndex: idx, TotalFiles: total})
		devs, err := r.convert(out.path, lightcurve.Options{BinSize: binSize})

		// Raw files are removed as soon as they are consumed to bound peak
		// disk use, not deferred to the end-of-run sweep.
		os.Remove(out.path)

		if err != nil {
			skipped++
			slog.Warn("batch: conversion failed, skipping file",
				"kic", id, "file", h.Filename, "err", err)
			r.emit(Event{TargetID: id, Stage: StageSkip, FileIndex: idx, TotalFiles: total,
				Reason: ReasonConvert, Message: err.Error()})
			continue
		}

		deviations = append(deviations, devs...)
		processed++
	}

	meta := store.Metadata{
		KICNumber:      id,
		TotalFiles:     total,
		ProcessedFiles: processed,
		SkippedFiles:   skipped,
		TimeBinSize:    binSize,
	}
	res := &Result{Meta: meta, Elapsed: time.Since(started)}

	if processed == 0 {
		slog.Warn("batch: all files skipped, no ResultSet written", "kic", id, "skipped", skipped)
		res.Status = StatusAllSkipped
		r.emit(Event{TargetID: id, Stage: StageDone, TotalFiles: total, Message: string(StatusAllSkipped)})
		return res, nil
	}

	if err := r.store.Save(id, deviations, meta); err != nil {
		return nil, fmt.Errorf("batch: persist kic %d: %w", id, err)
	}

	res.Status = StatusCompleted
	res.Array = deviations
	slog.Info("batch: target done",
		"kic", id,
		"processed", processed,
		"skipped", skipped,
		"points", len(deviations),
		"elapsed", res.Elapsed,
	)
	r.emit(Event{TargetID: id, Stage: StageDone, TotalFiles: total, Message: string(StatusCompleted)})
	return res, nil
}

func (r *Runner) emit(ev Event) {
	if r.Events != nil {
		r.Events(ev)
	}
}
