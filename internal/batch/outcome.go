package batch

import (
	"time"

	"github.com/dipscan/dipscan/internal/store"
)

// Status classifies a finished batch run.
type Status string

const (
	// StatusCompleted — at least one file was processed and a ResultSet was
	// written.
	StatusCompleted Status = "completed"

	// StatusEmpty — the catalogue search found no files for the target.
	StatusEmpty Status = "empty"

	// StatusAllSkipped — files were found but every one failed to download
	// or convert; no ResultSet was written.
	StatusAllSkipped Status = "all_skipped"
)

// Result is what ProcessTarget returns for one run.
type Result struct {
	Status  Status         `json:"status"`
	Meta    store.Metadata `json:"metadata"`
	Array   []float64      `json:"-"` // populated only when Status == StatusCompleted
	Elapsed time.Duration  `json:"-"`
}

// SkippedPct returns the share of discovered files that were skipped, 0–100.
func (r *Result) SkippedPct() float64 {
	if r.Meta.TotalFiles == 0 {
		return 0
	}
	return float64(r.Meta.SkippedFiles) / float64(r.Meta.TotalFiles) * 100
}

// outcomeKind classifies one timed download attempt.
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeTimedOut
	outcomeFailed
)

// outcome is the typed result of downloadWithTimeout. Per-file failures are
// carried as values and absorbed into skip counters — they never propagate
// as errors past the orchestrator.
type outcome struct {
	kind outcomeKind
	path string // local file path when kind == outcomeOK
	err  error  // capability error when kind == outcomeFailed
}

// Event stage names, in the order a run emits them.
const (
	StageDiscover = "discover"
	StageDownload = "download"
	StageConvert  = "convert"
	StageSkip     = "skip"
	StageDone     = "done"
)

// Skip reasons carried on StageSkip events.
const (
	ReasonTimeout  = "timeout"
	ReasonDownload = "download_failed"
	ReasonConvert  = "convert_failed"
)

// Event is one progress notification emitted during a batch run.
// Consumers (websocket hub, metrics) receive events synchronously; handlers
// must not block.
type Event struct {
	TargetID   int    `json:"target_id"`
	Stage      string `json:"stage"`
	FileIndex  int    `json:"file_index,omitempty"` // 1-based, 0 for run-level events
	TotalFiles int    `json:"total_files"`
	Reason     string `json:"reason,omitempty"` // set on StageSkip
	Message    string `json:"message,omitempty"`
}
