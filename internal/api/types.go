package api

import "github.com/dipscan/dipscan/internal/lightcurve"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	StoredTargets int    `json:"stored_targets"`
	Time          string `json:"time"` // RFC3339
}

// TargetResponse is one stored target in GET /api/v1/targets or
// GET /api/v1/targets/{id}.
type TargetResponse struct {
	KICNumber      int                 `json:"kic_number"`
	TotalFiles     int                 `json:"total_files"`
	ProcessedFiles int                 `json:"processed_files"`
	SkippedFiles   int                 `json:"skipped_files"`
	TimeBinSize    float64             `json:"time_bin_size"`
	Summary        *lightcurve.Summary `json:"summary,omitempty"`
}

// ProcessResponse is the payload for POST /api/v1/targets/{id}/process.
type ProcessResponse struct {
	KICNumber      int     `json:"kic_number"`
	Status         string  `json:"status"`
	TotalFiles     int     `json:"total_files"`
	ProcessedFiles int     `json:"processed_files"`
	SkippedFiles   int     `json:"skipped_files"`
	SkippedPct     float64 `json:"skipped_pct"`
	Points         int     `json:"points"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// DeviationResponse is the payload for GET /api/v1/targets/{id}/deviation.
// Empty bins are encoded as JSON null.
type DeviationResponse struct {
	KICNumber   int        `json:"kic_number"`
	TimeBinSize float64    `json:"time_bin_size"`
	Values      []*float64 `json:"values"`
}

// CompareEntry is one target's statistics in GET /api/v1/compare.
type CompareEntry struct {
	KICNumber int                `json:"kic_number"`
	Summary   lightcurve.Summary `json:"summary"`
}

// CompareResponse is the payload for GET /api/v1/compare.
type CompareResponse struct {
	Targets []CompareEntry `json:"targets"`
	Missing []int          `json:"missing,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
