package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dipscan/dipscan/internal/batch"
	"github.com/dipscan/dipscan/internal/lightcurve"
	"github.com/dipscan/dipscan/internal/store"
)

// Runner is the batch-processing capability the handler drives.
type Runner interface {
	ProcessTarget(ctx context.Context, id int, opts batch.Options) (*batch.Result, error)
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads ResultSets from the store and triggers batch runs via the runner.
type Handler struct {
	store  *store.Store
	runner Runner
	mux    *http.ServeMux

	// onResult, when set, is invoked synchronously after every finished
	// batch run (metrics, notifications).
	onResult func(*batch.Result)

	mu       sync.Mutex
	defaults batch.Options
	inFlight map[int]bool // targets with a run in progress
}

// New creates a Handler wired to the given store and runner and registers all
// routes. defaults supplies the per-run options used when a request carries no
// overrides; onResult may be nil.
func New(st *store.Store, runner Runner, defaults batch.Options, onResult func(*batch.Result)) *Handler {
	h := &Handler{
		store:    st,
		runner:   runner,
		mux:      http.NewServeMux(),
		onResult: onResult,
		defaults: defaults,
		inFlight: make(map[int]bool),
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/targets", h.listTargets)
	h.mux.HandleFunc("/api/v1/targets/", h.targetSubtree) // extracts {id}[/process|/deviation]
	h.mux.HandleFunc("/api/v1/compare", h.compare)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// SetDefaults replaces the per-run option defaults, e.g. after a config
// hot-reload. In-flight runs keep the options they started with.
func (h *Handler) SetDefaults(d batch.Options) {
	h.mu.Lock()
	h.defaults = d
	h.mu.Unlock()
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — liveness plus the stored-target count.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ids, err := h.store.List()
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		StoredTargets: len(ids),
		Time:          time.Now().UTC().Format(time.RFC3339),
	})
}

// listTargets returns GET /api/v1/targets — metadata for every stored target.
func (h *Handler) listTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ids, err := h.store.List()
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]TargetResponse, 0, len(ids))
	for _, id := range ids {
		rs, err := h.store.Load(id)
		if err != nil {
			// Deleted between List and Load; skip.
			continue
		}
		out = append(out, toTargetResponse(rs, false))
	}
	jsonResp(w, http.StatusOK, out)
}

// targetSubtree dispatches /api/v1/targets/{id}, /{id}/process and
// /{id}/deviation.
func (h *Handler) targetSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/targets/")
	if rest == "" {
		h.listTargets(w, r)
		return
	}

	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		jsonErr(w, http.StatusBadRequest, "target id must be a positive integer")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.getTarget(w, r, id)
		case http.MethodDelete:
			h.deleteTarget(w, id)
		default:
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "process":
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.process(w, r, id)
	case "deviation":
		if r.Method != http.MethodGet {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.deviation(w, id)
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// getTarget returns GET /api/v1/targets/{id} — metadata plus array statistics.
func (h *Handler) getTarget(w http.ResponseWriter, _ *http.Request, id int) {
	rs, err := h.store.Load(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonErr(w, http.StatusNotFound, "target not found")
			return
		}
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, toTargetResponse(rs, true))
}

// deleteTarget handles DELETE /api/v1/targets/{id}.
func (h *Handler) deleteTarget(w http.ResponseWriter, id int) {
	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonErr(w, http.StatusNotFound, "target not found")
			return
		}
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deviation returns GET /api/v1/targets/{id}/deviation — the full array, with
// empty bins as null.
func (h *Handler) deviation(w http.ResponseWriter, id int) {
	rs, err := h.store.Load(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonErr(w, http.StatusNotFound, "target not found")
			return
		}
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	values := make([]*float64, len(rs.Array))
	for i, v := range rs.Array {
		if math.IsNaN(v) {
			continue
		}
		v := v
		values[i] = &v
	}
	jsonResp(w, http.StatusOK, DeviationResponse{
		KICNumber:   id,
		TimeBinSize: rs.Meta.TimeBinSize,
		Values:      values,
	})
}

// process handles POST /api/v1/targets/{id}/process — runs a batch for the
// target. Query parameters timeout, max_files and bin_size override the
// configured defaults for this run only. Concurrent runs for the same target
// are rejected with 409.
func (h *Handler) process(w http.ResponseWriter, r *http.Request, id int) {
	opts, err := h.runOptions(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.acquire(id) {
		jsonErr(w, http.StatusConflict, "a run for this target is already in progress")
		return
	}
	defer h.release(id)

	res, err := h.runner.ProcessTarget(r.Context(), id, opts)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; the response will not be delivered anyway.
			return
		}
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}

	if h.onResult != nil {
		h.onResult(res)
	}

	jsonResp(w, http.StatusOK, ProcessResponse{
		KICNumber:      id,
		Status:         string(res.Status),
		TotalFiles:     res.Meta.TotalFiles,
		ProcessedFiles: res.Meta.ProcessedFiles,
		SkippedFiles:   res.Meta.SkippedFiles,
		SkippedPct:     res.SkippedPct(),
		Points:         len(res.Array),
		ElapsedSeconds: res.Elapsed.Seconds(),
	})
}

// compare returns GET /api/v1/compare?ids=a,b,c — array statistics for several
// stored targets side by side.
func (h *Handler) compare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := r.URL.Query().Get("ids")
	if raw == "" {
		jsonErr(w, http.StatusBadRequest, "ids query parameter is required")
		return
	}

	var resp CompareResponse
	resp.Targets = make([]CompareEntry, 0)
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || id <= 0 {
			jsonErr(w, http.StatusBadRequest, "ids must be positive integers")
			return
		}
		rs, err := h.store.Load(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.Missing = append(resp.Missing, id)
				continue
			}
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Targets = append(resp.Targets, CompareEntry{
			KICNumber: id,
			Summary:   lightcurve.Summarize(rs.Array),
		})
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

// runOptions builds the batch options for one process request: the configured
// defaults, overridden by any timeout/max_files/bin_size query parameters.
func (h *Handler) runOptions(r *http.Request) (batch.Options, error) {
	h.mu.Lock()
	opts := h.defaults
	h.mu.Unlock()

	q := r.URL.Query()
	if v := q.Get("timeout"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return opts, err
		}
		opts.Timeout = d
	}
	if v := q.Get("max_files"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("max_files must be a non-negative integer")
		}
		opts.MaxFiles = n
	}
	if v := q.Get("bin_size"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return opts, errors.New("bin_size must be a positive number")
		}
		opts.BinSize = f
	}
	return opts, nil
}

// parseTimeout accepts a Go duration string ("90s", "2m") or a bare number of
// seconds.
func parseTimeout(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		if d <= 0 {
			return 0, errors.New("timeout must be positive")
		}
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0, errors.New("timeout must be a positive duration or number of seconds")
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (h *Handler) acquire(id int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inFlight[id] {
		return false
	}
	h.inFlight[id] = true
	return true
}

func (h *Handler) release(id int) {
	h.mu.Lock()
	delete(h.inFlight, id)
	h.mu.Unlock()
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// toTargetResponse maps a stored ResultSet to its JSON representation.
// Summary statistics are included only when withSummary is set — lists stay
// cheap, single-target reads carry the full picture.
func toTargetResponse(rs *store.ResultSet, withSummary bool) TargetResponse {
	resp := TargetResponse{
		KICNumber:      rs.Meta.KICNumber,
		TotalFiles:     rs.Meta.TotalFiles,
		ProcessedFiles: rs.Meta.ProcessedFiles,
		SkippedFiles:   rs.Meta.SkippedFiles,
		TimeBinSize:    rs.Meta.TimeBinSize,
	}
	if withSummary {
		s := lightcurve.Summarize(rs.Array)
		resp.Summary = &s
	}
	return resp
}
