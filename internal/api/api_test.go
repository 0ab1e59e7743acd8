package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dipscan/dipscan/internal/api"
	"github.com/dipscan/dipscan/internal/batch"
	"github.com/dipscan/dipscan/internal/store"
)

// --- test helpers -----------------------------------------------------------

// fakeRunner returns a canned result (or error) and records the options it
// was called with.
type fakeRunner struct {
	mu      sync.Mutex
	lastID  int
	lastOpt batch.Options
	calls   int

	res     *batch.Result
	err     error
	block   chan struct{} // when set, ProcessTarget waits here first
	started chan struct{} // when set, closed-ish signal per call
}

func (f *fakeRunner) ProcessTarget(ctx context.Context, id int, opts batch.Options) (*batch.Result, error) {
	f.mu.Lock()
	f.lastID = id
	f.lastOpt = opts
	f.calls++
	started := f.started
	block := f.block
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func completedResult(id, processed, skipped int) *batch.Result {
	return &batch.Result{
		Status: batch.StatusCompleted,
		Meta: store.Metadata{
			KICNumber:      id,
			TotalFiles:     processed + skipped,
			ProcessedFiles: processed,
			SkippedFiles:   skipped,
			TimeBinSize:    0.5,
		},
		Array:   []float64{0.5, -1.2},
		Elapsed: 3 * time.Second,
	}
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return st
}

func newHandler(t *testing.T, st *store.Store, r api.Runner) *api.Handler {
	t.Helper()
	return api.New(st, r, batch.Options{Timeout: 120 * time.Second, BinSize: 0.5}, nil)
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	return do(t, h, http.MethodGet, path)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func meta(id, processed, skipped int) store.Metadata {
	return store.Metadata{
		KICNumber:      id,
		TotalFiles:     processed + skipped,
		ProcessedFiles: processed,
		SkippedFiles:   skipped,
		TimeBinSize:    0.5,
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	st := newStore(t)
	if err := st.Save(11, []float64{1}, meta(11, 1, 0)); err != nil {
		t.Fatal(err)
	}
	h := newHandler(t, st, &fakeRunner{})

	rr := get(t, h, "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" {
		t.Errorf("status field: got %q, want ok", resp.Status)
	}
	if resp.StoredTargets != 1 {
		t.Errorf("stored_targets: got %d, want 1", resp.StoredTargets)
	}
}

// --- /api/v1/targets --------------------------------------------------------

func TestListTargets(t *testing.T) {
	st := newStore(t)
	for _, id := range []int{20, 7} {
		if err := st.Save(id, []float64{0}, meta(id, 1, 0)); err != nil {
			t.Fatal(err)
		}
	}
	h := newHandler(t, st, &fakeRunner{})

	rr := get(t, h, "/api/v1/targets")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []api.TargetResponse
	decode(t, rr, &resp)
	if len(resp) != 2 {
		t.Fatalf("targets: got %d, want 2", len(resp))
	}
	// Store lists ids sorted ascending.
	if resp[0].KICNumber != 7 || resp[1].KICNumber != 20 {
		t.Errorf("order: got [%d %d], want [7 20]", resp[0].KICNumber, resp[1].KICNumber)
	}
	if resp[0].Summary != nil {
		t.Error("list entries should not carry summaries")
	}
}

func TestListTargets_Empty(t *testing.T) {
	h := newHandler(t, newStore(t), &fakeRunner{})
	rr := get(t, h, "/api/v1/targets")
	var resp []api.TargetResponse
	decode(t, rr, &resp)
	if len(resp) != 0 {
		t.Errorf("targets: got %d, want 0", len(resp))
	}
}

// --- /api/v1/targets/{id} ---------------------------------------------------

func TestGetTarget(t *testing.T) {
	st := newStore(t)
	if err := st.Save(42, []float64{1, -3, math.NaN()}, meta(42, 2, 1)); err != nil {
		t.Fatal(err)
	}
	h := newHandler(t, st, &fakeRunner{})

	rr := get(t, h, "/api/v1/targets/42")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.TargetResponse
	decode(t, rr, &resp)
	if resp.KICNumber != 42 || resp.ProcessedFiles != 2 || resp.SkippedFiles != 1 {
		t.Errorf("metadata mismatch: %+v", resp)
	}
	if resp.Summary == nil {
		t.Fatal("summary: missing")
	}
	if resp.Summary.Points != 2 || resp.Summary.Empty != 1 {
		t.Errorf("summary: got points=%d empty=%d, want 2/1", resp.Summary.Points, resp.Summary.Empty)
	}
	if resp.Summary.Min != -3 {
		t.Errorf("summary min: got %v, want -3", resp.Summary.Min)
	}
}

func TestGetTarget_NotFound(t *testing.T) {
	h := newHandler(t, newStore(t), &fakeRunner{})
	if rr := get(t, h, "/api/v1/targets/9"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestGetTarget_BadID(t *testing.T) {
	h := newHandler(t, newStore(t), &fakeRunner{})
	for _, path := range []string{"/api/v1/targets/abc", "/api/v1/targets/-4", "/api/v1/targets/0"} {
		if rr := get(t, h, path); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", path, rr.Code)
		}
	}
}

// --- /api/v1/targets/{id}/deviation ------------------------------------------

func TestDeviation_NaNBecomesNull(t *testing.T) {
	st := newStore(t)
	if err := st.Save(8, []float64{0.25, math.NaN(), -1.5}, meta(8, 1, 0)); err != nil {
		t.Fatal(err)
	}
	h := newHandler(t, st, &fakeRunner{})

	rr := get(t, h, "/api/v1/targets/8/deviation")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.DeviationResponse
	decode(t, rr, &resp)
	if len(resp.Values) != 3 {
		t.Fatalf("values: got %d, want 3", len(resp.Values))
	}
	if resp.Values[0] == nil || *resp.Values[0] != 0.25 {
		t.Errorf("values[0]: got %v, want 0.25", resp.Values[0])
	}
	if resp.Values[1] != nil {
		t.Errorf("values[1]: got %v, want null", *resp.Values[1])
	}
	if resp.Values[2] == nil || *resp.Values[2] != -1.5 {
		t.Errorf("values[2]: got %v, want -1.5", resp.Values[2])
	}
}

func TestDeviation_NotFound(t *testing.T) {
	h := newHandler(t, newStore(t), &fakeRunner{})
	if rr := get(t, h, "/api/v1/targets/3/deviation"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- DELETE /api/v1/targets/{id} ---------------------------------------------

func TestDeleteTarget(t *testing.T) {
	st := newStore(t)
	if err := st.Save(5, []float64{1}, meta(5, 1, 0)); err != nil {
		t.Fatal(err)
	}
	h := newHandler(t, st, &fakeRunner{})

	if rr := do(t, h, http.MethodDelete, "/api/v1/targets/5"); rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", rr.Code)
	}
	if st.Exists(5) {
		t.Error("target still exists after delete")
	}
	if rr := do(t, h, http.MethodDelete, "/api/v1/targets/5"); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", rr.Code)
	}
}

// --- POST /api/v1/targets/{id}/process ---------------------------------------

func TestProcess_Success(t *testing.T) {
	runner := &fakeRunner{res: completedResult(99, 3, 1)}
	var observed *batch.Result
	h := api.New(newStore(t), runner,
		batch.Options{Timeout: time.Minute, BinSize: 0.5},
		func(res *batch.Result) { observed = res })

	rr := do(t, h, http.MethodPost, "/api/v1/targets/99/process")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp api.ProcessResponse
	decode(t, rr, &resp)
	if resp.Status != "completed" {
		t.Errorf("status: got %q, want completed", resp.Status)
	}
	if resp.ProcessedFiles != 3 || resp.SkippedFiles != 1 {
		t.Errorf("counts: got %d/%d, want 3/1", resp.ProcessedFiles, resp.SkippedFiles)
	}
	if resp.SkippedPct != 25 {
		t.Errorf("skipped_pct: got %v, want 25", resp.SkippedPct)
	}
	if resp.Points != 2 {
		t.Errorf("points: got %d, want 2", resp.Points)
	}
	if runner.lastID != 99 {
		t.Errorf("runner id: got %d, want 99", runner.lastID)
	}
	if observed == nil || observed.Status != batch.StatusCompleted {
		t.Error("onResult was not invoked with the finished result")
	}
}

func TestProcess_QueryOverrides(t *testing.T) {
	runner := &fakeRunner{res: completedResult(1, 1, 0)}
	h := newHandler(t, newStore(t), runner)

	rr := do(t, h, http.MethodPost, "/api/v1/targets/1/process?timeout=30s&max_files=5&bin_size=1.0")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if runner.lastOpt.Timeout != 30*time.Second {
		t.Errorf("timeout: got %v, want 30s", runner.lastOpt.Timeout)
	}
	if runner.lastOpt.MaxFiles != 5 {
		t.Errorf("max_files: got %d, want 5", runner.lastOpt.MaxFiles)
	}
	if runner.lastOpt.BinSize != 1.0 {
		t.Errorf("bin_size: got %v, want 1.0", runner.lastOpt.BinSize)
	}
}

func TestProcess_TimeoutAsBareSeconds(t *testing.T) {
	runner := &fakeRunner{res: completedResult(1, 1, 0)}
	h := newHandler(t, newStore(t), runner)

	do(t, h, http.MethodPost, "/api/v1/targets/1/process?timeout=45")
	if runner.lastOpt.Timeout != 45*time.Second {
		t.Errorf("timeout: got %v, want 45s", runner.lastOpt.Timeout)
	}
}

func TestProcess_DefaultsApplyWithoutOverrides(t *testing.T) {
	runner := &fakeRunner{res: completedResult(1, 1, 0)}
	h := api.New(newStore(t), runner,
		batch.Options{Timeout: 90 * time.Second, MaxFiles: 10, BinSize: 0.25}, nil)

	do(t, h, http.MethodPost, "/api/v1/targets/1/process")
	if runner.lastOpt.Timeout != 90*time.Second || runner.lastOpt.MaxFiles != 10 || runner.lastOpt.BinSize != 0.25 {
		t.Errorf("defaults not applied: %+v", runner.lastOpt)
	}
}

func TestProcess_SetDefaultsSwapsOptions(t *testing.T) {
	runner := &fakeRunner{res: completedResult(1, 1, 0)}
	h := newHandler(t, newStore(t), runner)

	h.SetDefaults(batch.Options{Timeout: 10 * time.Second, BinSize: 2.0})
	do(t, h, http.MethodPost, "/api/v1/targets/1/process")
	if runner.lastOpt.Timeout != 10*time.Second || runner.lastOpt.BinSize != 2.0 {
		t.Errorf("new defaults not applied: %+v", runner.lastOpt)
	}
}

func TestProcess_BadOverrides(t *testing.T) {
	h := newHandler(t, newStore(t), &fakeRunner{res: completedResult(1, 1, 0)})
	for _, path := range []string{
		"/api/v1/targets/1/process?timeout=-5s",
		"/api/v1/targets/1/process?timeout=soon",
		"/api/v1/targets/1/process?max_files=-1",
		"/api/v1/targets/1/process?bin_size=0",
	} {
		if rr := do(t, h, http.MethodPost, path); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", path, rr.Code)
		}
	}
}

func TestProcess_RunnerError(t *testing.T) {
	h := newHandler(t, newStore(t), &fakeRunner{err: errors.New("archive unreachable")})
	rr := do(t, h, http.MethodPost, "/api/v1/targets/1/process")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] == "" {
		t.Error("error body: missing")
	}
}

func TestProcess_ConcurrentSameTargetRejected(t *testing.T) {
	runner := &fakeRunner{
		res:     completedResult(1, 1, 0),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	h := newHandler(t, newStore(t), runner)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- do(t, h, http.MethodPost, "/api/v1/targets/1/process")
	}()

	<-runner.started // first run is now in flight

	if rr := do(t, h, http.MethodPost, "/api/v1/targets/1/process"); rr.Code != http.StatusConflict {
		t.Errorf("second run: got %d, want 409", rr.Code)
	}

	close(runner.block)
	if rr := <-done; rr.Code != http.StatusOK {
		t.Errorf("first run: got %d, want 200", rr.Code)
	}
	if runner.calls != 1 {
		t.Errorf("runner calls: got %d, want 1", runner.calls)
	}
}

func TestProcess_DifferentTargetsRunIndependently(t *testing.T) {
	runner := &fakeRunner{
		res:     completedResult(1, 1, 0),
		block:   make(chan struct{}),
		started: make(chan struct{}, 2),
	}
	h := newHandler(t, newStore(t), runner)

	done := make(chan int, 2)
	for _, id := range []string{"1", "2"} {
		id := id
		go func() {
			done <- do(t, h, http.MethodPost, "/api/v1/targets/"+id+"/process").Code
		}()
	}

	// Both runs must reach the runner despite neither having finished.
	<-runner.started
	<-runner.started

	close(runner.block)
	if a, b := <-done, <-done; a != http.StatusOK || b != http.StatusOK {
		t.Errorf("statuses: got %d, %d, want 200, 200", a, b)
	}
}

// --- /api/v1/compare ---------------------------------------------------------

func TestCompare(t *testing.T) {
	st := newStore(t)
	if err := st.Save(1, []float64{1, 2}, meta(1, 1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(2, []float64{-4, math.NaN()}, meta(2, 1, 0)); err != nil {
		t.Fatal(err)
	}
	h := newHandler(t, st, &fakeRunner{})

	rr := get(t, h, "/api/v1/compare?ids=1,2,3")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.CompareResponse
	decode(t, rr, &resp)
	if len(resp.Targets) != 2 {
		t.Fatalf("targets: got %d, want 2", len(resp.Targets))
	}
	if resp.Targets[0].Summary.Mean != 1.5 {
		t.Errorf("target 1 mean: got %v, want 1.5", resp.Targets[0].Summary.Mean)
	}
	if resp.Targets[1].Summary.Points != 1 || resp.Targets[1].Summary.Empty != 1 {
		t.Errorf("target 2 summary: %+v", resp.Targets[1].Summary)
	}
	if len(resp.Missing) != 1 || resp.Missing[0] != 3 {
		t.Errorf("missing: got %v, want [3]", resp.Missing)
	}
}

func TestCompare_BadRequests(t *testing.T) {
	h := newHandler(t, newStore(t), &fakeRunner{})
	for _, path := range []string{"/api/v1/compare", "/api/v1/compare?ids=1,x", "/api/v1/compare?ids=0"} {
		if rr := get(t, h, path); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", path, rr.Code)
		}
	}
}

// --- method handling ---------------------------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	st := newStore(t)
	if err := st.Save(1, []float64{1}, meta(1, 1, 0)); err != nil {
		t.Fatal(err)
	}
	h := newHandler(t, st, &fakeRunner{})

	cases := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/health"},
		{http.MethodDelete, "/api/v1/targets"},
		{http.MethodGet, "/api/v1/targets/1/process"},
		{http.MethodPost, "/api/v1/targets/1/deviation"},
		{http.MethodPost, "/api/v1/compare"},
	}
	for _, tc := range cases {
		if rr := do(t, h, tc.method, tc.path); rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: got %d, want 405", tc.method, tc.path, rr.Code)
		}
	}
}

func TestUnknownSubresource(t *testing.T) {
	h := newHandler(t, newStore(t), &fakeRunner{})
	if rr := get(t, h, "/api/v1/targets/1/flux"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}
