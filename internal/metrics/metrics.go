package metrics

import (
	"net/http"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/dipscan/dipscan/internal/batch"
)

// Metric names exposed on /metrics.
const (
	metricBatches   = "dipscan_batches_total"
	metricProcessed = "dipscan_files_processed_total"
	metricSkipped   = "dipscan_files_skipped_total"
	metricTimeouts  = "dipscan_download_timeouts_total"
	metricStored    = "dipscan_stored_targets"
)

// Registry accumulates service counters and serves them in Prometheus text
// exposition format. All methods are safe for concurrent use.
type Registry struct {
	mu sync.Mutex

	batches   map[string]float64 // by batch status
	processed float64
	skipped   float64
	timeouts  float64

	// storedTargets is an optional gauge callback, typically store list size.
	storedTargets func() float64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{batches: make(map[string]float64)}
}

// SetStoredTargetsFunc installs the gauge callback reporting how many targets
// currently have a persisted ResultSet. Call before serving.
func (r *Registry) SetStoredTargetsFunc(fn func() float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storedTargets = fn
}

// ObserveResult records a finished batch run.
func (r *Registry) ObserveResult(res *batch.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[string(res.Status)]++
	r.processed += float64(res.Meta.ProcessedFiles)
	r.skipped += float64(res.Meta.SkippedFiles)
}

// ObserveEvent records file-level progress events; only skip-by-timeout
// events carry a counter of their own.
func (r *Registry) ObserveEvent(ev batch.Event) {
	if ev.Stage != batch.StageSkip || ev.Reason != batch.ReasonTimeout {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts++
}

// ServeHTTP renders all counters as a Prometheus text exposition.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	families := r.gather()

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			// Client went away mid-write; nothing useful to do.
			return
		}
	}
}

// gather snapshots the counters into MetricFamily records.
func (r *Registry) gather() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	batchMetrics := make([]*dto.Metric, 0, len(r.batches))
	for _, status := range []string{
		string(batch.StatusCompleted),
		string(batch.StatusEmpty),
		string(batch.StatusAllSkipped),
	} {
		batchMetrics = append(batchMetrics, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: str("status"), Value: str(status)}},
			Counter: &dto.Counter{Value: f64(r.batches[status])},
		})
	}

	families := []*dto.MetricFamily{
		{
			Name:   str(metricBatches),
			Help:   str("Batch runs finished, by status."),
			Type:   dto.MetricType_COUNTER.Enum(),
			Metric: batchMetrics,
		},
		counterFamily(metricProcessed, "Light-curve files converted and accumulated.", r.processed),
		counterFamily(metricSkipped, "Light-curve files skipped by download or conversion failures.", r.skipped),
		counterFamily(metricTimeouts, "Downloads abandoned at the per-file deadline.", r.timeouts),
	}

	if r.storedTargets != nil {
		families = append(families, &dto.MetricFamily{
			Name:   str(metricStored),
			Help:   str("Targets with a persisted ResultSet."),
			Type:   dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: f64(r.storedTargets())}}},
		})
	}
	return families
}

func counterFamily(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   str(name),
		Help:   str(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: f64(v)}}},
	}
}

func str(s string) *string  { return &s }
func f64(v float64) *float64 { return &v }
