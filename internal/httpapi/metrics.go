package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/subgeo/subgeo/internal/model"
)

// metricsStore is intentionally tiny: a few counters are enough for basic
// observability without dragging in external dependencies or complex labeling.
type metricsStore struct {
	mu sync.Mutex

	httpRequestsTotal uint64
	httpByPattern     map[reqKey]uint64
	appErrors         map[errKey]uint64

	batchesTotal  uint64
	nodesProbed   uint64
	outcomesTotal map[string]uint64 // by collapsed classification class
}

type reqKey struct {
	Pattern string
	Status  int
}

type errKey struct {
	Stage string
	Code  string
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		httpByPattern: make(map[reqKey]uint64),
		appErrors:     make(map[errKey]uint64),
		outcomesTotal: make(map[string]uint64),
	}
}

var metrics = newMetricsStore()

func metricsIncRequest(pattern string, status int) {
	if status == 0 {
		status = http.StatusOK
	}
	if pattern == "" {
		pattern = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.httpRequestsTotal++
	metrics.httpByPattern[reqKey{Pattern: pattern, Status: status}]++
	metrics.mu.Unlock()
}

func metricsIncAppError(stage, code string) {
	stage = strings.TrimSpace(stage)
	code = strings.TrimSpace(code)
	if stage == "" {
		stage = "(unknown)"
	}
	if code == "" {
		code = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.appErrors[errKey{Stage: stage, Code: code}]++
	metrics.mu.Unlock()
}

// metricsRecordBatch folds one finished probe batch into the counters.
// Country outcomes collapse into a single "country" class so cardinality
// stays bounded no matter how many exits a subscription spans.
func metricsRecordBatch(outcomes []model.Outcome) {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	metrics.batchesTotal++
	for _, o := range outcomes {
		metrics.nodesProbed++
		class := o.Class.Label()
		if o.Class.Kind == model.ClassCountry {
			class = "country"
		}
		metrics.outcomesTotal[class]++
	}
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	// Plain text (Prometheus-ish). Keep it dependency-free.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	metrics.mu.Lock()
	total := metrics.httpRequestsTotal
	reqs := make([]reqKey, 0, len(metrics.httpByPattern))
	for k := range metrics.httpByPattern {
		reqs = append(reqs, k)
	}
	errs := make([]errKey, 0, len(metrics.appErrors))
	for k := range metrics.appErrors {
		errs = append(errs, k)
	}
	classes := make([]string, 0, len(metrics.outcomesTotal))
	for c := range metrics.outcomesTotal {
		classes = append(classes, c)
	}
	byPattern := make(map[reqKey]uint64, len(metrics.httpByPattern))
	for k, n := range metrics.httpByPattern {
		byPattern[k] = n
	}
	byErr := make(map[errKey]uint64, len(metrics.appErrors))
	for k, n := range metrics.appErrors {
		byErr[k] = n
	}
	byClass := make(map[string]uint64, len(metrics.outcomesTotal))
	for c, n := range metrics.outcomesTotal {
		byClass[c] = n
	}
	batches := metrics.batchesTotal
	probed := metrics.nodesProbed
	metrics.mu.Unlock()

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Pattern != reqs[j].Pattern {
			return reqs[i].Pattern < reqs[j].Pattern
		}
		return reqs[i].Status < reqs[j].Status
	})
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Stage != errs[j].Stage {
			return errs[i].Stage < errs[j].Stage
		}
		return errs[i].Code < errs[j].Code
	})
	sort.Strings(classes)

	var b strings.Builder
	counter := func(name, help string) {
		b.WriteString("# HELP " + name + " " + help + "\n")
		b.WriteString("# TYPE " + name + " counter\n")
	}

	counter("subgeo_http_requests_total", "Total HTTP requests.")
	b.WriteString("subgeo_http_requests_total " + strconv.FormatUint(total, 10) + "\n")

	counter("subgeo_http_requests_by_pattern_total", "HTTP requests by ServeMux pattern and status.")
	for _, k := range reqs {
		b.WriteString("subgeo_http_requests_by_pattern_total{pattern=\"" + promLabelEscape(k.Pattern) +
			"\",status=\"" + strconv.Itoa(k.Status) + "\"} " + strconv.FormatUint(byPattern[k], 10) + "\n")
	}

	counter("subgeo_app_errors_total", "Application errors returned to clients.")
	for _, k := range errs {
		b.WriteString("subgeo_app_errors_total{stage=\"" + promLabelEscape(k.Stage) +
			"\",code=\"" + promLabelEscape(k.Code) + "\"} " + strconv.FormatUint(byErr[k], 10) + "\n")
	}

	counter("subgeo_batches_total", "Finished probe batches.")
	b.WriteString("subgeo_batches_total " + strconv.FormatUint(batches, 10) + "\n")

	counter("subgeo_nodes_probed_total", "Nodes taken through the probe lifecycle.")
	b.WriteString("subgeo_nodes_probed_total " + strconv.FormatUint(probed, 10) + "\n")

	counter("subgeo_probe_outcomes_total", "Probe outcomes by classification class.")
	for _, c := range classes {
		b.WriteString("subgeo_probe_outcomes_total{class=\"" + promLabelEscape(c) +
			"\"} " + strconv.FormatUint(byClass[c], 10) + "\n")
	}

	_, _ = w.Write([]byte(b.String()))
}

func promLabelEscape(s string) string {
	// Prometheus label value escaping: backslash and double quote.
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
