package prom

import (
	"sync"

	xhttp "github.com/nimasrn/bank-reconciler/pkg/http"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemReconcile = "reconcile"
	SystemIngest    = "ingest"
	SystemBankAPI   = "bankapi"
)

const (
	MetricMatchesTotal       = "matches_total"
	MetricMatchConflicts     = "match_conflicts_total"
	MetricRunErrors          = "run_errors_total"
	MetricRunDuration        = "run_duration_seconds"
	MetricRunsSkipped        = "runs_skipped_total"
	MetricIngestedRows       = "rows_total"
	MetricBankRequestLatency = "request_duration_seconds"
)

var (
	mu            sync.RWMutex
	namespace     = "none"
	defaultLabels prometheus.Labels

	// MetricSystemEnabled stays false until Create; every recorder is a
	// no-op before that, so tests and tools never need a registry.
	MetricSystemEnabled = false
)

// collections are keyed by subsystem+name
var (
	MetricCollectionCounters     = make(map[string]prometheus.Counter)
	MetricCollectionCounterVec   = make(map[string]*prometheus.CounterVec)
	MetricCollectionHistogram    = make(map[string]prometheus.Histogram)
	MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)
)

// Create registers the reconciler metrics on the default registry with env
// and instance as constant labels.
func Create(host string, env string, nameSpace string) error {
	mu.Lock()
	defer mu.Unlock()

	defaultLabels = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace

	regs := []func() error{
		counterVec(SystemReconcile, MetricMatchesTotal, "Committed matches by path.", "path"),
		counterVec(SystemReconcile, MetricMatchConflicts, "Matches lost to a concurrent claim.", "path"),
		counter(SystemReconcile, MetricRunErrors, "Per-transaction errors inside reconciliation runs."),
		counterVec(SystemReconcile, MetricRunsSkipped, "Runs not started, by reason.", "reason"),
		histogram(SystemReconcile, MetricRunDuration, "Wall time of a reconciliation run."),
		counterVec(SystemIngest, MetricIngestedRows, "Ingested bank rows by outcome.", "outcome"),
		histogramVec(SystemBankAPI, MetricBankRequestLatency, "Bank API request latency.", "bank", "status"),
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}
	MetricSystemEnabled = true
	return nil
}

func ListenAndServer(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func opts(subsystem, name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: defaultLabels,
	}
}

func counter(subsystem, name, help string) func() error {
	return func() error {
		c := prometheus.NewCounter(prometheus.CounterOpts(opts(subsystem, name, help)))
		if err := prometheus.Register(c); err != nil {
			return err
		}
		MetricCollectionCounters[subsystem+name] = c
		return nil
	}
}

func counterVec(subsystem, name, help string, labels ...string) func() error {
	return func() error {
		c := prometheus.NewCounterVec(prometheus.CounterOpts(opts(subsystem, name, help)), labels)
		if err := prometheus.Register(c); err != nil {
			return err
		}
		MetricCollectionCounterVec[subsystem+name] = c
		return nil
	}
}

func histogram(subsystem, name, help string) func() error {
	return func() error {
		o := opts(subsystem, name, help)
		h := prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: o.Namespace, Subsystem: o.Subsystem, Name: o.Name, Help: o.Help,
			ConstLabels: o.ConstLabels, Buckets: prometheus.DefBuckets,
		})
		if err := prometheus.Register(h); err != nil {
			return err
		}
		MetricCollectionHistogram[subsystem+name] = h
		return nil
	}
}

func histogramVec(subsystem, name, help string, labels ...string) func() error {
	return func() error {
		o := opts(subsystem, name, help)
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.Namespace, Subsystem: o.Subsystem, Name: o.Name, Help: o.Help,
			ConstLabels: o.ConstLabels, Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, labels)
		if err := prometheus.Register(h); err != nil {
			return err
		}
		MetricCollectionHistogramVec[subsystem+name] = h
		return nil
	}
}

func addCounter(subsystem, name string, n float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !MetricSystemEnabled {
		return
	}
	if len(labelValues) == 0 {
		if c, ok := MetricCollectionCounters[subsystem+name]; ok {
			c.Add(n)
			return
		}
	} else if c, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		c.WithLabelValues(labelValues...).Add(n)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func observe(subsystem, name string, v float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !MetricSystemEnabled {
		return
	}
	if len(labelValues) == 0 {
		if h, ok := MetricCollectionHistogram[subsystem+name]; ok {
			h.Observe(v)
			return
		}
	} else if h, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		h.WithLabelValues(labelValues...).Observe(v)
		return
	}
	logger.Warn("[metrics-server] histogram not found", "subsystem", subsystem, "name", name)
}

// IncMatch counts a committed match; path is worker, lookup or manual.
func IncMatch(path string) {
	addCounter(SystemReconcile, MetricMatchesTotal, 1, path)
}

func IncMatchConflict(path string) {
	addCounter(SystemReconcile, MetricMatchConflicts, 1, path)
}

func AddRunErrors(n int) {
	if n > 0 {
		addCounter(SystemReconcile, MetricRunErrors, float64(n))
	}
}

func IncRunSkipped(reason string) {
	addCounter(SystemReconcile, MetricRunsSkipped, 1, reason)
}

func ObserveRunDuration(seconds float64) {
	observe(SystemReconcile, MetricRunDuration, seconds)
}

func AddIngestedRows(outcome string, n int) {
	if n > 0 {
		addCounter(SystemIngest, MetricIngestedRows, float64(n), outcome)
	}
}

func ObserveBankRequest(bank, status string, seconds float64) {
	observe(SystemBankAPI, MetricBankRequestLatency, seconds, bank, status)
}
