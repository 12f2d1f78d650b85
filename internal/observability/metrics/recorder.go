package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	xerrors "counter-chain/internal/errors"
)

const namespace = "counter"

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Recorder owns a private registry so a run never leaks collectors into the
// global one.
type Recorder struct {
	registry *prometheus.Registry

	rpcRequests *prometheus.CounterVec
	rpcErrors   *prometheus.CounterVec
	rpcLatency  *prometheus.HistogramVec
	stageTime   *prometheus.HistogramVec
	stageErrors *prometheus.CounterVec
	runs        *prometheus.CounterVec
	lastValue   prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Number of JSON-RPC calls issued to the cluster.",
		}, []string{"method"}),
		rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_errors_total",
			Help:      "Number of JSON-RPC calls that returned an error.",
		}, []string{"method", "code"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "JSON-RPC call latency in seconds.",
			Buckets:   latencyBuckets,
		}, []string{"method"}),
		stageTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each workflow stage.",
			Buckets:   latencyBuckets,
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Number of workflow stages that ended in an error.",
		}, []string{"stage", "code"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome.",
		}, []string{"status", "code"}),
		lastValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_value",
			Help:      "Counter value read by the last successful run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
	r.registry.MustRegister(
		r.rpcRequests, r.rpcErrors, r.rpcLatency,
		r.stageTime, r.stageErrors,
		r.runs, r.lastValue, r.lastSuccess,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveRPC records one JSON-RPC call.
func (r *Recorder) ObserveRPC(method string, elapsed time.Duration, err error) {
	r.rpcRequests.WithLabelValues(method).Inc()
	r.rpcLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	if err != nil {
		r.rpcErrors.WithLabelValues(method, string(xerrors.CodeOf(err))).Inc()
	}
}

// ObserveStage records one workflow stage.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration, err error) {
	r.stageTime.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		r.stageErrors.WithLabelValues(stage, string(xerrors.CodeOf(err))).Inc()
	}
}

// ObserveRun records the outcome of a finished run. err is nil on success.
func (r *Recorder) ObserveRun(value uint64, finishedAt time.Time, err error) {
	if err != nil {
		r.runs.WithLabelValues("failed", string(xerrors.CodeOf(err))).Inc()
		return
	}
	r.runs.WithLabelValues("succeeded", "").Inc()
	r.lastValue.Set(float64(value))
	r.lastSuccess.Set(float64(finishedAt.Unix()))
}

// Push sends the registry to the Pushgateway at url under job, grouped by
// cluster. No collector may carry a cluster label of its own. An empty url is
// a no-op.
func (r *Recorder) Push(ctx context.Context, url, job, cluster string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "counterctl"
	}
	pusher := push.New(url, job).Gatherer(r.registry)
	if cluster != "" {
		pusher = pusher.Grouping("cluster", cluster)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "push metrics", xerrors.WithMetadata("pushgateway", url))
	}
	return nil
}
