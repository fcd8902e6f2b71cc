package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Metastore metrics
	BlocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "s3cas_blocks_total",
			Help: "Total number of distinct blocks in the shared block tree",
		},
	)

	BucketsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "s3cas_buckets_total",
			Help: "Total number of buckets by tenant",
		},
		[]string{"tenant"},
	)

	ObjectsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "s3cas_objects_total",
			Help: "Total number of objects by tenant and bucket",
		},
		[]string{"tenant", "bucket"},
	)

	TenantsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "s3cas_tenants_active",
			Help: "Number of tenant metastores currently open in the router cache",
		},
	)

	// Ingest metrics (§4.3)
	IngestChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3cas_ingest_chunks_total",
			Help: "Total number of chunks processed by the ingest pipeline, by outcome",
		},
		[]string{"outcome"}, // "ok" per stored chunk, "error" per failed ingest; new and deduplicated chunks are not told apart
	)

	IngestBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3cas_ingest_bytes_total",
			Help: "Total bytes read by the ingest pipeline",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "s3cas_ingest_duration_seconds",
			Help:    "Time taken to ingest one stream, end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Object operation metrics (§4.7)
	ObjectOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "s3cas_object_op_duration_seconds",
			Help:    "Object-level operation duration in seconds, by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"}, // put, get, delete, copy, list, head
	)

	ObjectOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3cas_object_ops_total",
			Help: "Total object-level operations by operation and outcome",
		},
		[]string{"op", "outcome"}, // outcome: ok, error
	)

	// Refcount GC metrics (§4.5)
	BlocksReleasedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3cas_blocks_released_total",
			Help: "Total number of blocks whose refcount reached zero and were removed from the block tree",
		},
	)

	BlockUnlinkFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3cas_block_unlink_failures_total",
			Help: "Total number of best-effort on-disk block unlinks that failed during delete",
		},
	)

	// Range read metrics (§4.4)
	RangeReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "s3cas_range_read_duration_seconds",
			Help:    "Time taken to stream a range read to completion",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Multipart metrics
	MultipartUploadsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "s3cas_multipart_uploads_active",
			Help: "Number of multipart uploads currently in progress",
		},
	)

	MultipartPartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3cas_multipart_parts_total",
			Help: "Total number of multipart upload parts received",
		},
	)

	// Request-layer metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3cas_requests_total",
			Help: "Total number of S3 API requests by method and status",
		},
		[]string{"method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "s3cas_request_duration_seconds",
			Help:    "S3 API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(BlocksTotal)
	prometheus.MustRegister(BucketsTotal)
	prometheus.MustRegister(ObjectsTotal)
	prometheus.MustRegister(TenantsActive)

	prometheus.MustRegister(IngestChunksTotal)
	prometheus.MustRegister(IngestBytesTotal)
	prometheus.MustRegister(IngestDuration)

	prometheus.MustRegister(ObjectOpDuration)
	prometheus.MustRegister(ObjectOpsTotal)

	prometheus.MustRegister(BlocksReleasedTotal)
	prometheus.MustRegister(BlockUnlinkFailuresTotal)

	prometheus.MustRegister(RangeReadDuration)

	prometheus.MustRegister(MultipartUploadsActive)
	prometheus.MustRegister(MultipartPartsTotal)

	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
