package metrics

import "time"

// Sink is the narrow interface core packages call into to record metrics.
// The concrete exporter (Prometheus, or none) is an external collaborator
// wired in by cmd/s3cas; nothing under pkg/ should import promhttp directly.
type Sink interface {
	IngestChunk(outcome string)
	IngestBytes(n int)
	ObserveIngestDuration(d time.Duration)

	ObjectOp(op, outcome string, d time.Duration)

	BlocksReleased(n int)
	BlockUnlinkFailure()

	ObserveRangeRead(d time.Duration)

	MultipartUploadStarted()
	MultipartUploadFinished()
	MultipartPart()

	Request(method, status string, d time.Duration)

	SetBlocksTotal(n int)
	SetBucketsTotal(tenant string, n int)
	SetObjectsTotal(tenant, bucket string, n int)
	SetTenantsActive(n int)
}

// PromSink is the Prometheus-backed Sink, recording into the package-level
// collectors registered at init, the same collectors Handler() exposes.
// cmd/s3cas serve exposes Handler() but does not construct a PromSink.
type PromSink struct{}

// NewPromSink returns a Sink backed by the package's registered collectors.
func NewPromSink() *PromSink { return &PromSink{} }

func (PromSink) IngestChunk(outcome string) {
	IngestChunksTotal.WithLabelValues(outcome).Inc()
}

func (PromSink) IngestBytes(n int) {
	IngestBytesTotal.Add(float64(n))
}

func (PromSink) ObserveIngestDuration(d time.Duration) {
	IngestDuration.Observe(d.Seconds())
}

func (PromSink) ObjectOp(op, outcome string, d time.Duration) {
	ObjectOpsTotal.WithLabelValues(op, outcome).Inc()
	ObjectOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (PromSink) BlocksReleased(n int) {
	BlocksReleasedTotal.Add(float64(n))
}

func (PromSink) BlockUnlinkFailure() {
	BlockUnlinkFailuresTotal.Inc()
}

func (PromSink) ObserveRangeRead(d time.Duration) {
	RangeReadDuration.Observe(d.Seconds())
}

func (PromSink) MultipartUploadStarted() {
	MultipartUploadsActive.Inc()
}

func (PromSink) MultipartUploadFinished() {
	MultipartUploadsActive.Dec()
}

func (PromSink) MultipartPart() {
	MultipartPartsTotal.Inc()
}

func (PromSink) Request(method, status string, d time.Duration) {
	RequestsTotal.WithLabelValues(method, status).Inc()
	RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (PromSink) SetBlocksTotal(n int) {
	BlocksTotal.Set(float64(n))
}

func (PromSink) SetBucketsTotal(tenant string, n int) {
	BucketsTotal.WithLabelValues(tenant).Set(float64(n))
}

func (PromSink) SetObjectsTotal(tenant, bucket string, n int) {
	ObjectsTotal.WithLabelValues(tenant, bucket).Set(float64(n))
}

func (PromSink) SetTenantsActive(n int) {
	TenantsActive.Set(float64(n))
}

// NoopSink discards every observation. Useful for tests and for callers that
// don't want a metrics dependency at all.
type NoopSink struct{}

func (NoopSink) IngestChunk(string)                     {}
func (NoopSink) IngestBytes(int)                        {}
func (NoopSink) ObserveIngestDuration(time.Duration)    {}
func (NoopSink) ObjectOp(string, string, time.Duration) {}
func (NoopSink) BlocksReleased(int)                      {}
func (NoopSink) BlockUnlinkFailure()                     {}
func (NoopSink) ObserveRangeRead(time.Duration)          {}
func (NoopSink) MultipartUploadStarted()                 {}
func (NoopSink) MultipartUploadFinished()                {}
func (NoopSink) MultipartPart()                          {}
func (NoopSink) Request(string, string, time.Duration)   {}
func (NoopSink) SetBlocksTotal(int)                       {}
func (NoopSink) SetBucketsTotal(string, int)              {}
func (NoopSink) SetObjectsTotal(string, string, int)      {}
func (NoopSink) SetTenantsActive(int)                     {}

var (
	_ Sink = PromSink{}
	_ Sink = NoopSink{}
)
