/*
Package metrics provides Prometheus metrics collection and exposition for the
storage engine.

Metrics are registered at package init and exposed via an HTTP handler for
scraping. Categories: metastore state (blocks/buckets/objects/tenants),
ingest throughput and chunk outcome, object-operation latency and outcome,
refcount GC, range reads, multipart uploads, and request-layer counters.

# Metrics Catalog

Metastore state:

s3cas_blocks_total:
  - Type: Gauge
  - Description: Total distinct blocks in the shared block tree

s3cas_buckets_total{tenant}:
  - Type: Gauge
  - Description: Total buckets by tenant

s3cas_objects_total{tenant, bucket}:
  - Type: Gauge
  - Description: Total objects by tenant and bucket

s3cas_tenants_active:
  - Type: Gauge
  - Description: Number of tenant metastores currently open in the router cache

Ingest:

s3cas_ingest_chunks_total{outcome}:
  - Type: Counter
  - Description: Chunks processed; ObjectStore records outcome "ok" for each
    block of a successful ingest and "error" once for a failed ingest. New
    and deduplicated chunks are not counted separately.

s3cas_ingest_bytes_total:
  - Type: Counter
  - Description: Bytes read by the ingest pipeline

s3cas_ingest_duration_seconds:
  - Type: Histogram
  - Description: Time to ingest one stream end to end

Object operations:

s3cas_object_op_duration_seconds{op}:
  - Type: Histogram
  - Description: Object-level operation duration; op is put/get/delete/copy/list/head

s3cas_object_ops_total{op, outcome}:
  - Type: Counter
  - Description: Object-level operations by op and outcome (ok/error)

Refcount GC:

s3cas_blocks_released_total:
  - Type: Counter
  - Description: Blocks whose refcount reached zero and were removed

s3cas_block_unlink_failures_total:
  - Type: Counter
  - Description: Best-effort on-disk unlinks that failed during delete

Range reads:

s3cas_range_read_duration_seconds:
  - Type: Histogram
  - Description: Time to stream a range read to completion

Multipart:

s3cas_multipart_uploads_active:
  - Type: Gauge
  - Description: Multipart uploads currently in progress

s3cas_multipart_parts_total:
  - Type: Counter
  - Description: Multipart upload parts received

Request layer:

s3cas_requests_total{method, status}:
  - Type: Counter
  - Description: S3 API requests by method and status

s3cas_request_duration_seconds{method}:
  - Type: Histogram
  - Description: S3 API request duration

# Usage

	timer := metrics.NewTimer()
	// ... perform ingest ...
	timer.ObserveDuration(metrics.IngestDuration)
	metrics.IngestBytesTotal.Add(float64(n))

	timer2 := metrics.NewTimer()
	// ... perform put_object ...
	timer2.ObserveDurationVec(metrics.ObjectOpDuration, "put")
	metrics.ObjectOpsTotal.WithLabelValues("put", "ok").Inc()

	http.Handle("/metrics", metrics.Handler())

# Label discipline

Keep labels low-cardinality: operation names, outcomes, tenant IDs if the
tenant population is small. Never label by object key or block ID.
*/
package metrics
