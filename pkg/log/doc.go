/*
Package log provides structured logging for the storage engine using
zerolog.

A single package-level Logger is initialized once via Init and shared
across every package. Domain-specific child loggers (WithTenant,
WithBucket, WithBlock, WithUploadID, WithComponent) attach the relevant
identifier as a structured field instead of interpolating it into the
message string, so logs stay queryable.

# Usage

	import "github.com/threefoldtech/s3-cas/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("storage engine opened")

	tenantLog := log.WithTenant(userID)
	tenantLog.Info().Str("bucket", bucket).Msg("bucket created")

	blockLog := log.WithBlock(blockID)
	blockLog.Warn().Err(err).Msg("unlink failed during delete")

# Log levels

Debug is for chunk-by-chunk ingest tracing during development. Info covers
bucket/object lifecycle events at the rate a production deployment can
tail. Warn covers recoverable conditions — a best-effort block unlink that
failed, a path-tree entry a caller didn't expect. Error covers failed
operations the caller will see returned as an error. Fatal is reserved for
startup failures the process cannot recover from (e.g. the metastore
directory can't be opened).

# Conventions

  - Prefer structured fields (.Str, .Uint64, .Err) over string
    interpolation — a block ID or object key belongs in a field, not the
    message, so it can be filtered on.
  - Never log object payload bytes, S3 secret keys, or password hashes.
  - Context loggers are constructed once per request/operation and passed
    down, not reconstructed per log line.
*/
package log
