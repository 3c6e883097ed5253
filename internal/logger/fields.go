package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these keys consistently
// across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // correlation id threaded through a submit call

	// ========================================================================
	// Record Store
	// ========================================================================
	KeyRecordID = "record_id" // record id an operation concerns
	KeyFolder   = "folder"    // folder path attribute
	KeyFilename = "filename"  // original uploaded filename
	KeyChecksum = "checksum"  // hex digest of a payload
	KeyShard    = "shard"     // shard coordinate
	KeySize     = "size"      // byte count

	// ========================================================================
	// Ingestion
	// ========================================================================
	KeyTaskID      = "task_id"      // ingestion task id
	KeyAttempt     = "attempt"      // retry attempt number
	KeyMaxRetries  = "max_retries"  // maximum retry attempts
	KeyWorkerCount = "worker_count" // current worker pool size
	KeyQueueDepth  = "queue_depth"  // pending queue length

	// ========================================================================
	// Object Storage
	// ========================================================================
	KeyPayloadRef = "payload_ref" // object-storage key
	KeyBackend    = "backend"     // object storage backend name

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeyCacheHit      = "cache_hit"      // cache hit indicator
	KeyCacheSize     = "cache_size"     // current cache size
	KeyCacheCapacity = "cache_capacity" // maximum cache capacity
	KeyEvicted       = "evicted"        // number of entries evicted

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyOperation  = "operation"   // operation name
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for the correlation id.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// RecordID returns a slog.Attr for the record id an operation concerns.
func RecordID(id string) slog.Attr {
	return slog.String(KeyRecordID, id)
}

// Folder returns a slog.Attr for a folder path.
func Folder(path string) slog.Attr {
	return slog.String(KeyFolder, path)
}

// Filename returns a slog.Attr for a filename.
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Checksum returns a slog.Attr for a payload checksum.
func Checksum(hash string) slog.Attr {
	return slog.String(KeyChecksum, hash)
}

// Shard returns a slog.Attr for a shard coordinate.
func Shard(coord int64) slog.Attr {
	return slog.Int64(KeyShard, coord)
}

// Size returns a slog.Attr for a byte count.
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// TaskID returns a slog.Attr for an ingestion task id.
func TaskID(id string) slog.Attr {
	return slog.String(KeyTaskID, id)
}

// Attempt returns a slog.Attr for the retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry attempt count.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// WorkerCount returns a slog.Attr for the current worker pool size.
func WorkerCount(n int) slog.Attr {
	return slog.Int(KeyWorkerCount, n)
}

// QueueDepth returns a slog.Attr for the pending queue length.
func QueueDepth(n int64) slog.Attr {
	return slog.Int64(KeyQueueDepth, n)
}

// PayloadRef returns a slog.Attr for an object-storage key.
func PayloadRef(key string) slog.Attr {
	return slog.String(KeyPayloadRef, key)
}

// Backend returns a slog.Attr for an object storage backend name.
func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

// CacheHit returns a slog.Attr for the cache hit indicator.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheSize returns a slog.Attr for the current cache size.
func CacheSize(size int64) slog.Attr {
	return slog.Int64(KeyCacheSize, size)
}

// CacheCapacity returns a slog.Attr for the maximum cache capacity.
func CacheCapacity(capacity int64) slog.Attr {
	return slog.Int64(KeyCacheCapacity, capacity)
}

// Evicted returns a slog.Attr for the number of entries evicted.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// Operation returns a slog.Attr for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
