// Package zset is the persistent Z-Set storage core: a single Engine
// coordinating a WAL, a MemTable, immutable on-disk shards, and the
// manifest that catalogs them (spec §2 System Overview).
package zset

import "github.com/cockroachdb/errors"

// Kind names one of the failure categories of spec §7. Errors returned
// from this package that fall into one of these categories are one of the
// sentinels below, wrapped with errors.Wrap for context or marked with
// errors.Mark; a few operational errors (such as opening a table twice)
// carry no sentinel. Callers should use errors.Is against the Kind, not
// against the wrapped message.
type Kind = error

var (
	// ErrBounds is any read outside a MappedBuffer (spec §7 Bounds).
	ErrBounds = errors.New("zset: out of bounds access")

	// ErrCorruptShard marks a shard that failed magic, version, checksum,
	// alignment, or row-invariant verification. The engine refuses to open
	// a table if a shard catalogued in its manifest fails (fatal); a
	// compaction input that fails to open aborts that compaction job, which
	// MaybeCompact reports as ErrIO, and the table stays usable.
	ErrCorruptShard = errors.New("zset: corrupt shard")

	// ErrCorruptManifest marks a checksum or ordering failure on manifest
	// load. Fatal on open.
	ErrCorruptManifest = errors.New("zset: corrupt manifest")

	// ErrCorruptWAL names a block checksum failure during replay.
	// OpenTable does not return it: replay truncates to the last valid
	// block and proceeds.
	ErrCorruptWAL = errors.New("zset: corrupt wal")

	// ErrWALLocked marks that another writer already holds the WAL's
	// exclusive advisory lock. Fatal on open.
	ErrWALLocked = errors.New("zset: wal locked by another writer")

	// ErrWeightOverflow marks i64 saturation during weight coalescing.
	// Fails the current batch; if detected only after the WAL block was
	// already fsync'd, the table is marked degraded (see tableState.degraded).
	ErrWeightOverflow = errors.New("zset: weight overflow")

	// ErrOutOfMemory marks an arena reaching its capacity. Fails the
	// current batch; if raised during flush, the flush aborts and the
	// sealed MemTable remains sealed until retried.
	ErrOutOfMemory = errors.New("zset: arena out of memory")

	// ErrSchemaMismatch marks an ingest batch or lookup whose values do not
	// match the table's schema in column count or Go type (see
	// validateValues). The batch is rejected with no state change.
	ErrSchemaMismatch = errors.New("zset: schema mismatch")

	// ErrIO marks a failure from the filesystem itself (disk full, EIO,
	// EBADF). A post-commit IO failure (e.g. a manifest rename) is
	// treated as fatal by the caller, not just batch-local.
	ErrIO = errors.New("zset: io failure")

	// ErrClosed is returned by any Engine method called after Close.
	ErrClosed = errors.New("zset: engine closed")

	// ErrDegraded is returned by Ingest once a table has been marked
	// degraded by a post-commit weight overflow (spec §7 WeightOverflow:
	// "marks the table as degraded and rejects further ingests").
	ErrDegraded = errors.New("zset: table degraded, ingest rejected")

	// ErrUnknownTable is returned when a table name has not been opened.
	ErrUnknownTable = errors.New("zset: unknown table")
)
