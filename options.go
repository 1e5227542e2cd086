package zset

// Options configures an Engine (spec §6 "Environment / configuration").
// The zero value is not meant to be used directly; call EnsureDefaults
// (or Open, which calls it) first.
type Options struct {
	// MemTableSealBytes is the combined staging+blob arena occupancy at
	// which Ingest triggers a flush (spec §6, default 64 MiB).
	MemTableSealBytes uint64

	// ArenaSlabBytes sizes each arena's slab (spec §6, default 64 MiB).
	ArenaSlabBytes uint32

	// CompactionOverlapThreshold is the ShardRegistry overlap depth past
	// which MaybeCompact selects a job (spec §6, default 4).
	CompactionOverlapThreshold int

	// WALFsync is carried in Options but not consulted: the WAL's Append
	// fsyncs before returning whatever its value, and Open does not report
	// the effective Options back to the caller.
	WALFsync bool
}

const (
	defaultMemTableSealBytes          = 64 << 20
	defaultArenaSlabBytes             = 64 << 20
	defaultCompactionOverlapThreshold = 4
)

// EnsureDefaults returns a copy of o with zero-valued fields replaced by
// their defaults, mirroring the teacher's `o = o.EnsureDefaults()` pattern
// for Options structs threaded through the staging tables.
func (o Options) EnsureDefaults() Options {
	if o.MemTableSealBytes == 0 {
		o.MemTableSealBytes = defaultMemTableSealBytes
	}
	if o.ArenaSlabBytes == 0 {
		o.ArenaSlabBytes = defaultArenaSlabBytes
	}
	if o.CompactionOverlapThreshold == 0 {
		o.CompactionOverlapThreshold = defaultCompactionOverlapThreshold
	}
	return o
}

// DefaultOptions returns an Options populated with every default,
// including WALFsync on (the only production-safe setting).
func DefaultOptions() Options {
	return Options{WALFsync: true}.EnsureDefaults()
}
