// Package registry implements ShardRegistry (spec §4.9): an in-memory
// projection of the manifest, kept per table, that answers "which shards
// might contain pk" and "is this table due for compaction" without
// re-parsing the manifest file or touching any shard's mmap.
//
// The registry's state is replaced wholesale by Reset after every manifest
// change; OverlapDepth recomputes depth with a sweep over the current
// ranges on every query rather than keeping a running aggregate.
package registry

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/gnitz-db/zset/internal/zkey"
)

// Handle is what the registry hands back for a live shard: enough to open
// or re-identify it without holding its mmap open.
type Handle struct {
	Path   string
	MinPK  zkey.PrimaryKey
	MaxPK  zkey.PrimaryKey
	MinLSN uint64
	MaxLSN uint64
}

// DefaultOverlapThreshold is the overlap depth above which
// CompactionCandidates proposes a job (spec §4.9 default 4).
const DefaultOverlapThreshold = 4

// Registry tracks, per table, the live shard set ordered by MinPK. JobKey
// hashes with cespare/xxhash/v2, kept deliberately distinct from the XXH3
// family used for on-disk checksums (internal/checksum), since this hash
// never leaves the process.
type Registry struct {
	tables map[uint64]*tableState
}

type tableState struct {
	handles   []Handle // sorted by MinPK
	threshold int
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{tables: make(map[uint64]*tableState)}
}

func (r *Registry) table(tableID uint64) *tableState {
	t, ok := r.tables[tableID]
	if !ok {
		t = &tableState{threshold: DefaultOverlapThreshold}
		r.tables[tableID] = t
	}
	return t
}

// SetThreshold overrides the overlap-depth threshold for one table.
func (r *Registry) SetThreshold(tableID uint64, threshold int) {
	r.table(tableID).threshold = threshold
}

// Reset replaces a table's shard set wholesale — the projection operation
// a manifest reload performs after every flush or compaction swap.
func (r *Registry) Reset(tableID uint64, handles []Handle) {
	t := r.table(tableID)
	sorted := append([]Handle(nil), handles...)
	sort.Slice(sorted, func(i, j int) bool {
		return zkey.Compare(sorted[i].MinPK, sorted[j].MinPK) < 0
	})
	t.handles = sorted
}

// ShardsCovering returns every handle whose [MinPK, MaxPK] range contains
// pk (spec §4.9 shards_covering).
func (r *Registry) ShardsCovering(tableID uint64, pk zkey.PrimaryKey) []Handle {
	t := r.table(tableID)
	var out []Handle
	for _, h := range t.handles {
		if zkey.Compare(pk, h.MinPK) >= 0 && zkey.Compare(pk, h.MaxPK) <= 0 {
			out = append(out, h)
		}
	}
	return out
}

// OverlapDepth returns the maximum number of shards whose ranges overlap
// at any single point in the table's PK domain (spec §4.9 overlap_depth).
// It uses a classic sweep over range endpoints rather than bucket hashing:
// with the shard count expected to stay small between compactions (the
// threshold itself caps how deep overlap is allowed to grow), an O(n log n)
// sweep every query is simpler and cheaper than maintaining incremental
// bucket counts that xxhash would key.
func (r *Registry) OverlapDepth(tableID uint64) int {
	t := r.table(tableID)
	n := len(t.handles)
	if n == 0 {
		return 0
	}
	type event struct {
		pk    zkey.PrimaryKey
		delta int
	}
	events := make([]event, 0, 2*n)
	for _, h := range t.handles {
		events = append(events, event{pk: h.MinPK, delta: 1})
		events = append(events, event{pk: h.MaxPK, delta: -1})
	}
	sort.Slice(events, func(i, j int) bool {
		c := zkey.Compare(events[i].pk, events[j].pk)
		if c != 0 {
			return c < 0
		}
		// Process range-starts before range-ends that land on the same
		// key, so a shard whose MaxPK equals another's MinPK is counted
		// as overlapping at that single point (ranges are closed on both
		// ends per spec §4.9).
		return events[i].delta > events[j].delta
	})
	depth, max := 0, 0
	for _, e := range events {
		depth += e.delta
		if depth > max {
			max = depth
		}
	}
	return max
}

// CompactionCandidates returns the shards contributing to the table's
// maximum-overlap range when OverlapDepth exceeds the table's threshold,
// or nil otherwise (spec §4.9 compaction_candidates).
func (r *Registry) CompactionCandidates(tableID uint64) []Handle {
	t := r.table(tableID)
	if r.OverlapDepth(tableID) <= t.threshold {
		return nil
	}

	// Re-sweep to find where the maximum depth is reached, then collect
	// every shard whose range covers that point.
	type event struct {
		pk    zkey.PrimaryKey
		delta int
	}
	events := make([]event, 0, 2*len(t.handles))
	for _, h := range t.handles {
		events = append(events, event{pk: h.MinPK, delta: 1})
		events = append(events, event{pk: h.MaxPK, delta: -1})
	}
	sort.Slice(events, func(i, j int) bool {
		c := zkey.Compare(events[i].pk, events[j].pk)
		if c != 0 {
			return c < 0
		}
		return events[i].delta > events[j].delta
	})
	depth, max := 0, 0
	var maxPK zkey.PrimaryKey
	for _, e := range events {
		depth += e.delta
		if depth > max {
			max = depth
			maxPK = e.pk
		}
	}

	var out []Handle
	for _, h := range t.handles {
		if zkey.Compare(maxPK, h.MinPK) >= 0 && zkey.Compare(maxPK, h.MaxPK) <= 0 {
			out = append(out, h)
		}
	}
	return out
}

// bucketHash hashes (tableID, shard set) into one uint64 for JobKey,
// rather than keying by a long formatted string; kept here since the
// registry is what knows a table's current shard set.
func bucketHash(tableID uint64, handles []Handle) uint64 {
	h := xxhash.New()
	var buf [8]byte
	putU64 := func(v uint64) {
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}
	putU64(tableID)
	for _, hd := range handles {
		h.Write([]byte(hd.Path))
	}
	return h.Sum64()
}

// JobKey returns a stable dedup key for a compaction job over the given
// candidate set, suitable as a golang.org/x/sync/singleflight key.
func JobKey(tableID uint64, handles []Handle) string {
	return strconv.FormatUint(bucketHash(tableID, handles), 36)
}
