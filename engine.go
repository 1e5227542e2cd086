// Engine coordinates one or more tables' WAL, MemTable, shards, and
// manifest, playing the role the teacher's root db.go plays over its own
// memtable/sstable/manifest trio: one writer lock per table serializing
// ingest, flush, and the compaction swap step (spec §4.13, §5).
package zset

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gnitz-db/zset/internal/compact"
	"github.com/gnitz-db/zset/internal/manifest"
	"github.com/gnitz-db/zset/internal/memtable"
	"github.com/gnitz-db/zset/internal/refcount"
	"github.com/gnitz-db/zset/internal/registry"
	"github.com/gnitz-db/zset/internal/shard"
	"github.com/gnitz-db/zset/internal/wal"
	"github.com/gnitz-db/zset/internal/zkey"
)

// Engine is the top-level handle a process holds open for one storage
// directory; it may host multiple tables, each in its own subdirectory
// (spec §6 "Filesystem layout per table").
type Engine struct {
	dir  string
	opts Options

	Metrics *Metrics

	refs      *refcount.Counter
	registry  *registry.Registry
	compactor *compact.Compactor

	mu     sync.RWMutex
	tables map[string]*tableState
	closed bool
}

// tableState is one table's open handles. mu serializes every operation
// that touches the WAL, MemTable, or manifest for this table (spec §5:
// "Single writer (Engine) for: WAL, MemTable, manifest").
type tableState struct {
	name   string
	id     uint64
	dir    string
	schema *zkey.TableSchema

	manifestPath string

	mu       sync.Mutex
	wal      *wal.Writer
	mem      *memtable.MemTable
	man      *manifest.Manifest
	views    map[string]*shard.View
	tail     []wal.Entry
	degraded bool
}

// Open constructs an Engine rooted at dir, creating it if necessary.
// Tables are opened individually with OpenTable.
func Open(dir string, opts Options) (*Engine, error) {
	opts = opts.EnsureDefaults()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "zset: creating engine directory %s", dir)
	}
	refs := refcount.New()
	return &Engine{
		dir:       dir,
		opts:      opts,
		Metrics:   NewMetrics(),
		refs:      refs,
		registry:  registry.New(),
		compactor: compact.New(refs),
		tables:    make(map[string]*tableState),
	}, nil
}

// OpenTable opens (creating if necessary) one table's directory, loading
// its manifest, mapping every live shard it names, and replaying any WAL
// entries newer than the manifest's global_max_lsn into a fresh MemTable
// (spec §4.13 open).
func (e *Engine) OpenTable(name string, schema *zkey.TableSchema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if _, ok := e.tables[name]; ok {
		return errors.Newf("zset: table %q already open", name)
	}

	tableID := xxhash.Sum64String(name)
	tdir := filepath.Join(e.dir, name)
	shardsDir := filepath.Join(tdir, "shards")
	if err := os.MkdirAll(shardsDir, 0755); err != nil {
		return errors.Wrapf(err, "zset: creating table directory %s", tdir)
	}

	manifestPath := filepath.Join(tdir, manifest.FileName)
	man, err := manifest.Load(manifestPath)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "zset: loading manifest for table %q", name), ErrCorruptManifest)
	}

	views := make(map[string]*shard.View, len(man.Entries))
	for _, ent := range man.Entries {
		v, err := shard.Open(ent.Path, schema)
		if err != nil {
			for _, open := range views {
				open.Close()
			}
			return errors.Mark(errors.Wrapf(err, "zset: opening shard %s", ent.Path), ErrCorruptShard)
		}
		e.refs.Acquire(ent.Path)
		views[ent.Path] = v
	}

	walPath := filepath.Join(tdir, "WAL")
	w, entries, err := wal.Open(walPath, schema, uint32(tableID))
	if err != nil {
		for _, v := range views {
			v.Close()
		}
		if errors.Is(err, wal.ErrWALLocked) {
			err = errors.Mark(err, ErrWALLocked)
		}
		return err
	}

	mem := memtable.New(schema, memtable.Options{
		StagingSlabBytes: e.opts.ArenaSlabBytes,
		BlobBytes:        e.opts.ArenaSlabBytes,
	})
	var tail []wal.Entry
	for _, ent := range entries {
		if ent.LSN <= man.GlobalMaxLSN {
			continue
		}
		if _, err := mem.Upsert(ent.PK, ent.Values, ent.Weight, ent.LSN); err != nil {
			w.Close()
			for _, v := range views {
				v.Close()
			}
			return errors.Mark(errors.Wrap(err, "zset: replaying wal into memtable"), ErrWeightOverflow)
		}
		tail = append(tail, ent)
	}

	ts := &tableState{
		name:         name,
		id:           tableID,
		dir:          tdir,
		schema:       schema,
		manifestPath: manifestPath,
		wal:          w,
		mem:          mem,
		man:          man,
		views:        views,
		tail:         tail,
	}
	e.tables[name] = ts
	e.registry.SetThreshold(tableID, e.opts.CompactionOverlapThreshold)
	e.registry.Reset(tableID, handlesFromEntries(man.Entries))
	e.Metrics.SetReadAmp(name, e.registry.OverlapDepth(tableID), len(man.Entries))
	return nil
}

func handlesFromEntries(entries []manifest.Entry) []registry.Handle {
	out := make([]registry.Handle, len(entries))
	for i, ent := range entries {
		out[i] = registry.Handle{Path: ent.Path, MinPK: ent.MinPK, MaxPK: ent.MaxPK, MinLSN: ent.MinLSN, MaxLSN: ent.MaxLSN}
	}
	return out
}

func (e *Engine) table(name string) (*tableState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	ts, ok := e.tables[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTable, "table %q", name)
	}
	return ts, nil
}

// Ingest assigns a new LSN to batch, durably appends it to the WAL, then
// applies every record to the MemTable (spec §4.13 ingest). Nothing is
// applied in memory if the WAL append failed; if a post-commit MemTable
// apply fails (weight overflow after the block was already fsync'd), the
// table is marked degraded and further ingests are rejected until
// restarted, per spec §7 WeightOverflow.
func (e *Engine) Ingest(table string, batch Batch) (uint64, error) {
	ts, err := e.table(table)
	if err != nil {
		return 0, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.degraded {
		return 0, ErrDegraded
	}
	if len(batch) == 0 {
		return ts.wal.NextLSN(), nil
	}
	for _, rec := range batch {
		if err := validateValues(ts.schema, rec.Values); err != nil {
			return 0, err
		}
	}

	entries := make([]wal.Entry, len(batch))
	for i, rec := range batch {
		entries[i] = wal.Entry{PK: rec.PK, Values: rec.Values, Weight: rec.Weight}
	}

	start := time.Now()
	lsn, err := ts.wal.Append(entries)
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "zset: appending wal batch"), ErrIO)
	}
	bytes := 0
	for range entries {
		bytes += ts.schema.Stride()
	}
	e.Metrics.RecordFsync(time.Since(start), bytes)

	for i, rec := range batch {
		if _, err := ts.mem.Upsert(rec.PK, rec.Values, rec.Weight, lsn); err != nil {
			ts.degraded = true
			return lsn, errors.Mark(errors.Wrapf(err, "zset: applying batch entry %d after wal commit", i), ErrWeightOverflow)
		}
		ts.tail = append(ts.tail, wal.Entry{PK: rec.PK, Values: rec.Values, Weight: rec.Weight, LSN: lsn})
	}

	if ts.mem.ByteOccupancy() >= e.opts.MemTableSealBytes {
		if err := e.flushLocked(ts); err != nil {
			return lsn, err
		}
	}
	return lsn, nil
}

// WeightOf sums the MemTable's coalesced weight and every live shard's
// weight for the key whose payload matches under semantic equality (spec
// §4.13 weight_of).
func (e *Engine) WeightOf(table string, pk PrimaryKey, values []any) (int64, error) {
	ts, err := e.table(table)
	if err != nil {
		return 0, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if err := validateValues(ts.schema, values); err != nil {
		return 0, err
	}

	total, _, err := ts.mem.WeightOf(pk, values)
	if err != nil {
		return 0, err
	}

	var scratchBlob []byte
	queryPayload, err := zkey.EncodeRow(ts.schema, values, func(s []byte) (uint64, error) {
		off := uint64(len(scratchBlob))
		scratchBlob = append(scratchBlob, s...)
		return off, nil
	})
	if err != nil {
		return 0, err
	}

	for _, v := range ts.views {
		lo, hi := v.FindPK(pk)
		for i := lo; i < hi; i++ {
			payload, err := v.PayloadAt(i)
			if err != nil {
				return 0, errors.Mark(err, ErrCorruptShard)
			}
			blob, err := v.Blob()
			if err != nil {
				return 0, errors.Mark(err, ErrCorruptShard)
			}
			if zkey.PayloadEqual(ts.schema, payload, blob, queryPayload, scratchBlob) {
				w, err := v.WeightAt(i)
				if err != nil {
					return 0, errors.Mark(err, ErrCorruptShard)
				}
				total += w
			}
		}
	}
	return total, nil
}

// Flush seals the current MemTable, transmutes it into a new shard,
// updates the manifest, and truncates the WAL (spec §4.13 flush).
func (e *Engine) Flush(table string) error {
	ts, err := e.table(table)
	if err != nil {
		return err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return e.flushLocked(ts)
}

// flushLocked requires ts.mu to already be held.
func (e *Engine) flushLocked(ts *tableState) error {
	nodes := ts.mem.Cursor()
	if len(nodes) == 0 {
		return nil
	}

	rows := make([]shard.Row, len(nodes))
	var maxLSN uint64
	for i, n := range nodes {
		rows[i] = shard.Row{PK: n.PK, Payload: n.Payload, Blob: n.Blob, Weight: n.Weight, LSN: n.MaxLSN}
		if n.MaxLSN > maxLSN {
			maxLSN = n.MaxLSN
		}
	}
	newGlobalMaxLSN := ts.man.GlobalMaxLSN
	if maxLSN > newGlobalMaxLSN {
		newGlobalMaxLSN = maxLSN
	}
	flushedBytes := ts.mem.ByteOccupancy()

	outPath := filepath.Join(ts.dir, "shards", uuid.NewString()+".shard")
	var added []manifest.Entry
	res, err := shard.Write(outPath, ts.schema, ts.id, rows)
	switch {
	case err == nil:
		added = append(added, manifest.Entry{
			TableID:    ts.id,
			Path:       res.Path,
			PKKind:     ts.schema.PKKind,
			MinPK:      res.MinPK,
			MaxPK:      res.MaxPK,
			MinLSN:     res.MinLSN,
			MaxLSN:     res.MaxLSN,
			SchemaHash: ts.schema.Hash(),
		})
	case errors.Is(err, shard.ErrEmptyShard):
		// Every node annihilated to zero weight; nothing survives to
		// publish, but the WAL checkpoint still advances.
	default:
		return errors.Mark(errors.Wrap(err, "zset: writing flush shard"), ErrIO)
	}

	next := ts.man.WithShards(nil, added, newGlobalMaxLSN)
	if err := manifest.Save(ts.manifestPath, next); err != nil {
		if len(added) > 0 {
			os.Remove(outPath)
		}
		return errors.Mark(errors.Wrap(err, "zset: publishing manifest after flush"), ErrIO)
	}
	ts.man = next

	if err := ts.wal.TruncateBefore(newGlobalMaxLSN + 1); err != nil {
		return errors.Mark(errors.Wrap(err, "zset: truncating wal after flush"), ErrIO)
	}
	trimmed := ts.tail[:0]
	for _, e := range ts.tail {
		if e.LSN > newGlobalMaxLSN {
			trimmed = append(trimmed, e)
		}
	}
	ts.tail = trimmed

	if len(added) > 0 {
		v, err := shard.Open(added[0].Path, ts.schema)
		if err != nil {
			return errors.Mark(errors.Wrap(err, "zset: opening freshly flushed shard"), ErrCorruptShard)
		}
		e.refs.Acquire(added[0].Path)
		ts.views[added[0].Path] = v
	}

	ts.mem = memtable.New(ts.schema, memtable.Options{
		StagingSlabBytes: e.opts.ArenaSlabBytes,
		BlobBytes:        e.opts.ArenaSlabBytes,
	})

	e.registry.Reset(ts.id, handlesFromEntries(next.Entries))
	e.Metrics.RecordFlush(ts.name, flushedBytes)
	e.Metrics.SetReadAmp(ts.name, e.registry.OverlapDepth(ts.id), len(next.Entries))
	return nil
}

// MaybeCompact consults the registry for this table's current overlap
// depth and, if it exceeds the configured threshold, runs one compaction
// job over the candidate shards (spec §4.13 maybe_compact). It is a no-op
// if no candidates are found.
func (e *Engine) MaybeCompact(table string) error {
	ts, err := e.table(table)
	if err != nil {
		return err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	candidates := e.registry.CompactionCandidates(ts.id)
	if len(candidates) == 0 {
		return nil
	}

	byPath := make(map[string]manifest.Entry, len(ts.man.Entries))
	for _, ent := range ts.man.Entries {
		byPath[ent.Path] = ent
	}
	inputs := make([]manifest.Entry, 0, len(candidates))
	for _, h := range candidates {
		if ent, ok := byPath[h.Path]; ok {
			inputs = append(inputs, ent)
		}
	}
	if len(inputs) == 0 {
		return nil
	}

	outPath := filepath.Join(ts.dir, "shards", uuid.NewString()+".shard")
	start := time.Now()
	result, err := e.compactor.Run(compact.Job{
		TableID:      ts.id,
		Schema:       ts.schema,
		ManifestPath: ts.manifestPath,
		Current:      ts.man,
		Inputs:       inputs,
		OutputPath:   outPath,
	})
	if err != nil {
		if errors.Is(err, compact.ErrSwapFailed) {
			ts.degraded = true
		}
		return errors.Mark(err, ErrIO)
	}
	ts.man = result.Manifest

	for _, ent := range inputs {
		if v, ok := ts.views[ent.Path]; ok {
			v.Close()
			delete(ts.views, ent.Path)
			e.refs.Release(ent.Path)
		}
	}
	for _, ent := range result.Manifest.Entries {
		if ent.Path == outPath {
			if _, ok := ts.views[outPath]; !ok {
				v, err := shard.Open(outPath, ts.schema)
				if err != nil {
					return errors.Mark(errors.Wrap(err, "zset: opening compaction output"), ErrCorruptShard)
				}
				e.refs.Acquire(outPath)
				ts.views[outPath] = v
			}
			break
		}
	}

	e.registry.Reset(ts.id, handlesFromEntries(result.Manifest.Entries))
	e.Metrics.RecordCompaction(ts.name, 0, time.Since(start))
	e.Metrics.SetReadAmp(ts.name, e.registry.OverlapDepth(ts.id), len(result.Manifest.Entries))
	return nil
}

// Cursor returns an ordered snapshot over table's merged Z-Set — MemTable
// plus every live shard — fixed at the moment of the call (spec §6
// cursor(table), SPEC_FULL.md §4.14).
func (e *Engine) Cursor(table string) (*Cursor, error) {
	ts, err := e.table(table)
	if err != nil {
		return nil, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	nodes := ts.mem.Cursor()
	views := make([]*shard.View, 0, len(ts.views))
	for _, v := range ts.views {
		views = append(views, v)
	}
	records, err := snapshotMerge(ts.schema, nodes, views)
	if err != nil {
		return nil, errors.Mark(err, ErrCorruptShard)
	}
	return &Cursor{records: records}, nil
}

// SnapshotLSN returns the LSN boundary the next Cursor call would observe:
// every record ingested with an LSN strictly less than this value is
// either in the MemTable or a published shard; nothing at or after it has
// been applied yet.
func (e *Engine) SnapshotLSN(table string) (uint64, error) {
	ts, err := e.table(table)
	if err != nil {
		return 0, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.wal.NextLSN(), nil
}

// SubscribeWAL returns every WAL record with LSN >= fromLSN still
// physically resident in the table's WAL (i.e. not yet superseded by a
// flush), for a read-only tailer such as a sync server (spec §6
// subscribe_wal). Unlike the on-disk iterator the spec's wording
// suggests, this reads from the Engine's in-memory tail rather than
// re-opening the WAL file, since the WAL's single exclusive advisory lock
// is already held by this table's live Writer.
func (e *Engine) SubscribeWAL(table string, fromLSN uint64) ([]Record, error) {
	ts, err := e.table(table)
	if err != nil {
		return nil, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var out []Record
	for _, ent := range ts.tail {
		if ent.LSN >= fromLSN {
			out = append(out, Record{PK: ent.PK, Values: ent.Values, Weight: ent.Weight})
		}
	}
	return out, nil
}

// Close releases every table's RefCounter handles, persists each
// manifest, and closes each WAL (spec §4.13 close).
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	for _, ts := range e.tables {
		ts.mu.Lock()
		if err := manifest.Save(ts.manifestPath, ts.man); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "zset: saving manifest on close")
		}
		for path, v := range ts.views {
			v.Close()
			e.refs.Release(path)
		}
		if err := ts.wal.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "zset: closing wal on close")
		}
		ts.mu.Unlock()
	}
	return firstErr
}
