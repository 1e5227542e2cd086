package zset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"

	"github.com/gnitz-db/zset/internal/manifest"
)

func i64Schema() *TableSchema {
	return NewTableSchema(PKU64, -1, []ColumnDef{{Name: "v", Type: TypeI64}})
}

// TestScenarioS3Restart covers crash recovery: a second Engine opened
// against the same directory, with both batches still only in the WAL
// (never flushed), must see exactly the batches that were durably appended
// to the WAL, and nothing beyond.
func TestScenarioS3Restart(t *testing.T) {
	dir := t.TempDir()
	schema := i64Schema()

	e1, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, e1.OpenTable("t", schema))

	_, err = e1.Ingest("t", Batch{{PK: U64(1), Values: []any{int64(10)}, Weight: 1}})
	require.NoError(t, err)
	_, err = e1.Ingest("t", Batch{{PK: U64(2), Values: []any{int64(20)}, Weight: 1}})
	require.NoError(t, err)

	// e1 is closed so its advisory WAL lock is released for the new Writer;
	// Close does not flush the MemTable, so e2 can only recover both batches
	// by WAL replay. This models "process restart", not "two processes at
	// once".
	require.NoError(t, e1.Close())

	e2, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer e2.Close()
	require.NoError(t, e2.OpenTable("t", schema))

	w, err := e2.WeightOf("t", U64(1), []any{int64(10)})
	require.NoError(t, err)
	require.EqualValues(t, 1, w)

	w, err = e2.WeightOf("t", U64(2), []any{int64(20)})
	require.NoError(t, err)
	require.EqualValues(t, 1, w)

	c, err := e2.Cursor("t")
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
}

// TestScenarioS4CompactionEquivalence builds five overlapping shards over
// the same PK range via repeated ingest/flush rounds, triggers a
// compaction, and asserts that every key's total weight is unchanged and
// that overlap depth collapses to 1.
func TestScenarioS4CompactionEquivalence(t *testing.T) {
	dir := t.TempDir()
	schema := i64Schema()

	opts := DefaultOptions()
	opts.CompactionOverlapThreshold = 1

	e, err := Open(dir, opts)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.OpenTable("t", schema))

	const n = 1000
	const rounds = 5
	for r := 0; r < rounds; r++ {
		batch := make(Batch, 0, n)
		for pk := uint64(1); pk <= n; pk++ {
			batch = append(batch, Record{PK: U64(pk), Values: []any{int64(pk)}, Weight: 1})
		}
		_, err := e.Ingest("t", batch)
		require.NoError(t, err)
		require.NoError(t, e.Flush("t"))
	}

	require.EqualValues(t, rounds, e.Metrics.Table("t").OverlapDepth)

	require.NoError(t, e.MaybeCompact("t"))

	require.EqualValues(t, 1, e.Metrics.Table("t").OverlapDepth)

	for _, pk := range []uint64{1, 2, 500, 999, 1000} {
		w, err := e.WeightOf("t", U64(pk), []any{int64(pk)})
		require.NoError(t, err)
		require.EqualValuesf(t, rounds, w, "pk=%d", pk)
	}

	c, err := e.Cursor("t")
	require.NoError(t, err)
	require.Equal(t, n, c.Len())

	expected := make([]CursorRecord, n)
	for i := range expected {
		pk := uint64(i + 1)
		expected[i] = CursorRecord{PK: U64(pk), Values: []any{int64(pk)}, Weight: rounds}
	}
	var actual []CursorRecord
	for {
		r, ok := c.Next()
		if !ok {
			break
		}
		actual = append(actual, r)
	}
	if diff := pretty.Diff(expected, actual); len(diff) > 0 {
		t.Fatalf("post-compaction cursor disagrees with direct ingest equivalence:\n%s", strings.Join(diff, "\n"))
	}
}

// TestScenarioS6WALTruncation corrupts the body checksum of the last of
// three WAL blocks on disk and asserts replay stops after the first two,
// with SnapshotLSN reflecting only the surviving records.
func TestScenarioS6WALTruncation(t *testing.T) {
	dir := t.TempDir()
	schema := i64Schema()

	e1, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, e1.OpenTable("t", schema))

	lsn0, err := e1.Ingest("t", Batch{{PK: U64(1), Values: []any{int64(10)}, Weight: 1}})
	require.NoError(t, err)
	_, err = e1.Ingest("t", Batch{{PK: U64(2), Values: []any{int64(20)}, Weight: 1}})
	require.NoError(t, err)
	lsn2, err := e1.Ingest("t", Batch{{PK: U64(3), Values: []any{int64(30)}, Weight: 1}})
	require.NoError(t, err)
	require.EqualValues(t, lsn0+2, lsn2)
	require.NoError(t, e1.Close())

	walPath := filepath.Join(dir, "t", "WAL")
	data, err := os.ReadFile(walPath)
	require.NoError(t, err)

	const headerSize = 32
	recordSize := schema.PKKind.Size() + 8 + schema.Stride()
	blockSize := headerSize + recordSize
	require.True(t, len(data) >= 3*blockSize)

	// Flip a byte inside the third block's body so its checksum no longer
	// matches the header's recorded BodyXXH3.
	corruptAt := 2*blockSize + headerSize
	data[corruptAt] ^= 0xFF
	require.NoError(t, os.WriteFile(walPath, data, 0644))

	e2, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer e2.Close()
	require.NoError(t, e2.OpenTable("t", schema))

	snap, err := e2.SnapshotLSN("t")
	require.NoError(t, err)
	require.EqualValues(t, lsn2, snap)

	w, err := e2.WeightOf("t", U64(1), []any{int64(10)})
	require.NoError(t, err)
	require.EqualValues(t, 1, w)
	w, err = e2.WeightOf("t", U64(2), []any{int64(20)})
	require.NoError(t, err)
	require.EqualValues(t, 1, w)
	w, err = e2.WeightOf("t", U64(3), []any{int64(30)})
	require.NoError(t, err)
	require.EqualValues(t, 0, w)

	fi, err := os.Stat(walPath)
	require.NoError(t, err)
	require.EqualValues(t, 2*blockSize, fi.Size())
}

// TestIngestSchemaMismatchRecoverable covers spec §7's SchemaMismatch
// contract: a batch whose value types disagree with the table's schema is
// rejected without touching WAL or MemTable state, rather than panicking.
func TestIngestSchemaMismatchRecoverable(t *testing.T) {
	dir := t.TempDir()
	schema := i64Schema()

	e, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.OpenTable("t", schema))

	_, err = e.Ingest("t", Batch{{PK: U64(1), Values: []any{"not-an-int64"}, Weight: 1}})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSchemaMismatch))

	snap, err := e.SnapshotLSN("t")
	require.NoError(t, err)
	require.EqualValues(t, 1, snap)
}

// TestAlgebraicClosure covers the Z-Set algebraic closure invariant: the
// union of a MemTable and a flushed shard observes the same total weight
// per (pk, payload) whether queried before or after the flush.
func TestAlgebraicClosure(t *testing.T) {
	dir := t.TempDir()
	schema := i64Schema()

	e, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.OpenTable("t", schema))

	_, err = e.Ingest("t", Batch{
		{PK: U64(1), Values: []any{int64(100)}, Weight: 2},
		{PK: U64(1), Values: []any{int64(100)}, Weight: 3},
	})
	require.NoError(t, err)

	before, err := e.WeightOf("t", U64(1), []any{int64(100)})
	require.NoError(t, err)
	require.EqualValues(t, 5, before)

	require.NoError(t, e.Flush("t"))

	after, err := e.WeightOf("t", U64(1), []any{int64(100)})
	require.NoError(t, err)
	require.Equal(t, before, after)
}

// TestManifestAtomicity covers spec §7 / §4.8: a manifest is always either
// the pre-flush or post-flush version, never a partially-written one, and
// Load of a missing manifest yields an empty one rather than an error.
func TestManifestAtomicity(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, manifest.FileName)

	m, err := manifest.Load(manifestPath)
	require.NoError(t, err)
	require.Equal(t, uint64(0), m.GlobalMaxLSN)
	require.Empty(t, m.Entries)

	next := m.WithShards(nil, []manifest.Entry{{TableID: 1, Path: "a.shard", MinLSN: 0, MaxLSN: 0}}, 1)
	require.NoError(t, manifest.Save(manifestPath, next))

	reloaded, err := manifest.Load(manifestPath)
	require.NoError(t, err)
	require.Len(t, reloaded.Entries, 1)
	require.EqualValues(t, 1, reloaded.GlobalMaxLSN)
}
