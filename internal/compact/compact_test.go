package compact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gnitz-db/zset/internal/manifest"
	"github.com/gnitz-db/zset/internal/refcount"
	"github.com/gnitz-db/zset/internal/shard"
	"github.com/gnitz-db/zset/internal/zkey"
)

func schemaFixture() *zkey.TableSchema {
	return zkey.NewTableSchema(zkey.PKU64, -1, []zkey.ColumnDef{
		{Name: "amount", Type: zkey.TypeI64},
	})
}

func writeShard(t *testing.T, dir, name string, schema *zkey.TableSchema, tableID uint64, entries []shard.Row) shard.WriteResult {
	t.Helper()
	path := filepath.Join(dir, name)
	res, err := shard.Write(path, schema, tableID, entries)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func row(schema *zkey.TableSchema, pk uint64, amount int64, weight int64, lsn uint64) shard.Row {
	p, err := zkey.EncodeRow(schema, []any{amount}, nil)
	if err != nil {
		panic(err)
	}
	return shard.Row{PK: zkey.U64(pk), Payload: p, Weight: weight, LSN: lsn}
}

func entryFor(res shard.WriteResult, tableID uint64) manifest.Entry {
	return manifest.Entry{
		TableID: tableID,
		Path:    res.Path,
		PKKind:  zkey.PKU64,
		MinPK:   res.MinPK,
		MaxPK:   res.MaxPK,
		MinLSN:  res.MinLSN,
		MaxLSN:  res.MaxLSN,
	}
}

func TestRunMergesAndAnnihilatesAcrossShards(t *testing.T) {
	dir := t.TempDir()
	schema := schemaFixture()

	resA := writeShard(t, dir, "a.shard", schema, 1, []shard.Row{
		row(schema, 1, 10, 1, 0),
		row(schema, 2, 20, 1, 1),
	})
	resB := writeShard(t, dir, "b.shard", schema, 1, []shard.Row{
		row(schema, 2, 20, -1, 2), // annihilates shard a's pk=2 row
		row(schema, 3, 30, 1, 3),
	})

	current := &manifest.Manifest{
		GlobalMaxLSN: 3,
		Entries:      []manifest.Entry{entryFor(resA, 1), entryFor(resB, 1)},
	}
	manifestPath := filepath.Join(dir, manifest.FileName)
	if err := manifest.Save(manifestPath, current); err != nil {
		t.Fatal(err)
	}

	co := New(refcount.New())
	job := Job{
		TableID:      1,
		Schema:       schema,
		ManifestPath: manifestPath,
		Current:      current,
		Inputs:       current.Entries,
		OutputPath:   filepath.Join(dir, "merged.shard"),
	}
	result, err := co.Run(job)
	if err != nil {
		t.Fatal(err)
	}
	if result.State != Done {
		t.Fatalf("expected state Done, got %v", result.State)
	}
	if len(result.Manifest.Entries) != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", len(result.Manifest.Entries))
	}

	v, err := shard.Open(result.Manifest.Entries[0].Path, schema)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	if v.Len() != 2 {
		t.Fatalf("expected 2 surviving records (pk=1, pk=3), got %d", v.Len())
	}
	pk0, _ := v.PKAt(0)
	pk1, _ := v.PKAt(1)
	if zkey.Compare(pk0, zkey.U64(1)) != 0 || zkey.Compare(pk1, zkey.U64(3)) != 0 {
		t.Fatalf("unexpected surviving pks: %+v %+v", pk0, pk1)
	}

	for _, e := range current.Entries {
		if _, err := os.Stat(e.Path); !os.IsNotExist(err) {
			t.Fatalf("expected input shard %s unlinked after compaction, stat err = %v", e.Path, err)
		}
	}
}

func TestRunFullAnnihilationProducesNoOutputShard(t *testing.T) {
	dir := t.TempDir()
	schema := schemaFixture()

	resA := writeShard(t, dir, "a.shard", schema, 1, []shard.Row{row(schema, 1, 10, 1, 0)})
	resB := writeShard(t, dir, "b.shard", schema, 1, []shard.Row{row(schema, 1, 10, -1, 1)})

	current := &manifest.Manifest{
		Entries: []manifest.Entry{entryFor(resA, 1), entryFor(resB, 1)},
	}
	manifestPath := filepath.Join(dir, manifest.FileName)
	if err := manifest.Save(manifestPath, current); err != nil {
		t.Fatal(err)
	}

	co := New(refcount.New())
	job := Job{
		TableID:      1,
		Schema:       schema,
		ManifestPath: manifestPath,
		Current:      current,
		Inputs:       current.Entries,
		OutputPath:   filepath.Join(dir, "merged.shard"),
	}
	result, err := co.Run(job)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Manifest.Entries) != 0 {
		t.Fatalf("expected zero surviving entries, got %d", len(result.Manifest.Entries))
	}
	if _, err := os.Stat(job.OutputPath); !os.IsNotExist(err) {
		t.Fatalf("expected no output shard file written, stat err = %v", err)
	}
}
