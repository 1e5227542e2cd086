package shard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gnitz-db/zset/internal/zkey"
)

func schemaFixture() *zkey.TableSchema {
	return zkey.NewTableSchema(zkey.PKU64, -1, []zkey.ColumnDef{
		{Name: "amount", Type: zkey.TypeI64},
		{Name: "label", Type: zkey.TypeString},
	})
}

func row(schema *zkey.TableSchema, pk uint64, amount int64, label string, weight int64, lsn uint64) Row {
	var blob []byte
	p, err := zkey.EncodeRow(schema, []any{amount, []byte(label)}, func(b []byte) (uint64, error) {
		off := uint64(len(blob))
		blob = append(blob, b...)
		return off, nil
	})
	if err != nil {
		panic(err)
	}
	return Row{PK: zkey.U64(pk), Payload: p, Blob: blob, Weight: weight, LSN: lsn}
}

func TestWriteOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001.shard")
	schema := schemaFixture()

	rows := []Row{
		row(schema, 1, 10, "a", 1, 0),
		row(schema, 2, 20, "this-is-a-long-label-past-inline-twelve", 3, 1),
		row(schema, 3, 30, "c", -1, 2),
	}
	res, err := Write(path, schema, 7, rows)
	if err != nil {
		t.Fatal(err)
	}
	if res.RowCount != 3 {
		t.Fatalf("expected 3 surviving rows, got %d", res.RowCount)
	}

	v, err := Open(path, schema)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if v.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", v.Len())
	}
	if v.TableID() != 7 {
		t.Fatalf("expected table id 7, got %d", v.TableID())
	}

	pk0, err := v.PKAt(0)
	if err != nil {
		t.Fatal(err)
	}
	if zkey.Compare(pk0, zkey.U64(1)) != 0 {
		t.Fatalf("expected first pk 1, got %+v", pk0)
	}

	w1, err := v.WeightAt(1)
	if err != nil {
		t.Fatal(err)
	}
	if w1 != 3 {
		t.Fatalf("expected weight 3 at index 1, got %d", w1)
	}

	p1, err := v.PayloadAt(1)
	if err != nil {
		t.Fatal(err)
	}
	blob, err := v.Blob()
	if err != nil {
		t.Fatal(err)
	}
	g := p1.GetString(schema, 1)
	if string(zkey.Bytes(g, blob)) != "this-is-a-long-label-past-inline-twelve" {
		t.Fatalf("long string not round-tripped: %q", zkey.Bytes(g, blob))
	}
}

func TestWritePrunesZeroWeightRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001.shard")
	schema := schemaFixture()

	rows := []Row{
		row(schema, 1, 10, "a", 1, 0),
		row(schema, 2, 20, "b", 0, 1),
		row(schema, 3, 30, "c", 2, 2),
	}
	res, err := Write(path, schema, 1, rows)
	if err != nil {
		t.Fatal(err)
	}
	if res.RowCount != 2 {
		t.Fatalf("expected zero-weight row pruned, got %d rows", res.RowCount)
	}
}

func TestWriteAllZeroWeightReturnsErrEmptyShard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001.shard")
	schema := schemaFixture()

	rows := []Row{row(schema, 1, 10, "a", 0, 0)}
	if _, err := Write(path, schema, 1, rows); err != ErrEmptyShard {
		t.Fatalf("expected ErrEmptyShard, got %v", err)
	}
}

func TestFindPKBinarySearch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001.shard")
	schema := schemaFixture()

	rows := []Row{
		row(schema, 1, 10, "a", 1, 0),
		row(schema, 2, 20, "b", 1, 1),
		row(schema, 2, 21, "b2", 1, 1),
		row(schema, 5, 50, "e", 1, 2),
	}
	if _, err := Write(path, schema, 1, rows); err != nil {
		t.Fatal(err)
	}
	v, err := Open(path, schema)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	lo, hi := v.FindPK(zkey.U64(2))
	if lo != 1 || hi != 3 {
		t.Fatalf("expected range [1,3) for pk=2, got [%d,%d)", lo, hi)
	}

	lo, hi = v.FindPK(zkey.U64(4))
	if lo != hi {
		t.Fatalf("expected empty range for missing pk, got [%d,%d)", lo, hi)
	}
}

func TestOpenRejectsCorruptRegion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001.shard")
	schema := schemaFixture()

	rows := []Row{row(schema, 1, 10, "a", 1, 0)}
	if _, err := Write(path, schema, 1, rows); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a byte inside the column directory, which breaks the PK
	// region's recorded offset/size/checksum triple.
	if _, err := f.WriteAt([]byte{0xff}, HeaderSize); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := Open(path, schema); err != ErrCorruptShard {
		t.Fatalf("expected ErrCorruptShard, got %v", err)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001.shard")
	schema := schemaFixture()

	rows := []Row{row(schema, 1, 10, "a", 1, 0)}
	if _, err := Write(path, schema, 1, rows); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0, 0, 0, 0, 0, 0, 0, 0}, 0); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := Open(path, schema); err != ErrCorruptShard {
		t.Fatalf("expected ErrCorruptShard on bad magic, got %v", err)
	}
}

func TestWriteDedupsRepeatedLongStrings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001.shard")
	schema := schemaFixture()

	long := "this-string-is-definitely-longer-than-twelve-bytes"
	rows := []Row{
		row(schema, 1, 10, long, 1, 0),
		row(schema, 2, 20, long, 1, 1),
	}
	if _, err := Write(path, schema, 1, rows); err != nil {
		t.Fatal(err)
	}

	v, err := Open(path, schema)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	blob, err := v.Blob()
	if err != nil {
		t.Fatal(err)
	}
	if len(blob) != len(long) {
		t.Fatalf("expected deduped blob heap of length %d, got %d", len(long), len(blob))
	}
}
