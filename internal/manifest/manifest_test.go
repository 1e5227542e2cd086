package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gnitz-db/zset/internal/zkey"
)

func entryFixture(tableID uint64, path string, min, max uint64) Entry {
	return Entry{
		TableID:    tableID,
		Path:       path,
		PKKind:     zkey.PKU64,
		MinPK:      zkey.U64(min),
		MaxPK:      zkey.U64(max),
		MinLSN:     0,
		MaxLSN:     10,
		SchemaHash: 0xabc,
	}
}

func TestLoadMissingFileReturnsEmptyManifest(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Entries) != 0 || m.GlobalMaxLSN != 0 {
		t.Fatalf("expected empty manifest, got %+v", m)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	m := &Manifest{
		GlobalMaxLSN: 42,
		Entries: []Entry{
			entryFixture(1, "shards/a.shard", 1, 100),
			entryFixture(1, "shards/b.shard", 101, 200),
		},
	}
	if err := Save(path, m); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.GlobalMaxLSN != 42 {
		t.Fatalf("expected global_max_lsn 42, got %d", loaded.GlobalMaxLSN)
	}
	if len(loaded.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded.Entries))
	}
	if loaded.Entries[1].Path != "shards/b.shard" {
		t.Fatalf("unexpected path %q", loaded.Entries[1].Path)
	}
	if zkey.Compare(loaded.Entries[0].MinPK, zkey.U64(1)) != 0 {
		t.Fatalf("unexpected min_pk %+v", loaded.Entries[0].MinPK)
	}
}

func TestWithShardsSwapsCompactionInputsForOutput(t *testing.T) {
	m := &Manifest{
		GlobalMaxLSN: 10,
		Entries: []Entry{
			entryFixture(1, "shards/a.shard", 1, 50),
			entryFixture(1, "shards/b.shard", 51, 100),
		},
	}
	next := m.WithShards(
		[]string{"shards/a.shard", "shards/b.shard"},
		[]Entry{entryFixture(1, "shards/c.shard", 1, 100)},
		10,
	)
	if len(next.Entries) != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", len(next.Entries))
	}
	if next.Entries[0].Path != "shards/c.shard" {
		t.Fatalf("unexpected surviving path %q", next.Entries[0].Path)
	}
	// Original manifest must be untouched.
	if len(m.Entries) != 2 {
		t.Fatalf("WithShards mutated the receiver's entries slice")
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	m := &Manifest{Entries: []Entry{entryFixture(1, "shards/a.shard", 1, 10)}}
	if err := Save(path, m); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0, 0, 0, 0}, 0); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := Load(path); err != ErrCorruptManifest {
		t.Fatalf("expected ErrCorruptManifest, got %v", err)
	}
}

func TestLoadRejectsBadTrailerChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	m := &Manifest{Entries: []Entry{entryFixture(1, "shards/a.shard", 1, 10)}}
	if err := Save(path, m); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0xff}, fi.Size()-1); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := Load(path); err != ErrCorruptManifest {
		t.Fatalf("expected ErrCorruptManifest, got %v", err)
	}
}

func TestStatFingerprintChangesAfterSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	m := &Manifest{Entries: []Entry{entryFixture(1, "shards/a.shard", 1, 10)}}
	if err := Save(path, m); err != nil {
		t.Fatal(err)
	}
	fp1, err := Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	m2 := m.WithShards(nil, []Entry{entryFixture(1, "shards/b.shard", 11, 20)}, 5)
	if err := Save(path, m2); err != nil {
		t.Fatal(err)
	}
	fp2, err := Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fp1 == fp2 {
		t.Fatalf("expected fingerprint to change after a second Save, got identical %+v", fp1)
	}
}
