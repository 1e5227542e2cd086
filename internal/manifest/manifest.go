package manifest

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/gnitz-db/zset/internal/checksum"
)

// FileName is the manifest's fixed on-disk name within a table directory
// (spec §6: `<table_dir>/MANIFNGT`).
const FileName = "MANIFNGT"

// Manifest is the catalog of every live shard across every table (spec
// §4.8). The zero value is a valid empty manifest.
type Manifest struct {
	GlobalMaxLSN uint64
	Entries      []Entry
}

// Fingerprint identifies a manifest file's identity and generation for
// change detection without re-reading its contents (spec §4.8
// "Concurrency": readers "detect change by comparing a stored (device,
// inode, mtime) tuple").
type Fingerprint struct {
	Device uint64
	Inode  uint64
	MTime  int64
}

// Load reads and validates a manifest file at path. A missing file is not
// an error: it returns an empty Manifest, the state of a freshly created
// table directory before its first flush.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, errors.Wrapf(err, "zset: reading manifest %s", path)
	}
	return decode(data)
}

func decode(data []byte) (*Manifest, error) {
	if len(data) < headerSize+8 {
		return nil, ErrCorruptManifest
	}
	magic := binary.LittleEndian.Uint64(data[0:8])
	if magic != Magic {
		return nil, ErrCorruptManifest
	}
	version := binary.LittleEndian.Uint64(data[8:16])
	if version != Version {
		return nil, ErrCorruptManifest
	}
	globalMaxLSN := binary.LittleEndian.Uint64(data[16:24])
	entryCount := binary.LittleEndian.Uint64(data[24:32])

	trailer := data[len(data)-8:]
	body := data[:len(data)-8]
	if checksum.XXH3(body) != binary.LittleEndian.Uint64(trailer) {
		return nil, ErrCorruptManifest
	}

	entries := make([]Entry, 0, entryCount)
	off := headerSize
	for i := uint64(0); i < entryCount; i++ {
		if off >= len(body) {
			return nil, ErrCorruptManifest
		}
		e, n, err := decodeEntry(body[off:])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		off += n
	}
	if off != len(body) {
		return nil, ErrCorruptManifest
	}
	return &Manifest{GlobalMaxLSN: globalMaxLSN, Entries: entries}, nil
}

// Encode serializes m into the on-disk manifest format (spec §4.8), ending
// with a trailing XXH3-64 over every preceding byte.
func (m *Manifest) Encode() []byte {
	size := headerSize
	for _, e := range m.Entries {
		size += e.encodedSize()
	}
	buf := make([]byte, size+8)

	binary.LittleEndian.PutUint64(buf[0:8], Magic)
	binary.LittleEndian.PutUint64(buf[8:16], Version)
	binary.LittleEndian.PutUint64(buf[16:24], m.GlobalMaxLSN)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(len(m.Entries)))

	off := headerSize
	for _, e := range m.Entries {
		off += e.encode(buf[off:])
	}
	sum := checksum.XXH3(buf[:off])
	binary.LittleEndian.PutUint64(buf[off:off+8], sum)
	return buf
}

// Save publishes m to path atomically: write `<path>.tmp`, fsync, rename
// over path, fsync the parent directory (spec §4.8 "Atomic update"),
// grounded on the same sequence internal/shard's publish uses for shard
// files.
func Save(path string, m *Manifest) error {
	buf := m.Encode()
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "zset: creating manifest tmp file %s", tmp)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return errors.Wrap(err, "zset: writing manifest tmp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "zset: fsyncing manifest tmp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "zset: closing manifest tmp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "zset: publishing manifest %s", path)
	}
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return errors.Wrap(err, "zset: opening manifest directory for fsync")
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return errors.Wrap(err, "zset: fsyncing manifest directory")
	}
	return nil
}

// Stat returns path's current Fingerprint, for a reader to detect a
// manifest change without re-parsing its contents.
func Stat(path string) (Fingerprint, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Fingerprint{}, errors.Wrapf(err, "zset: stat %s", path)
	}
	return Fingerprint{
		Device: uint64(st.Dev),
		Inode:  st.Ino,
		MTime:  st.Mtim.Sec,
	}, nil
}

// WithShards returns a copy of m with added appended and every entry whose
// Path is in removed excluded — the manifest transformation a flush (add
// one) or a compaction swap (remove inputs, add output) performs before
// calling Save (spec §4.6 step 7, §4.12 step 7).
func (m *Manifest) WithShards(removed []string, added []Entry, globalMaxLSN uint64) *Manifest {
	drop := make(map[string]bool, len(removed))
	for _, p := range removed {
		drop[p] = true
	}
	next := make([]Entry, 0, len(m.Entries)+len(added))
	for _, e := range m.Entries {
		if !drop[e.Path] {
			next = append(next, e)
		}
	}
	next = append(next, added...)
	return &Manifest{GlobalMaxLSN: globalMaxLSN, Entries: next}
}
