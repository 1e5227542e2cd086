// Package manifest implements the binary shard catalog described in
// spec §4.8: a single small file (`MANIFNGT`) naming every live shard for
// every table, published with the same tmp-file/fsync/rename/fsync-parent
// sequence the teacher's dbwriter.go atomic-publish helper uses, and the
// shard writer (internal/shard) reuses verbatim.
package manifest

import (
	"encoding/binary"

	"github.com/gnitz-db/zset/internal/checksum"
	"github.com/gnitz-db/zset/internal/zkey"
)

// Magic identifies a manifest file (spec §4.8): the ASCII bytes of
// "MANIFNGT" read big-endian.
const Magic uint64 = 0x4D414E49464E4754

// Version is the current manifest format version.
const Version uint64 = 1

// headerSize is the fixed width of magic + version + global_max_lsn +
// entry_count, before any entry bytes.
const headerSize = 8 + 8 + 8 + 8

// Entry describes one live shard (spec §4.8 entry layout).
type Entry struct {
	TableID    uint64
	Path       string
	PKKind     zkey.PKKind
	MinPK      zkey.PrimaryKey
	MaxPK      zkey.PrimaryKey
	MinLSN     uint64
	MaxLSN     uint64
	SchemaHash uint64
}

// encodedSize returns the byte width of e's entry encoding, including its
// trailing per-entry checksum.
func (e Entry) encodedSize() int {
	pkSize := e.PKKind.Size()
	return 8 + 2 + len(e.Path) + 1 + 2*pkSize + 8 + 8 + 8 + 8
}

func (e Entry) encode(buf []byte) int {
	pkSize := e.PKKind.Size()
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], e.TableID)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(e.Path)))
	off += 2
	copy(buf[off:], e.Path)
	off += len(e.Path)
	buf[off] = byte(e.PKKind)
	off++
	e.MinPK.Encode(buf[off : off+pkSize])
	off += pkSize
	e.MaxPK.Encode(buf[off : off+pkSize])
	off += pkSize
	binary.LittleEndian.PutUint64(buf[off:], e.MinLSN)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], e.MaxLSN)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], e.SchemaHash)
	off += 8
	sum := checksum.XXH3(buf[:off])
	binary.LittleEndian.PutUint64(buf[off:], sum)
	off += 8
	return off
}

// decodeEntry reads one entry starting at the front of buf, returning the
// entry, the number of bytes consumed, and an error if its trailing
// checksum does not verify.
func decodeEntry(buf []byte) (Entry, int, error) {
	if len(buf) < 8+2 {
		return Entry{}, 0, ErrCorruptManifest
	}
	off := 0
	tableID := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	pathLen := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	if len(buf) < off+pathLen+1 {
		return Entry{}, 0, ErrCorruptManifest
	}
	path := string(buf[off : off+pathLen])
	off += pathLen
	kind := zkey.PKKind(buf[off])
	off++
	pkSize := kind.Size()
	if len(buf) < off+2*pkSize+8+8+8+8 {
		return Entry{}, 0, ErrCorruptManifest
	}
	minPK := zkey.Decode(kind, buf[off:off+pkSize])
	off += pkSize
	maxPK := zkey.Decode(kind, buf[off:off+pkSize])
	off += pkSize
	minLSN := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	maxLSN := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	schemaHash := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	wantSum := binary.LittleEndian.Uint64(buf[off:])
	entryEnd := off
	off += 8
	if checksum.XXH3(buf[:entryEnd]) != wantSum {
		return Entry{}, 0, ErrCorruptManifest
	}
	return Entry{
		TableID:    tableID,
		Path:       path,
		PKKind:     kind,
		MinPK:      minPK,
		MaxPK:      maxPK,
		MinLSN:     minLSN,
		MaxLSN:     maxLSN,
		SchemaHash: schemaHash,
	}, off, nil
}
