// Package shard implements the immutable, columnar on-disk format
// described in spec §4.6–§4.7: ShardWriter transmutes a sealed MemTable's
// surviving rows into a self-contained file; ShardView maps that file
// read-only and serves O(1)/O(log n) access without eagerly materializing
// more than a query needs.
//
// The footer/magic/checksum shape (a fixed header, a directory of
// {offset, size, checksum} region descriptors, then the regions
// themselves) is grounded on the teacher's sstable footer
// (`sstable/table.go`: magic number, per-block checksum type, directory of
// block handles) and the retrieved dbwriter.go atomic-publish sequence
// (write `.tmp`, fsync, rename, fsync parent directory); the regions
// themselves (PK vector, weight vector, per-column arrays, blob heap) are
// spec.md §4.6's own layout, not present in either source.
package shard

import "encoding/binary"

// Magic identifies a shard file (spec §4.6).
const Magic uint64 = 0x31305F5A54494E47

// Version is the current shard format version (spec §4.6).
const Version uint64 = 2

// HeaderSize is the fixed header width: five u64 fields (magic, version,
// row_count, directory_offset, table_id) followed by 24 reserved bytes
// (spec §6). It is also the column directory's fixed start offset, since
// the header is itself a multiple of Alignment.
const HeaderSize = 64

// Alignment is the byte boundary every region (including the directory)
// starts on (spec §3 Shard invariants: "every region start is 64-byte
// aligned").
const Alignment = 64

// columnMetaSize is the encoded width of one ColumnMeta directory entry.
const columnMetaSize = 24

// ColumnMeta describes one region's placement and integrity checksum.
type ColumnMeta struct {
	Offset uint64
	Size   uint64
	XXH3   uint64
}

func (m ColumnMeta) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], m.Offset)
	binary.LittleEndian.PutUint64(buf[8:16], m.Size)
	binary.LittleEndian.PutUint64(buf[16:24], m.XXH3)
}

func decodeColumnMeta(buf []byte) ColumnMeta {
	return ColumnMeta{
		Offset: binary.LittleEndian.Uint64(buf[0:8]),
		Size:   binary.LittleEndian.Uint64(buf[8:16]),
		XXH3:   binary.LittleEndian.Uint64(buf[16:24]),
	}
}

func alignUp64(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// regionCount returns the number of directory entries for a schema with
// numColumns non-PK columns: PK, weight, one per column, blob heap (spec
// §4.6: "Number of entries = 2 + column_count + 1").
func regionCount(numColumns int) int {
	return 2 + numColumns + 1
}

const (
	pkRegionIndex     = 0
	weightRegionIndex = 1
)

func columnRegionIndex(i int) int { return 2 + i }
func blobRegionIndex(numColumns int) int {
	return 2 + numColumns
}
