package wal

import (
	"encoding/binary"

	"github.com/gnitz-db/zset/internal/checksum"
	"github.com/gnitz-db/zset/internal/zkey"
)

// HeaderSize is the fixed block header width (spec §4.5).
const HeaderSize = 32

// BlockHeader precedes every WAL block body.
type BlockHeader struct {
	LSN        uint64
	TableID    uint32
	EntryCount uint32
	BodyXXH3   uint64
	Reserved   uint64
}

func (h BlockHeader) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.LSN)
	binary.LittleEndian.PutUint32(buf[8:12], h.TableID)
	binary.LittleEndian.PutUint32(buf[12:16], h.EntryCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.BodyXXH3)
	binary.LittleEndian.PutUint64(buf[24:32], h.Reserved)
	return buf
}

func decodeHeader(buf []byte) BlockHeader {
	return BlockHeader{
		LSN:        binary.LittleEndian.Uint64(buf[0:8]),
		TableID:    binary.LittleEndian.Uint32(buf[8:12]),
		EntryCount: binary.LittleEndian.Uint32(buf[12:16]),
		BodyXXH3:   binary.LittleEndian.Uint64(buf[16:24]),
		Reserved:   binary.LittleEndian.Uint64(buf[24:32]),
	}
}

// Entry is one logical row contribution as handed to Append, before it is
// packed into a block body or applied to a MemTable. LSN is not part of
// the on-disk record: it is the owning block's LSN, attached by replay so
// a caller rebuilding a MemTable can record each node's max-observed LSN
// without tracking block boundaries itself.
type Entry struct {
	PK     zkey.PrimaryKey
	Values []any
	Weight int64
	LSN    uint64
}

// encodeRecord packs one Entry as
// [PK | weight(i64) | packed row payload | block-local string section],
// per spec §4.5. Long strings are written into a trailing section local to
// this record (immediately following its packed row, as the spec
// prescribes), each prefixed with a VarInt length; a GermanString's
// HeapOffset then addresses the byte immediately after that prefix, so
// replay can resolve content with the same zkey.Bytes helper used
// everywhere else without re-deriving offsets from the VarInt prefixes.
func encodeRecord(schema *zkey.TableSchema, e Entry) []byte {
	pkSize := schema.PKKind.Size()
	fixed := make([]byte, pkSize+8+schema.Stride())
	e.PK.Encode(fixed[0:pkSize])
	binary.LittleEndian.PutUint64(fixed[pkSize:pkSize+8], uint64(e.Weight))

	var section []byte
	payload, err := zkey.EncodeRow(schema, e.Values, func(s []byte) (uint64, error) {
		var lenBuf [checksum.MaxVarintLen]byte
		n := checksum.PutUvarint(lenBuf[:], uint64(len(s)))
		section = append(section, lenBuf[:n]...)
		contentOff := uint64(len(section))
		section = append(section, s...)
		return contentOff, nil
	})
	if err != nil {
		// blobAlloc above never errors; EncodeRow's error path is reserved
		// for a future caller that threads a failing allocator.
		panic(err)
	}
	copy(fixed[pkSize+8:], payload)
	return append(fixed, section...)
}

// decodeRecord is encodeRecord's inverse, returning the number of bytes of
// buf it consumed so callers can walk a block body record by record.
func decodeRecord(schema *zkey.TableSchema, buf []byte) (Entry, int, error) {
	pkSize := schema.PKKind.Size()
	stride := schema.Stride()
	if len(buf) < pkSize+8+stride {
		return Entry{}, 0, errShortRecord
	}
	pk := zkey.Decode(schema.PKKind, buf[0:pkSize])
	weight := int64(binary.LittleEndian.Uint64(buf[pkSize : pkSize+8]))
	payload := zkey.Payload(buf[pkSize+8 : pkSize+8+stride])

	sectionStart := pkSize + 8 + stride
	pos := sectionStart
	for i, c := range schema.Columns {
		if c.Type != zkey.TypeString {
			continue
		}
		g := payload.GetString(schema, i)
		if g.IsInline() {
			continue
		}
		if pos > len(buf) {
			return Entry{}, 0, errShortRecord
		}
		length, n := checksum.Uvarint(buf[pos:])
		if n <= 0 {
			return Entry{}, 0, errShortRecord
		}
		pos += n + int(length)
		if pos > len(buf) {
			return Entry{}, 0, errShortRecord
		}
	}

	heap := buf[sectionStart:pos]
	values := zkey.DecodeRow(schema, payload, heap)
	return Entry{PK: pk, Values: values, Weight: weight}, pos, nil
}
