// Package zkey implements the physical key and row types shared across the
// storage core: PrimaryKey, TableSchema, GermanString, and RowPayload (spec
// §3). It plays the role the teacher's db package plays for InternalKey —
// a small vocabulary that every other package (memtable,
// wal, shard, compact) imports for comparisons — but is reshaped around a
// tagged PK variant plus a schema-driven row instead of a flat byte-string
// key.
package zkey

import "encoding/binary"

// PKKind distinguishes the two fixed-width primary key variants a table may
// declare (spec §3 PrimaryKey).
type PKKind uint8

const (
	PKU64 PKKind = iota
	PKU128
)

// Size returns the on-disk width of a primary key of this kind, in bytes.
func (k PKKind) Size() int {
	if k == PKU128 {
		return 16
	}
	return 8
}

// PrimaryKey is a register-sized key, either 64-bit or 128-bit unsigned.
// Equality and order are natural unsigned comparison (spec §3).
type PrimaryKey struct {
	Kind PKKind
	Hi   uint64 // high 64 bits; zero and unused for PKU64
	Lo   uint64 // low 64 bits, or the entire value for PKU64
}

// U64 constructs a 64-bit primary key.
func U64(v uint64) PrimaryKey {
	return PrimaryKey{Kind: PKU64, Lo: v}
}

// U128 constructs a 128-bit primary key from its high and low words.
func U128(hi, lo uint64) PrimaryKey {
	return PrimaryKey{Kind: PKU128, Hi: hi, Lo: lo}
}

// Compare returns -1, 0, or 1 per natural unsigned ordering. a and b must
// share the same Kind; a table's PK variant is fixed at schema registration
// time so this is an invariant violation, not a runtime input, if it ever
// fails.
func Compare(a, b PrimaryKey) int {
	if a.Kind != b.Kind {
		panic("zkey: primary key kind mismatch")
	}
	if a.Kind == PKU128 && a.Hi != b.Hi {
		if a.Hi < b.Hi {
			return -1
		}
		return 1
	}
	if a.Lo != b.Lo {
		if a.Lo < b.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// Size returns the encoded width of pk.
func (pk PrimaryKey) Size() int {
	return pk.Kind.Size()
}

// Encode writes the little-endian on-disk representation of pk into buf,
// which must be at least pk.Size() bytes.
func (pk PrimaryKey) Encode(buf []byte) {
	if pk.Kind == PKU128 {
		binary.LittleEndian.PutUint64(buf[0:8], pk.Lo)
		binary.LittleEndian.PutUint64(buf[8:16], pk.Hi)
		return
	}
	binary.LittleEndian.PutUint64(buf[0:8], pk.Lo)
}

// Decode reads a primary key of the given kind from buf.
func Decode(kind PKKind, buf []byte) PrimaryKey {
	if kind == PKU128 {
		return PrimaryKey{
			Kind: PKU128,
			Lo:   binary.LittleEndian.Uint64(buf[0:8]),
			Hi:   binary.LittleEndian.Uint64(buf[8:16]),
		}
	}
	return PrimaryKey{Kind: PKU64, Lo: binary.LittleEndian.Uint64(buf[0:8])}
}
