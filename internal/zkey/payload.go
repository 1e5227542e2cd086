package zkey

import (
	"encoding/binary"
	"math"

	"golang.org/x/exp/constraints"
)

// Payload is the packed representation of all non-PK columns of a row,
// laid out at the fixed per-column offsets TableSchema computes (spec §3
// RowPayload). Its length always equals the owning schema's Stride().
type Payload []byte

// NewPayload allocates a zeroed Payload sized for schema.
func NewPayload(schema *TableSchema) Payload {
	return make(Payload, schema.Stride())
}

func (p Payload) col(schema *TableSchema, i int) []byte {
	off := schema.ColumnOffset(i)
	return p[off : off+schema.Columns[i].Type.Size()]
}

// SetI64, SetU64, SetF64, etc. write a fixed-width column's value in place.
// Callers are expected to match the schema's declared type for column i;
// storage itself does not re-validate type tags per write (the Engine's
// per-value type check at ingest time is the single point of
// type-compatibility enforcement, per SchemaMismatch in spec §7).

func (p Payload) SetI8(schema *TableSchema, i int, v int8) { p.col(schema, i)[0] = byte(v) }
func (p Payload) SetU8(schema *TableSchema, i int, v uint8) { p.col(schema, i)[0] = v }

func (p Payload) SetI16(schema *TableSchema, i int, v int16) {
	binary.LittleEndian.PutUint16(p.col(schema, i), uint16(v))
}
func (p Payload) SetU16(schema *TableSchema, i int, v uint16) {
	binary.LittleEndian.PutUint16(p.col(schema, i), v)
}

func (p Payload) SetI32(schema *TableSchema, i int, v int32) {
	binary.LittleEndian.PutUint32(p.col(schema, i), uint32(v))
}
func (p Payload) SetU32(schema *TableSchema, i int, v uint32) {
	binary.LittleEndian.PutUint32(p.col(schema, i), v)
}

func (p Payload) SetI64(schema *TableSchema, i int, v int64) {
	binary.LittleEndian.PutUint64(p.col(schema, i), uint64(v))
}
func (p Payload) SetU64(schema *TableSchema, i int, v uint64) {
	binary.LittleEndian.PutUint64(p.col(schema, i), v)
}

func (p Payload) SetF32(schema *TableSchema, i int, v float32) {
	binary.LittleEndian.PutUint32(p.col(schema, i), math.Float32bits(v))
}
func (p Payload) SetF64(schema *TableSchema, i int, v float64) {
	binary.LittleEndian.PutUint64(p.col(schema, i), math.Float64bits(v))
}

// SetString stores a GermanString struct for column i. Callers decide
// inline vs. heap representation before calling (see NewInline/NewHeap).
func (p Payload) SetString(schema *TableSchema, i int, s GermanString) {
	copy(p.col(schema, i), s[:])
}

func (p Payload) GetI8(schema *TableSchema, i int) int8 { return int8(p.col(schema, i)[0]) }
func (p Payload) GetU8(schema *TableSchema, i int) uint8 { return p.col(schema, i)[0] }
func (p Payload) GetI16(schema *TableSchema, i int) int16 {
	return int16(binary.LittleEndian.Uint16(p.col(schema, i)))
}
func (p Payload) GetU16(schema *TableSchema, i int) uint16 {
	return binary.LittleEndian.Uint16(p.col(schema, i))
}
func (p Payload) GetI32(schema *TableSchema, i int) int32 {
	return int32(binary.LittleEndian.Uint32(p.col(schema, i)))
}
func (p Payload) GetU32(schema *TableSchema, i int) uint32 {
	return binary.LittleEndian.Uint32(p.col(schema, i))
}
func (p Payload) GetI64(schema *TableSchema, i int) int64 {
	return int64(binary.LittleEndian.Uint64(p.col(schema, i)))
}
func (p Payload) GetU64(schema *TableSchema, i int) uint64 {
	return binary.LittleEndian.Uint64(p.col(schema, i))
}
func (p Payload) GetF32(schema *TableSchema, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(p.col(schema, i)))
}
func (p Payload) GetF64(schema *TableSchema, i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(p.col(schema, i)))
}
func (p Payload) GetString(schema *TableSchema, i int) GermanString {
	var g GermanString
	copy(g[:], p.col(schema, i))
	return g
}

// EncodeRow packs values (one per schema column, in declaration order) into
// a freshly allocated Payload. Values must be the Go type matching their
// column's declared ColumnType (int8 for TypeI8, []byte for TypeString,
// etc); a mismatch panics, mirroring SetXxx's contract that type-tag
// enforcement happens once at schema registration, not per write.
//
// String values longer than MaxInline are handed to blobAlloc, which must
// copy the bytes somewhere stable (the blob arena) and return their offset;
// blobAlloc is nil-safe to call only when such a column is actually
// encountered.
func EncodeRow(schema *TableSchema, values []any, blobAlloc func([]byte) (uint64, error)) (Payload, error) {
	p := NewPayload(schema)
	for i, c := range schema.Columns {
		v := values[i]
		switch c.Type {
		case TypeI8:
			p.SetI8(schema, i, v.(int8))
		case TypeI16:
			p.SetI16(schema, i, v.(int16))
		case TypeI32:
			p.SetI32(schema, i, v.(int32))
		case TypeI64:
			p.SetI64(schema, i, v.(int64))
		case TypeU8:
			p.SetU8(schema, i, v.(uint8))
		case TypeU16:
			p.SetU16(schema, i, v.(uint16))
		case TypeU32:
			p.SetU32(schema, i, v.(uint32))
		case TypeU64:
			p.SetU64(schema, i, v.(uint64))
		case TypeF32:
			p.SetF32(schema, i, v.(float32))
		case TypeF64:
			p.SetF64(schema, i, v.(float64))
		case TypeString:
			s := v.([]byte)
			if len(s) <= MaxInline {
				p.SetString(schema, i, NewInline(s))
			} else {
				off, err := blobAlloc(s)
				if err != nil {
					return nil, err
				}
				p.SetString(schema, i, NewHeap(s, off))
			}
		default:
			panic("zkey: unknown column type")
		}
	}
	return p, nil
}

// DecodeRow is EncodeRow's inverse: it materializes one value per schema
// column (string columns as freshly copied []byte content, resolved
// against blob) for callers that need logical row values rather than the
// packed on-disk form — WAL replay and the Engine's merged cursor both
// round-trip through this instead of duplicating per-type decode switches.
func DecodeRow(schema *TableSchema, p Payload, blob []byte) []any {
	out := make([]any, len(schema.Columns))
	for i, c := range schema.Columns {
		switch c.Type {
		case TypeI8:
			out[i] = p.GetI8(schema, i)
		case TypeI16:
			out[i] = p.GetI16(schema, i)
		case TypeI32:
			out[i] = p.GetI32(schema, i)
		case TypeI64:
			out[i] = p.GetI64(schema, i)
		case TypeU8:
			out[i] = p.GetU8(schema, i)
		case TypeU16:
			out[i] = p.GetU16(schema, i)
		case TypeU32:
			out[i] = p.GetU32(schema, i)
		case TypeU64:
			out[i] = p.GetU64(schema, i)
		case TypeF32:
			out[i] = p.GetF32(schema, i)
		case TypeF64:
			out[i] = p.GetF64(schema, i)
		case TypeString:
			g := p.GetString(schema, i)
			out[i] = append([]byte(nil), Bytes(g, blob)...)
		default:
			panic("zkey: unknown column type")
		}
	}
	return out
}

// PayloadEqual implements "full-row semantic equality" (spec §4.4):
// fixed-width fields compare by raw bytes, string fields resolve blob
// references via the supplied blob accessors (which may differ between the
// two payloads, since the same logical string can live inline in one node
// and on the heap in another).
func PayloadEqual(schema *TableSchema, a Payload, blobA []byte, b Payload, blobB []byte) bool {
	for i, c := range schema.Columns {
		if c.Type == TypeString {
			if !Equal(a.GetString(schema, i), blobA, b.GetString(schema, i), blobB) {
				return false
			}
			continue
		}
		off := schema.ColumnOffset(i)
		n := c.Type.Size()
		if string(a[off:off+n]) != string(b[off:off+n]) {
			return false
		}
	}
	return true
}

// PayloadCompare defines the total order used for the MemTable's (pk,
// payload) key and for a shard's within-PK secondary sort (spec §3:
// "lexicographic order of payload"). Ordering is evaluated column-by-column
// in schema order using each column's natural value comparison (numeric
// columns by value, strings by resolved content) rather than by raw struct
// bytes, because a GermanString's raw bytes differ between an inline and a
// heap representation of the identical logical string — a byte-wise
// compare would not give a stable total order across differently-stored
// but equal-content rows.
func PayloadCompare(schema *TableSchema, a Payload, blobA []byte, b Payload, blobB []byte) int {
	for i, c := range schema.Columns {
		if cmp := compareColumn(schema, i, c.Type, a, blobA, b, blobB); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func compareColumn(schema *TableSchema, i int, t ColumnType, a Payload, blobA []byte, b Payload, blobB []byte) int {
	switch t {
	case TypeI8:
		return cmpInt(int64(a.GetI8(schema, i)), int64(b.GetI8(schema, i)))
	case TypeI16:
		return cmpInt(int64(a.GetI16(schema, i)), int64(b.GetI16(schema, i)))
	case TypeI32:
		return cmpInt(int64(a.GetI32(schema, i)), int64(b.GetI32(schema, i)))
	case TypeI64:
		return cmpInt(a.GetI64(schema, i), b.GetI64(schema, i))
	case TypeU8:
		return cmpUint(uint64(a.GetU8(schema, i)), uint64(b.GetU8(schema, i)))
	case TypeU16:
		return cmpUint(uint64(a.GetU16(schema, i)), uint64(b.GetU16(schema, i)))
	case TypeU32:
		return cmpUint(uint64(a.GetU32(schema, i)), uint64(b.GetU32(schema, i)))
	case TypeU64:
		return cmpUint(a.GetU64(schema, i), b.GetU64(schema, i))
	case TypeF32:
		return cmpFloat(float64(a.GetF32(schema, i)), float64(b.GetF32(schema, i)))
	case TypeF64:
		return cmpFloat(a.GetF64(schema, i), b.GetF64(schema, i))
	case TypeString:
		return Compare(a.GetString(schema, i), blobA, b.GetString(schema, i), blobB)
	default:
		panic("zkey: unknown column type")
	}
}

// cmpOrdered gives the int/uint column comparators a single generic
// implementation over constraints.Ordered rather than one hand-copied
// function per width.
func cmpOrdered[T constraints.Ordered](a, b T) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cmpInt(a, b int64) int  { return cmpOrdered(a, b) }
func cmpUint(a, b uint64) int { return cmpOrdered(a, b) }

// cmpFloat orders NaN bit patterns consistently with themselves but leaves
// cross-NaN ordering against spec's explicitly deferred NaN semantics
// (spec §9 Open Questions): unequal bit patterns simply compare unequal,
// with no claim to a total mathematical order.
func cmpFloat(a, b float64) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	// At least one of a, b is NaN. Order by bit pattern so Compare remains
	// a consistent (if not numerically meaningful) total order.
	return cmpUint(math.Float64bits(a), math.Float64bits(b))
}
