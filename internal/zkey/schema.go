package zkey

import (
	"github.com/gnitz-db/zset/internal/checksum"
)

// ColumnType is one of the physical column type codes spec §3 enumerates:
// signed/unsigned integers of width 8/16/32/64, 32/64-bit floats, and the
// 16-byte German-string struct.
type ColumnType uint8

const (
	TypeI8 ColumnType = iota
	TypeI16
	TypeI32
	TypeI64
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeF32
	TypeF64
	TypeString
)

// Size returns the fixed on-disk width of a column of this type. String
// columns are always 16 bytes (the GermanString struct); long payloads
// spill into the blob heap, never widening the column region itself.
func (t ColumnType) Size() int {
	switch t {
	case TypeI8, TypeU8:
		return 1
	case TypeI16, TypeU16:
		return 2
	case TypeI32, TypeU32, TypeF32:
		return 4
	case TypeI64, TypeU64, TypeF64:
		return 8
	case TypeString:
		return 16
	default:
		panic("zkey: unknown column type")
	}
}

// ColumnDef names a single non-PK column.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// TableSchema is a table's immutable physical shape (spec §3 TableSchema):
// the PK variant, an ordered list of column definitions, and the index of
// the PK column within the logical row (kept for reference; the PK itself
// is stored out-of-line from RowPayload, which carries only non-PK
// columns).
type TableSchema struct {
	PKKind        PKKind
	Columns       []ColumnDef
	PKColumnIndex int

	offsets []int
	stride  int
	hash    uint64
}

// NewTableSchema computes and caches the derived layout (column offsets,
// row stride, schema hash) for schema registration. Offsets and strides are
// computed once and never recomputed, per spec §9's "keep column offsets
// and strides immutable after schema registration" design note.
func NewTableSchema(pkKind PKKind, pkColumnIndex int, columns []ColumnDef) *TableSchema {
	s := &TableSchema{
		PKKind:        pkKind,
		Columns:       columns,
		PKColumnIndex: pkColumnIndex,
		offsets:       make([]int, len(columns)),
	}
	off := 0
	for i, c := range columns {
		s.offsets[i] = off
		off += c.Type.Size()
	}
	s.stride = off
	s.hash = s.computeHash()
	return s
}

// Stride returns the fixed byte width of a packed RowPayload for this
// schema.
func (s *TableSchema) Stride() int {
	return s.stride
}

// ColumnOffset returns the byte offset of column i within a packed
// RowPayload.
func (s *TableSchema) ColumnOffset(i int) int {
	return s.offsets[i]
}

// NumColumns returns the number of non-PK columns.
func (s *TableSchema) NumColumns() int {
	return len(s.Columns)
}

func (s *TableSchema) computeHash() uint64 {
	buf := make([]byte, 0, 1+2*len(s.Columns))
	buf = append(buf, byte(s.PKKind))
	for _, c := range s.Columns {
		buf = append(buf, byte(c.Type))
	}
	return checksum.XXH3(buf)
}

// Hash returns the stable schema hash derived from the ordered type list
// (spec §3: "identifies binary compatibility"), recorded as the
// SchemaHash of every manifest entry the Engine writes. Ingest does not
// compare it: batches carry no schema hash.
func (s *TableSchema) Hash() uint64 {
	return s.hash
}
