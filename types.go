package zset

import "github.com/gnitz-db/zset/internal/zkey"

// The aliases below give external collaborators (spec §6: "VM, query
// compiler, sync server") a stable public vocabulary without reaching into
// internal/zkey directly, the same way the teacher's metrics.go re-exports
// internal types (CacheMetrics = cache.Metrics, FilterMetrics =
// sstable.FilterMetrics).
type (
	PrimaryKey  = zkey.PrimaryKey
	PKKind      = zkey.PKKind
	TableSchema = zkey.TableSchema
	ColumnDef   = zkey.ColumnDef
	ColumnType  = zkey.ColumnType
)

const (
	PKU64  = zkey.PKU64
	PKU128 = zkey.PKU128
)

const (
	TypeI8     = zkey.TypeI8
	TypeI16    = zkey.TypeI16
	TypeI32    = zkey.TypeI32
	TypeI64    = zkey.TypeI64
	TypeU8     = zkey.TypeU8
	TypeU16    = zkey.TypeU16
	TypeU32    = zkey.TypeU32
	TypeU64    = zkey.TypeU64
	TypeF32    = zkey.TypeF32
	TypeF64    = zkey.TypeF64
	TypeString = zkey.TypeString
)

// U64 constructs a 64-bit primary key.
func U64(v uint64) PrimaryKey { return zkey.U64(v) }

// U128 constructs a 128-bit primary key from its high and low words.
func U128(hi, lo uint64) PrimaryKey { return zkey.U128(hi, lo) }

// NewTableSchema declares a table's primary key variant and non-PK
// columns (spec §3 TableSchema). pkColumnIndex is -1 when the primary key
// is not also carried as a payload column.
func NewTableSchema(pkKind PKKind, pkColumnIndex int, columns []ColumnDef) *TableSchema {
	return zkey.NewTableSchema(pkKind, pkColumnIndex, columns)
}

// Record is one weighted Z-Set contribution, the unit ingest operates on
// (spec §4.13 ingest(batch)).
type Record struct {
	PK     PrimaryKey
	Values []any
	Weight int64
}

// Batch is one ingest call's unit of atomicity (spec §4.13: "Ingest fails
// atomically per batch").
type Batch []Record
