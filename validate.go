package zset

import "github.com/cockroachdb/errors"

// validateValues checks that values has one entry per schema column and
// that each entry's dynamic Go type matches its column's declared
// ColumnType, mirroring the type-assertion switch zkey.EncodeRow performs
// internally. EncodeRow itself panics on a mismatch (its contract assumes
// the caller already enforced this once, at schema registration time);
// Ingest calls validateValues first so a malformed batch is rejected with
// ErrSchemaMismatch instead of crashing the engine (spec §7
// SchemaMismatch: "batch rejected; no state change").
func validateValues(schema *TableSchema, values []any) error {
	if len(values) != len(schema.Columns) {
		return errors.Wrapf(ErrSchemaMismatch, "expected %d column values, got %d", len(schema.Columns), len(values))
	}
	for i, c := range schema.Columns {
		v := values[i]
		ok := false
		switch c.Type {
		case TypeI8:
			_, ok = v.(int8)
		case TypeI16:
			_, ok = v.(int16)
		case TypeI32:
			_, ok = v.(int32)
		case TypeI64:
			_, ok = v.(int64)
		case TypeU8:
			_, ok = v.(uint8)
		case TypeU16:
			_, ok = v.(uint16)
		case TypeU32:
			_, ok = v.(uint32)
		case TypeU64:
			_, ok = v.(uint64)
		case TypeF32:
			_, ok = v.(float32)
		case TypeF64:
			_, ok = v.(float64)
		case TypeString:
			_, ok = v.([]byte)
		}
		if !ok {
			return errors.Wrapf(ErrSchemaMismatch, "column %q (%v): wrong value type %T", c.Name, c.Type, v)
		}
	}
	return nil
}
