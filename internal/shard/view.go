package shard

import (
	"sort"

	"github.com/gnitz-db/zset/internal/buffer"
	"github.com/gnitz-db/zset/internal/checksum"
	"github.com/gnitz-db/zset/internal/zkey"
)

// View is a read-only, memory-mapped handle onto one published shard file
// (spec §4.7). Open validates every spec §7 CorruptShard condition up
// front: magic, version, per-region checksums, 64-byte region alignment,
// no zero-weight row (the Ghost property never admits an annihilated row
// to rest, spec §4.7 "Ghost property enforcement"), and strictly ascending
// (pk, payload) order. Later per-row reads reuse the checksums Open already
// verified rather than recomputing them.
type View struct {
	mapping *buffer.Mapping
	buf     *buffer.Buffer
	schema  *zkey.TableSchema
	tableID uint64

	rowCount uint64
	metas    []ColumnMeta
	verified []bool
}

// Open memory-maps path and validates its header and eagerly-checked
// regions (spec §4.7 open contract).
func Open(path string, schema *zkey.TableSchema) (*View, error) {
	m, err := buffer.MapFile(path)
	if err != nil {
		return nil, err
	}
	buf := m.Buffer

	magic, err := buf.ReadU64(0)
	if err != nil || magic != Magic {
		m.Close()
		return nil, ErrCorruptShard
	}
	version, err := buf.ReadU64(8)
	if err != nil || version != Version {
		m.Close()
		return nil, ErrCorruptShard
	}
	rowCount, err := buf.ReadU64(16)
	if err != nil {
		m.Close()
		return nil, ErrCorruptShard
	}
	dirOffset, err := buf.ReadU64(24)
	if err != nil {
		m.Close()
		return nil, ErrCorruptShard
	}
	tableID, err := buf.ReadU64(32)
	if err != nil {
		m.Close()
		return nil, ErrCorruptShard
	}

	if dirOffset%Alignment != 0 {
		m.Close()
		return nil, ErrCorruptShard
	}

	count := regionCount(schema.NumColumns())
	metas := make([]ColumnMeta, count)
	for i := 0; i < count; i++ {
		entry, err := buf.Slice(int64(dirOffset)+int64(i*columnMetaSize), columnMetaSize)
		if err != nil {
			m.Close()
			return nil, ErrCorruptShard
		}
		metas[i] = decodeColumnMeta(entry)
		if metas[i].Offset%Alignment != 0 {
			m.Close()
			return nil, ErrCorruptShard
		}
	}

	v := &View{
		mapping:  m,
		buf:      buf,
		schema:   schema,
		tableID:  tableID,
		rowCount: rowCount,
		metas:    metas,
		verified: make([]bool, count),
	}

	if err := v.verifyRegion(pkRegionIndex); err != nil {
		m.Close()
		return nil, err
	}
	if err := v.verifyRegion(weightRegionIndex); err != nil {
		m.Close()
		return nil, err
	}
	if err := v.validateGhostAndOrder(); err != nil {
		m.Close()
		return nil, err
	}
	return v, nil
}

// validateGhostAndOrder scans every row once, rejecting a shard that
// admits a zero-weight row at rest (spec §4.7 Ghost property enforcement)
// or whose (pk, payload) order is not strictly ascending (spec §7
// CorruptShard "ordering violation"). Resolving each row's payload touches
// every column region and the blob heap, verifying their checksums as a
// side effect.
func (v *View) validateGhostAndOrder() error {
	n := int(v.rowCount)
	if n == 0 {
		return nil
	}
	var prevPK zkey.PrimaryKey
	var prevPayload zkey.Payload
	var prevBlob []byte
	for i := 0; i < n; i++ {
		w, err := v.WeightAt(i)
		if err != nil {
			return err
		}
		if w == 0 {
			return ErrCorruptShard
		}
		pk, err := v.PKAt(i)
		if err != nil {
			return err
		}
		payload, err := v.PayloadAt(i)
		if err != nil {
			return err
		}
		blob, err := v.Blob()
		if err != nil {
			return err
		}
		if i > 0 {
			if c := zkey.Compare(prevPK, pk); c > 0 {
				return ErrCorruptShard
			} else if c == 0 && zkey.PayloadCompare(v.schema, prevPayload, prevBlob, payload, blob) >= 0 {
				return ErrCorruptShard
			}
		}
		prevPK, prevPayload, prevBlob = pk, payload, blob
	}
	return nil
}

func (v *View) verifyRegion(i int) error {
	if v.verified[i] {
		return nil
	}
	meta := v.metas[i]
	data, err := v.buf.Slice(int64(meta.Offset), int64(meta.Size))
	if err != nil {
		return ErrCorruptShard
	}
	if checksum.XXH3(data) != meta.XXH3 {
		return ErrCorruptShard
	}
	v.verified[i] = true
	return nil
}

// Len returns the number of records in the shard.
func (v *View) Len() int { return int(v.rowCount) }

// TableID returns the table this shard belongs to.
func (v *View) TableID() uint64 { return v.tableID }

func (v *View) pkAtUnchecked(i int) zkey.PrimaryKey {
	pkSize := v.schema.PKKind.Size()
	meta := v.metas[pkRegionIndex]
	off := int64(meta.Offset) + int64(i)*int64(pkSize)
	return zkey.Decode(v.schema.PKKind, v.buf.Bytes()[off:off+int64(pkSize)])
}

// PKAt returns the primary key at row index i (spec §4.7 pk_at).
func (v *View) PKAt(i int) (zkey.PrimaryKey, error) {
	if i < 0 || i >= int(v.rowCount) {
		return zkey.PrimaryKey{}, buffer.ErrBounds
	}
	return v.pkAtUnchecked(i), nil
}

// WeightAt returns the weight at row index i without touching any column
// region or the blob heap (spec §4.7 weight_at).
func (v *View) WeightAt(i int) (int64, error) {
	if i < 0 || i >= int(v.rowCount) {
		return 0, buffer.ErrBounds
	}
	meta := v.metas[weightRegionIndex]
	data, err := v.buf.Slice(int64(meta.Offset)+int64(i)*8, 8)
	if err != nil {
		return 0, err
	}
	return int64(int64FromLE(data)), nil
}

func int64FromLE(b []byte) int64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return int64(v)
}

// MinPK returns the first (lowest) primary key in the shard.
func (v *View) MinPK() (zkey.PrimaryKey, error) {
	return v.PKAt(0)
}

// MaxPK returns the last (highest) primary key in the shard.
func (v *View) MaxPK() (zkey.PrimaryKey, error) {
	return v.PKAt(int(v.rowCount) - 1)
}

// FindPK returns the half-open index range [lo, hi) of records equal to
// pk, honoring multiset semantics (spec §4.7 find_pk).
func (v *View) FindPK(pk zkey.PrimaryKey) (lo, hi int) {
	n := int(v.rowCount)
	lo = sort.Search(n, func(i int) bool { return zkey.Compare(v.pkAtUnchecked(i), pk) >= 0 })
	hi = sort.Search(n, func(i int) bool { return zkey.Compare(v.pkAtUnchecked(i), pk) > 0 })
	return lo, hi
}

func (v *View) columnRegion(i int) ([]byte, error) {
	idx := columnRegionIndex(i)
	if err := v.verifyRegion(idx); err != nil {
		return nil, err
	}
	meta := v.metas[idx]
	return v.buf.Slice(int64(meta.Offset), int64(meta.Size))
}

// Blob returns the shard's blob heap, verifying its checksum on first
// access.
func (v *View) Blob() ([]byte, error) {
	idx := blobRegionIndex(v.schema.NumColumns())
	if err := v.verifyRegion(idx); err != nil {
		return nil, err
	}
	meta := v.metas[idx]
	return v.buf.Slice(int64(meta.Offset), int64(meta.Size))
}

// PayloadAt materializes the packed row payload at index i, reading each
// column region at its i*stride offset (spec §4.7 payload_at). String
// columns carry GermanString structs referencing this shard's own blob
// heap; resolve their content with zkey.Bytes against Blob().
func (v *View) PayloadAt(i int) (zkey.Payload, error) {
	if i < 0 || i >= int(v.rowCount) {
		return nil, buffer.ErrBounds
	}
	p := zkey.NewPayload(v.schema)
	for ci, c := range v.schema.Columns {
		size := c.Type.Size()
		region, err := v.columnRegion(ci)
		if err != nil {
			return nil, err
		}
		off := i * size
		if off+size > len(region) {
			return nil, buffer.ErrBounds
		}
		dstOff := v.schema.ColumnOffset(ci)
		copy(p[dstOff:dstOff+size], region[off:off+size])
	}
	return p, nil
}

// Close unmaps the shard file.
func (v *View) Close() error {
	return v.mapping.Close()
}
