// Package memtable implements the ordered, mutable Z-Set staging area
// described in spec §4.4: a skip list over a dual-arena pair (one arena for
// nodes, primary keys, and fixed-width payload columns; a second for the
// blob heap backing long German strings) that coalesces weights for
// repeated (pk, payload) keys rather than appending new rows.
//
// The teacher's in-memory analogue is memTable wrapping arenaskl.Skiplist
// (mem_table.go); this package keeps that arena-and-skiplist shape but
// replaces the InternalKey/trailer comparator with a (PrimaryKey,
// RowPayload) comparator driven by a table's zkey.TableSchema, and adds
// weight coalescing in place of MVCC sequence-number shadowing.
package memtable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/gnitz-db/zset/internal/arena"
	"github.com/gnitz-db/zset/internal/skiplist"
	"github.com/gnitz-db/zset/internal/zkey"
)

// ErrWeightOverflow is returned when coalescing a weight delta into an
// existing node's weight would overflow int64 (spec §7 WeightOverflow).
var ErrWeightOverflow = errors.New("zset: weight overflow")

// lsnFieldSize is the leading field of every node's key region: the
// maximum LSN observed contributing to that node's current weight (spec
// §4.4: "Records the max LSN observed per node"). It is excluded from key
// comparison, so two upserts of the same (pk, payload) at different LSNs
// still coalesce into one node.
const lsnFieldSize = 8

// MemTable is a single table's mutable, ordered Z-Set staging area.
// It is not safe for concurrent mutation; the owning Engine serializes
// ingest per spec §5 ("Single writer... for: WAL, MemTable").
type MemTable struct {
	schema *zkey.TableSchema

	staging *arena.Arena // nodes: lsn, pk, payload
	blob    *arena.Arena // long-string backing bytes

	list *skiplist.List

	pkSize  int
	keySize uint32 // lsnFieldSize + pkSize + schema.Stride()

	count int
}

// Options configures the two arenas backing a MemTable.
type Options struct {
	StagingSlabBytes uint32
	StagingCapBytes  uint64

	// BlobBytes sizes the blob heap's single slab. The blob arena is
	// deliberately never allowed to chain a second slab (maxBytes ==
	// slabSize): GermanString's HeapOffset addresses the blob heap as one
	// flat byte space (spec §3), which is only sound while everything lives
	// in one contiguous allocation.
	BlobBytes uint32
}

// New creates an empty MemTable for schema.
func New(schema *zkey.TableSchema, opts Options) *MemTable {
	blobBytes := opts.BlobBytes
	if blobBytes == 0 {
		blobBytes = arena.DefaultSlabSize
	}
	m := &MemTable{
		schema:  schema,
		staging: arena.New(opts.StagingSlabBytes, opts.StagingCapBytes),
		blob:    arena.New(blobBytes, uint64(blobBytes)),
		pkSize:  schema.PKKind.Size(),
	}
	m.keySize = uint32(lsnFieldSize + m.pkSize + schema.Stride())
	m.list = skiplist.New(m.staging, m.keySize, m.compareKeys)
	return m
}

// compareKeys orders two node key regions by (pk, payload), ignoring the
// leading LSN field (spec §3: PK order, then payload order within PK).
func (m *MemTable) compareKeys(a, b []byte) int {
	a, b = a[lsnFieldSize:], b[lsnFieldSize:]
	pkA := zkey.Decode(m.schema.PKKind, a[:m.pkSize])
	pkB := zkey.Decode(m.schema.PKKind, b[:m.pkSize])
	if c := zkey.Compare(pkA, pkB); c != 0 {
		return c
	}
	payloadA := zkey.Payload(a[m.pkSize:])
	payloadB := zkey.Payload(b[m.pkSize:])
	return zkey.PayloadCompare(m.schema, payloadA, m.blob.Flat(), payloadB, m.blob.Flat())
}

// blobAlloc copies s into the blob arena and returns its offset, for use
// with zkey.EncodeRow.
func (m *MemTable) blobAlloc(s []byte) (uint64, error) {
	off, err := m.blob.Alloc(uint32(len(s)), 1)
	if err != nil {
		return 0, err
	}
	m.blob.Write(off, s)
	return uint64(off), nil
}

// Upsert applies a weighted row contribution (spec §4.4 upsert): if a node
// already exists for (pk, values), its weight is coalesced by addition;
// otherwise a new node is inserted with the given delta as its initial
// weight. lsn is recorded as the node's max-observed LSN if it is newer.
//
// net is the node's resulting weight after coalescing: a weight of exactly
// zero is retained here (the Ghost Property's annihilation happens when
// the MemTable is flushed, where shard.Write prunes zero-weight rows, not
// in the MemTable) so repeated read-then-cancel sequences stay correctly
// observable until the next flush.
func (m *MemTable) Upsert(pk zkey.PrimaryKey, values []any, delta int64, lsn uint64) (net int64, err error) {
	payload, err := zkey.EncodeRow(m.schema, values, m.blobAlloc)
	if err != nil {
		return 0, err
	}

	key := make([]byte, m.keySize)
	binary.LittleEndian.PutUint64(key[0:lsnFieldSize], lsn)
	pk.Encode(key[lsnFieldSize : lsnFieldSize+m.pkSize])
	copy(key[lsnFieldSize+m.pkSize:], payload)

	node, created, err := m.list.FindOrInsert(key)
	if err != nil {
		return 0, err
	}
	if created {
		m.list.SetWeight(node, delta)
		m.count++
		return delta, nil
	}

	cur := m.list.Weight(node)
	sum := cur + delta
	if (delta > 0 && sum < cur) || (delta < 0 && sum > cur) {
		return 0, errors.Wrapf(ErrWeightOverflow, "pk=%+v weight=%d delta=%d", pk, cur, delta)
	}
	m.list.SetWeight(node, sum)

	kb := m.list.KeyBytes(node)
	if existing := binary.LittleEndian.Uint64(kb[0:lsnFieldSize]); lsn > existing {
		binary.LittleEndian.PutUint64(kb[0:lsnFieldSize], lsn)
	}
	return sum, nil
}

// WeightOf returns the current coalesced weight for (pk, values), and
// whether any node exists for that key at all. The lookup payload's long
// strings are staged into a private scratch buffer rather than the live
// blob arena, since a read must not allocate; zkey.PayloadCompare's
// per-side blob parameters make comparing against a node's real blob
// straightforward even though the two sides resolve through different
// buffers.
func (m *MemTable) WeightOf(pk zkey.PrimaryKey, values []any) (weight int64, found bool, err error) {
	var scratchBlob []byte
	payload, err := zkey.EncodeRow(m.schema, values, func(s []byte) (uint64, error) {
		off := uint64(len(scratchBlob))
		scratchBlob = append(scratchBlob, s...)
		return off, nil
	})
	if err != nil {
		return 0, false, err
	}

	for n := m.list.First(); n != arena.NullOffset; n = m.list.Next(n) {
		kb := m.list.KeyBytes(n)
		nodePK := zkey.Decode(m.schema.PKKind, kb[lsnFieldSize:lsnFieldSize+m.pkSize])
		switch c := zkey.Compare(nodePK, pk); {
		case c < 0:
			continue
		case c > 0:
			return 0, false, nil
		}
		nodePayload := zkey.Payload(kb[lsnFieldSize+m.pkSize:])
		if zkey.PayloadCompare(m.schema, nodePayload, m.blob.Flat(), payload, scratchBlob) == 0 {
			return m.list.Weight(n), true, nil
		}
	}
	return 0, false, nil
}

// Node is a read-only view of one MemTable entry yielded by Cursor.
type Node struct {
	PK      zkey.PrimaryKey
	Payload zkey.Payload
	Blob    []byte
	Weight  int64
	MaxLSN  uint64
}

// Cursor returns all nodes in ascending (pk, payload) order (spec §4.4
// cursor_ascending), ready for WAL replay resumption, flush, or
// compaction merge input.
func (m *MemTable) Cursor() []Node {
	out := make([]Node, 0, m.count)
	blob := m.blob.Flat()
	for n := m.list.First(); n != arena.NullOffset; n = m.list.Next(n) {
		kb := m.list.KeyBytes(n)
		lsn := binary.LittleEndian.Uint64(kb[0:lsnFieldSize])
		pk := zkey.Decode(m.schema.PKKind, kb[lsnFieldSize:lsnFieldSize+m.pkSize])
		payload := zkey.Payload(kb[lsnFieldSize+m.pkSize:])
		out = append(out, Node{
			PK:      pk,
			Payload: payload,
			Blob:    blob,
			Weight:  m.list.Weight(n),
			MaxLSN:  lsn,
		})
	}
	return out
}

// ByteOccupancy sums bytes consumed across both arenas (spec §4.4
// byte_occupancy), the signal Engine uses to decide when to seal and flush.
func (m *MemTable) ByteOccupancy() uint64 {
	return m.staging.Size() + m.blob.Size()
}

// Count returns the number of distinct (pk, payload) nodes currently held.
func (m *MemTable) Count() int {
	return m.count
}

// Schema returns the table schema this MemTable was created for.
func (m *MemTable) Schema() *zkey.TableSchema {
	return m.schema
}
