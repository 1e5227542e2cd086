// Package tournament implements TournamentTree (spec §4.11): a min-heap of
// cursors, each positioned at the next (pk, payload) record of its shard,
// used by the compactor to drive an N-way merge without materializing the
// union of inputs.
//
// Grounded on the stdlib container/heap idiom (the spec names no existing
// merge-heap of its own to adapt; the teacher's N-way collapsing instead
// lives one level up in compactionIter, operating on an already-merged
// internal iterator rather than owning the heap itself).
package tournament

import (
	"container/heap"

	"github.com/gnitz-db/zset/internal/zkey"
)

// Cursor is one shard's (or the MemTable's) forward iterator over its
// (pk, payload, weight) records in ascending order. PK-type-specific
// throughput is achieved not by a separate Cursor implementation per
// PKKind but by zkey.PrimaryKey carrying its Kind, so zkey.Compare already
// dispatches to the right fixed-width compare without an interface
// indirection per comparison. Blob resolves any heap-referenced
// GermanString column in PayloadBytes, so payload order can be evaluated
// by content rather than by raw struct bytes.
type Cursor interface {
	PK() zkey.PrimaryKey
	PayloadBytes() []byte
	Blob() []byte
	Weight() int64
	// Next advances to the following record and reports whether one
	// exists. The cursor is exhausted once Next returns false.
	Next() (ok bool, err error)
}

type item struct {
	cursor Cursor
	slot   int
}

// Tree is a min-heap over N live cursors, ordered primary by PK, secondary
// by payload order (spec §4.11, spec §3 "lexicographic order of payload").
type Tree struct {
	items itemHeap
}

// New builds a Tree from cursors, each already positioned at its first
// record (or already exhausted, in which case it is simply excluded).
// schema defines the secondary (payload) order applied within a shared PK,
// the same zkey.PayloadCompare the MemTable's SkipList comparator uses, so
// a compacted shard's row order agrees with a directly-flushed one.
func New(schema *zkey.TableSchema, cursors []Cursor) *Tree {
	items := make([]item, 0, len(cursors))
	for i, c := range cursors {
		items = append(items, item{cursor: c, slot: i})
	}
	t := &Tree{items: itemHeap{schema: schema, items: items}}
	heap.Init(&t.items)
	return t
}

// Len reports how many cursors remain live.
func (t *Tree) Len() int { return len(t.items.items) }

// Peek returns the cursor currently at the minimum (pk, payload) without
// advancing it, and the slot index it was constructed with (spec §4.11
// peek → (cursor_id, pk)).
func (t *Tree) Peek() (c Cursor, slot int, ok bool) {
	if len(t.items.items) == 0 {
		return nil, 0, false
	}
	top := t.items.items[0]
	return top.cursor, top.slot, true
}

// Advance pops the minimum cursor, asks it to advance, and reinserts it if
// it still has records (spec §4.11 advance).
func (t *Tree) Advance() error {
	if len(t.items.items) == 0 {
		return nil
	}
	top := heap.Pop(&t.items).(item)
	ok, err := top.cursor.Next()
	if err != nil {
		return err
	}
	if ok {
		heap.Push(&t.items, top)
	}
	return nil
}

// itemHeap implements heap.Interface, ordering by PK primarily and by
// zkey.PayloadCompare (schema-aware, content-resolved) secondarily.
type itemHeap struct {
	schema *zkey.TableSchema
	items  []item
}

func (h itemHeap) Len() int { return len(h.items) }

func (h itemHeap) Less(i, j int) bool {
	a, b := h.items[i].cursor, h.items[j].cursor
	if c := zkey.Compare(a.PK(), b.PK()); c != 0 {
		return c < 0
	}
	aPayload := zkey.Payload(a.PayloadBytes())
	bPayload := zkey.Payload(b.PayloadBytes())
	return zkey.PayloadCompare(h.schema, aPayload, a.Blob(), bPayload, b.Blob()) < 0
}

func (h itemHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *itemHeap) Push(x any) {
	h.items = append(h.items, x.(item))
}

func (h *itemHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}
