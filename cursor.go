package zset

import (
	"github.com/gnitz-db/zset/internal/memtable"
	"github.com/gnitz-db/zset/internal/shard"
	"github.com/gnitz-db/zset/internal/tournament"
	"github.com/gnitz-db/zset/internal/zkey"
)

// CursorRecord is one surviving (pk, payload, net_weight) triple yielded
// by Cursor (spec §6: "cursor(table) -> Cursor... yields (pk, payload,
// net_weight) where net_weight != 0").
type CursorRecord struct {
	PK     PrimaryKey
	Values []any
	Weight int64
}

// Cursor iterates a fixed snapshot of a table's merged Z-Set, captured at
// the moment Engine.Cursor was called (spec.md §9 Open Questions / the
// supplemental snapshot-read guarantee: a cursor sees a consistent prefix
// of upserts applied before it started and none applied after). It is not
// safe for concurrent use by multiple goroutines.
type Cursor struct {
	records []CursorRecord
	i       int
}

// Next advances the cursor and returns its new current record, or
// ok=false once every record has been yielded.
func (c *Cursor) Next() (CursorRecord, bool) {
	if c.i >= len(c.records) {
		return CursorRecord{}, false
	}
	r := c.records[c.i]
	c.i++
	return r, true
}

// Len returns the total number of records this snapshot holds.
func (c *Cursor) Len() int { return len(c.records) }

// memNodeCursor adapts a MemTable snapshot (already a materialized,
// ascending-ordered slice from MemTable.Cursor) into a tournament.Cursor.
type memNodeCursor struct {
	nodes []memtable.Node
	i     int
}

func (c *memNodeCursor) PK() zkey.PrimaryKey  { return c.nodes[c.i].PK }
func (c *memNodeCursor) PayloadBytes() []byte { return []byte(c.nodes[c.i].Payload) }
func (c *memNodeCursor) Weight() int64        { return c.nodes[c.i].Weight }
func (c *memNodeCursor) Blob() []byte         { return c.nodes[c.i].Blob }
func (c *memNodeCursor) Next() (bool, error) {
	c.i++
	return c.i < len(c.nodes), nil
}

// viewCursor adapts a shard.View into a tournament.Cursor, prefetching
// each position the same way internal/compact's shardCursor does, so every
// field the merge compares is resolved before the cursor enters the tree
// (checksums were already verified when the view was opened).
type viewCursor struct {
	view *shard.View
	i, n int

	pk      zkey.PrimaryKey
	payload zkey.Payload
	blob    []byte
	weight  int64
}

func newViewCursor(v *shard.View) (*viewCursor, error) {
	c := &viewCursor{view: v, n: v.Len()}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *viewCursor) load() error {
	pk, err := c.view.PKAt(c.i)
	if err != nil {
		return err
	}
	w, err := c.view.WeightAt(c.i)
	if err != nil {
		return err
	}
	p, err := c.view.PayloadAt(c.i)
	if err != nil {
		return err
	}
	b, err := c.view.Blob()
	if err != nil {
		return err
	}
	c.pk, c.weight, c.payload, c.blob = pk, w, p, b
	return nil
}

func (c *viewCursor) PK() zkey.PrimaryKey  { return c.pk }
func (c *viewCursor) PayloadBytes() []byte { return []byte(c.payload) }
func (c *viewCursor) Weight() int64        { return c.weight }
func (c *viewCursor) Blob() []byte         { return c.blob }
func (c *viewCursor) Next() (bool, error) {
	c.i++
	if c.i >= c.n {
		return false, nil
	}
	if err := c.load(); err != nil {
		return false, err
	}
	return true, nil
}

// mergedGroup holds the running weight total for one distinct payload
// seen under the PK currently being drained, the same shape
// internal/compact's drain uses for its merge.
type mergedGroup struct {
	payload zkey.Payload
	blob    []byte
	weight  int64
}

// snapshotMerge drains a tournament-tree merge over the MemTable's
// current nodes and every live shard view, grouping by full-row semantic
// equality within a shared PK and summing weights, discarding any group
// whose weight nets to zero (the Ghost property applies to reads the same
// way it applies to compaction output).
func snapshotMerge(schema *zkey.TableSchema, nodes []memtable.Node, views []*shard.View) ([]CursorRecord, error) {
	var cursors []tournament.Cursor
	if len(nodes) > 0 {
		cursors = append(cursors, &memNodeCursor{nodes: nodes})
	}
	for _, v := range views {
		if v.Len() == 0 {
			continue
		}
		c, err := newViewCursor(v)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, c)
	}

	tree := tournament.New(schema, cursors)
	var out []CursorRecord

	for tree.Len() > 0 {
		head, _, ok := tree.Peek()
		if !ok {
			break
		}
		pk := head.PK()

		var groups []mergedGroup
		for tree.Len() > 0 {
			c, _, ok := tree.Peek()
			if !ok {
				break
			}
			if zkey.Compare(c.PK(), pk) != 0 {
				break
			}
			payload := zkey.Payload(append([]byte(nil), c.PayloadBytes()...))
			blob := c.Blob()
			weight := c.Weight()

			matched := false
			for gi := range groups {
				if zkey.PayloadEqual(schema, groups[gi].payload, groups[gi].blob, payload, blob) {
					groups[gi].weight += weight
					matched = true
					break
				}
			}
			if !matched {
				groups = append(groups, mergedGroup{payload: payload, blob: blob, weight: weight})
			}

			if err := tree.Advance(); err != nil {
				return nil, err
			}
		}

		for _, g := range groups {
			if g.weight == 0 {
				continue
			}
			out = append(out, CursorRecord{
				PK:     pk,
				Values: zkey.DecodeRow(schema, g.payload, g.blob),
				Weight: g.weight,
			})
		}
	}

	return out, nil
}
