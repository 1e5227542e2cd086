package compact

import (
	"github.com/gnitz-db/zset/internal/shard"
	"github.com/gnitz-db/zset/internal/zkey"
)

// shardCursor adapts a shard.View into a tournament.Cursor, prefetching
// the head record's PK/weight/payload/blob on construction and after every
// advance so the merge loop never triggers a lazy column-region checksum
// verification mid-comparison (every field it reads is already resolved).
type shardCursor struct {
	view *shard.View
	i, n int

	pk      zkey.PrimaryKey
	payload zkey.Payload
	blob    []byte
	weight  int64
}

// newShardCursor positions a cursor at view's first record. view must have
// at least one record; callers filter out empty shards before calling.
func newShardCursor(view *shard.View) (*shardCursor, error) {
	c := &shardCursor{view: view, n: view.Len()}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *shardCursor) load() error {
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

func (c *shardCursor) PK() zkey.PrimaryKey  { return c.pk }
func (c *shardCursor) PayloadBytes() []byte { return []byte(c.payload) }
func (c *shardCursor) Weight() int64        { return c.weight }
func (c *shardCursor) Blob() []byte         { return c.blob }

func (c *shardCursor) Next() (bool, error) {
	c.i++
	if c.i >= c.n {
		return false, nil
	}
	if err := c.load(); err != nil {
		return false, err
	}
	return true, nil
}
