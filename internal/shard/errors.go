package shard

import "github.com/cockroachdb/errors"

// ErrCorruptShard is returned when a shard's magic, version, region
// alignment, a region checksum, or a row invariant (non-zero weights,
// ascending order) fails to verify (spec §7 CorruptShard).
var ErrCorruptShard = errors.New("zset: corrupt shard file")

// ErrEmptyShard is returned by Write when every input row annihilated to
// zero weight; spec §4.6 step 2 prunes such rows, and a shard with zero
// surviving records has no PK range to publish a manifest entry for.
var ErrEmptyShard = errors.New("zset: refusing to write a shard with no surviving records")
