package compact

import "github.com/cockroachdb/errors"

// ErrWritingFailed marks a failure in the Writing phase or earlier (spec
// §4.12 state machine): the job returns to Selected with every input shard
// untouched and still live.
var ErrWritingFailed = errors.New("zset: compaction writing phase failed")

// ErrSwapFailed marks a failure at or after the Swapping phase: the new
// shard was produced but the manifest could not be updated to reference
// it. Per spec §4.12 this is fatal at the engine-process level
// (corruption-grade), since the manifest's prior state and the freshly
// written shard may now disagree about which files are live.
var ErrSwapFailed = errors.New("zset: compaction manifest swap failed")
