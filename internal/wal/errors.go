package wal

import "github.com/cockroachdb/errors"

// ErrWALLocked is returned by Open when another process already holds the
// WAL's exclusive advisory lock (spec §7 WALLocked).
var ErrWALLocked = errors.New("zset: wal already locked by another writer")

// ErrCorruptWAL names a block whose body checksum fails to verify during
// replay (spec §7 CorruptWAL). Open does not return it: replay stops at
// such a block, truncates the file to the last valid block and returns the
// entries decoded up to that point.
var ErrCorruptWAL = errors.New("zset: corrupt wal block")

var errShortRecord = errors.New("zset: wal record shorter than its declared fields")
