// Package refcount implements RefCounter (spec §4.10): a process-local
// table, keyed by canonical shard path, that defers unlinking a superseded
// shard file until every reader that mapped it has released its handle.
//
// Grounded on the teacher's own obsolete-file bookkeeping in
// `compaction_iter.go`/`metrics.go`-adjacent lifecycle pattern: a count is
// bumped at acquire time (mirroring a mmap open) and the physical removal
// only happens once the count drops to zero and a delete intent has been
// recorded, never eagerly at mark time.
package refcount

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

type entry struct {
	count  int
	delete bool
}

// Counter is a reference-counted shard registry, safe for concurrent use
// by multiple reader goroutines and the compactor.
type Counter struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New constructs an empty Counter.
func New() *Counter {
	return &Counter{entries: make(map[string]*entry)}
}

// Acquire increments path's reference count. Every mmap of a shard file
// (spec §5 "Shared resources") must Acquire before mapping and Release
// after unmapping.
func (c *Counter) Acquire(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		e = &entry{}
		c.entries[path] = e
	}
	e.count++
}

// Release decrements path's reference count. If the count reaches zero and
// MarkForDelete was previously called, the underlying file is unlinked and
// the entry is removed.
func (c *Counter) Release(path string) error {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		c.mu.Unlock()
		return errors.Newf("zset: release of untracked shard path %q", path)
	}
	e.count--
	if e.count < 0 {
		c.mu.Unlock()
		return errors.Newf("zset: refcount underflow for shard path %q", path)
	}
	shouldUnlink := e.count == 0 && e.delete
	if e.count == 0 {
		delete(c.entries, path)
	}
	c.mu.Unlock()

	if shouldUnlink {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "zset: unlinking superseded shard %s", path)
		}
	}
	return nil
}

// MarkForDelete records intent to remove path once its reference count
// reaches zero. If the count is already zero (no reader currently holds
// it), the file is unlinked immediately. Called by internal/compact once a
// manifest swap has made path's shard unreachable from any future open
// (spec §4.10, §4.12 step 9).
func (c *Counter) MarkForDelete(path string) error {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		c.mu.Unlock()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "zset: unlinking superseded shard %s", path)
		}
		return nil
	}
	e.delete = true
	shouldUnlink := e.count == 0
	if shouldUnlink {
		delete(c.entries, path)
	}
	c.mu.Unlock()

	if shouldUnlink {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "zset: unlinking superseded shard %s", path)
		}
	}
	return nil
}

// Count returns path's current reference count, for tests and metrics.
func (c *Counter) Count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		return e.count
	}
	return 0
}
