package buffer

import (
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Mapping pairs a shared, read-only memory mapping of a file with the
// Buffer view over it. It is the concrete backing for ShardView (spec
// §4.7): "Shard files are shared read-only via mmap (shared mapping)"
// (spec §5). Grounded on the raw unix.Mmap usage in the retrieved
// slotcache package, adapted here to a read-only, whole-file mapping since
// shards are immutable once published.
type Mapping struct {
	Buffer *Buffer
	data   []byte
}

// MapFile opens path read-only and maps its entire contents.
func MapFile(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "zset: open %s", path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "zset: stat %s", path)
	}
	size := fi.Size()
	if size == 0 {
		return &Mapping{Buffer: New(nil)}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "zset: mmap %s", path)
	}
	return &Mapping{Buffer: New(data), data: data}, nil
}

// Close unmaps the file. It is safe to call more than once; later calls
// return nil. It does not consult any reference count: the owning
// shard.View's Close calls it unconditionally.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
