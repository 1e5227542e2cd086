package manifest

import "github.com/cockroachdb/errors"

// ErrCorruptManifest is returned when the magic, version, an entry
// checksum, or the trailing file checksum fails to verify (spec §7
// CorruptManifest).
var ErrCorruptManifest = errors.New("zset: corrupt manifest file")
