// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package checksum implements the integrity primitives shared by the WAL,
// shard, and manifest formats (spec §4.3): XXH3-64 checksums and VarInt
// length encoding. The checksum-then-write, check-then-read discipline here
// mirrors the retrieved chd.DBWriter.writeRecord (siphash over offset+value
// before the payload) and the teacher's sstable footer, which records a
// block.ChecksumType and dispatches on it when verifying a footer.
package checksum

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// XXH3 returns the 64-bit XXH3 hash of data, used for every region
// checksum in the shard format, every WAL block body, and every manifest
// entry/trailer (spec §3 Shard invariants, §6).
func XXH3(data []byte) uint64 {
	return xxh3.Hash(data)
}

// PutUvarint encodes x into buf using base-128 encoding with the
// continuation bit in each byte's most-significant bit (spec §4.3), and
// returns the number of bytes written. buf must have at least MaxVarintLen
// bytes available.
func PutUvarint(buf []byte, x uint64) int {
	return binary.PutUvarint(buf, x)
}

// Uvarint decodes a VarInt from the front of buf, returning the value and
// the number of bytes consumed, or n <= 0 on error (mirrors
// encoding/binary.Uvarint's contract).
func Uvarint(buf []byte) (uint64, int) {
	return binary.Uvarint(buf)
}

// MaxVarintLen is the largest number of bytes PutUvarint can emit for a
// 64-bit value.
const MaxVarintLen = binary.MaxVarintLen64
