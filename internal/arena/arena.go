// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package arena implements the bump-pointer monotonic allocator described in
// spec §4.1. It is the offset-based analogue of the retrieved
// arenaskl.Arena used by the teacher's memTable (see mem_table.go:
// "arena := arenaskl.NewArena(...)"): callers get back 32-bit offsets rather
// than pointers, so a node graph built inside an Arena is relocatable and
// never holds a live Go pointer into the slab.
package arena

import "github.com/cockroachdb/errors"

// Offset is a 32-bit cursor into an Arena's address space. The zero value,
// NullOffset, is a reserved sentinel and is never returned by Alloc.
type Offset uint32

// NullOffset is the reserved null sentinel; no valid allocation ever starts
// here.
const NullOffset Offset = 0

// ErrOutOfMemory is returned by Alloc when the arena's hard cap would be
// exceeded, or when a single allocation cannot fit within one slab.
var ErrOutOfMemory = errors.New("zset: arena out of memory")

// DefaultSlabSize is the default contiguous slab size (spec §2: "64 MB
// slabs").
const DefaultSlabSize = 64 << 20

// Arena is a bump-pointer allocator backed by one or more fixed-size slabs.
// It is not safe for concurrent use; callers (MemTable) serialize access.
type Arena struct {
	slabSize uint32
	maxBytes uint64 // 0 means unbounded
	slabs    [][]byte
	total    uint64 // bytes consumed across all slabs, including the offset-0 reservation and alignment padding
}

// New creates an Arena backed by slabs of slabSize bytes, capped at maxBytes
// total (0 for no cap). The first 8 bytes of the first slab are reserved so
// offset 0 is never a valid allocation.
func New(slabSize uint32, maxBytes uint64) *Arena {
	if slabSize == 0 {
		slabSize = DefaultSlabSize
	}
	a := &Arena{
		slabSize: slabSize,
		maxBytes: maxBytes,
		slabs:    [][]byte{make([]byte, slabSize)},
		total:    8,
	}
	return a
}

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// Alloc reserves size bytes aligned to align (8 or 16 per spec §4.1) and
// returns the offset of the first byte, or ErrOutOfMemory.
func (a *Arena) Alloc(size, align uint32) (Offset, error) {
	if align == 0 {
		align = 8
	}
	slabIdx := uint32(len(a.slabs) - 1)
	base := uint64(slabIdx) * uint64(a.slabSize)
	used := uint32(a.total - base)
	start := alignUp(used, align)

	if uint64(start)+uint64(size) > uint64(a.slabSize) {
		// Current slab is exhausted; chain a new one.
		if size > a.slabSize {
			return NullOffset, ErrOutOfMemory
		}
		if a.maxBytes != 0 && uint64(len(a.slabs)+1)*uint64(a.slabSize) > a.maxBytes {
			return NullOffset, ErrOutOfMemory
		}
		a.slabs = append(a.slabs, make([]byte, a.slabSize))
		slabIdx++
		base = uint64(slabIdx) * uint64(a.slabSize)
		start = 0
	}

	offset := base + uint64(start)
	a.total = offset + uint64(size)
	return Offset(offset), nil
}

// Reset releases all outstanding allocations in bulk, keeping the first slab
// for reuse.
func (a *Arena) Reset() {
	a.slabs = a.slabs[:1]
	a.total = 8
}

// Size returns the current bump-pointer total across all slabs (spec
// §4.4: MemTable.byte_occupancy sums this across its two arenas).
func (a *Arena) Size() uint64 {
	return a.total
}

// Cap returns the configured hard cap, or 0 if unbounded.
func (a *Arena) Cap() uint64 {
	return a.maxBytes
}

// Flat returns the arena's content as one contiguous slice. It only
// reflects reality when the arena never grew past its first slab (for
// example when New was called with slabSize == maxBytes); callers that
// rely on a flat byte-offset address space (the blob heap backing
// GermanString's HeapOffset) must configure the arena that way.
func (a *Arena) Flat() []byte {
	return a.slabs[0][:a.total]
}

func (a *Arena) bytes(off Offset, n uint32) []byte {
	slabIdx := uint32(off) / a.slabSize
	local := uint32(off) % a.slabSize
	return a.slabs[slabIdx][local : local+n]
}

// Read returns a slice view of n bytes starting at off. The slice aliases
// the arena's backing storage; callers must not retain it past a Reset.
func (a *Arena) Read(off Offset, n uint32) []byte {
	return a.bytes(off, n)
}

// Write copies data into the arena at off. The caller is responsible for
// having allocated at least len(data) bytes there.
func (a *Arena) Write(off Offset, data []byte) {
	copy(a.bytes(off, uint32(len(data))), data)
}

// PutUint32 and GetUint32 support the SkipList's next-pointer array, which
// is a sequence of 32-bit arena offsets (spec §4.4 node layout).
func (a *Arena) PutUint32(off Offset, v uint32) {
	b := a.bytes(off, 4)
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (a *Arena) GetUint32(off Offset) uint32 {
	b := a.bytes(off, 4)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (a *Arena) PutUint64(off Offset, v uint64) {
	b := a.bytes(off, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func (a *Arena) GetUint64(off Offset) uint64 {
	b := a.bytes(off, 8)
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func (a *Arena) PutInt64(off Offset, v int64) {
	a.PutUint64(off, uint64(v))
}

func (a *Arena) GetInt64(off Offset) int64 {
	return int64(a.GetUint64(off))
}
