// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package buffer implements MappedBuffer (spec §4.2): a bounds-checked,
// immutable view over a raw byte range, typically backed by a memory
// mapping of a shard file. Every typed read validates against the
// underlying slice length before touching memory, the same discipline the
// teacher's db package applies around InternalKey decoding (db/internal.go:
// DecodeInternalKey bails out on a short slice rather than indexing past
// the end).
package buffer

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// ErrBounds is returned by any read that would fall outside [0, Size()).
var ErrBounds = errors.New("zset: buffer bounds violation")

// Buffer is an immutable, bounds-checked view over a byte range. The zero
// value is not usable; construct with New.
type Buffer struct {
	data []byte
}

// New wraps data (which may be a memory-mapped range) in a Buffer. The
// Buffer does not take ownership of data's lifetime; callers holding an
// mmap'd Buffer are responsible for keeping the mapping alive (the Engine
// and internal/compact pair each open shard.View with a RefCounter
// acquisition).
func New(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Size returns the total addressable length of the buffer.
func (b *Buffer) Size() int64 {
	return int64(len(b.data))
}

func (b *Buffer) check(off, n int64) error {
	if off < 0 || n < 0 || off+n > int64(len(b.data)) {
		return ErrBounds
	}
	return nil
}

// Slice returns a sub-view of len bytes starting at offset, or ErrBounds.
// The returned slice aliases the underlying buffer.
func (b *Buffer) Slice(offset, length int64) ([]byte, error) {
	if err := b.check(offset, length); err != nil {
		return nil, err
	}
	return b.data[offset : offset+length], nil
}

// Bytes returns the entire underlying slice. Used internally by callers
// that have already bounds-checked a region (e.g. the blob heap).
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) ReadU8(off int64) (uint8, error) {
	if err := b.check(off, 1); err != nil {
		return 0, err
	}
	return b.data[off], nil
}

func (b *Buffer) ReadI8(off int64) (int8, error) {
	v, err := b.ReadU8(off)
	return int8(v), err
}

func (b *Buffer) ReadU16(off int64) (uint16, error) {
	if err := b.check(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[off:]), nil
}

func (b *Buffer) ReadI16(off int64) (int16, error) {
	v, err := b.ReadU16(off)
	return int16(v), err
}

func (b *Buffer) ReadU32(off int64) (uint32, error) {
	if err := b.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[off:]), nil
}

func (b *Buffer) ReadI32(off int64) (int32, error) {
	v, err := b.ReadU32(off)
	return int32(v), err
}

func (b *Buffer) ReadU64(off int64) (uint64, error) {
	if err := b.check(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b.data[off:]), nil
}

func (b *Buffer) ReadI64(off int64) (int64, error) {
	v, err := b.ReadU64(off)
	return int64(v), err
}

func (b *Buffer) ReadF32(off int64) (float32, error) {
	v, err := b.ReadU32(off)
	return math.Float32frombits(v), err
}

func (b *Buffer) ReadF64(off int64) (float64, error) {
	v, err := b.ReadU64(off)
	return math.Float64frombits(v), err
}
