// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package skiplist implements the arena-backed skip list that underlies
// MemTable (spec §4.4). It is the generic sibling of the retrieved
// arenaskl package the teacher's memTable builds on
// (mem_table.go: "m.skl.Reset(arena, m.cmp)"): nodes live inside an
// internal/arena.Arena and are addressed by 32-bit offsets rather than
// pointers, so the whole structure can be relocated, reset, or discarded in
// bulk with the arena.
//
// Unlike arenaskl, this list is single-writer (spec §5: "Single writer...
// for: WAL, MemTable"), so it carries no atomics; callers serialize
// mutation and rely on the arena's monotonic bump-allocation (never
// in-place overwritten except for the fixed-size weight/LSN header fields)
// to let readers observe a consistent prefix concurrently with an
// in-progress insert.
package skiplist

import "github.com/gnitz-db/zset/internal/arena"

// MaxHeight bounds a node's tower height (spec §4.4: "max height 16").
const MaxHeight = 16

// headerSize is the fixed per-node prefix before the next-pointer array:
// 8 bytes weight, 1 byte height, 3 bytes padding (spec §4.4 node layout).
const headerSize = 12

// Compare orders two raw key byte slices. List treats keys as opaque; the
// owner (MemTable) decides what a key encodes and how it compares.
type Compare func(a, b []byte) int

// List is an arena-backed skip list of fixed-size opaque keys, each node
// additionally carrying an int64 "weight" header field used directly by
// MemTable for in-place weight coalescing (spec §4.4).
type List struct {
	arena   *arena.Arena
	cmp     Compare
	keySize uint32

	head   arena.Offset
	height int
	rng    uint64
}

// New creates an empty List backed by a (node) whose key region is exactly
// keySize bytes, compared with cmp. a is typically the MemTable's staging
// arena.
func New(a *arena.Arena, keySize uint32, cmp Compare) *List {
	l := &List{arena: a, cmp: cmp, keySize: keySize, height: 1, rng: 0x9e3779b97f4a7c15}
	head, err := l.allocNode(MaxHeight)
	if err != nil {
		// The head node is the very first allocation in a fresh arena; it
		// cannot fail unless the caller configured an arena too small to
		// hold even one node, which is a configuration error.
		panic(err)
	}
	l.head = head
	return l
}

func (l *List) nodeSize(height int) uint32 {
	return headerSize + 4*uint32(height) + l.keySize
}

func (l *List) allocNode(height int) (arena.Offset, error) {
	off, err := l.arena.Alloc(l.nodeSize(height), 8)
	if err != nil {
		return arena.NullOffset, err
	}
	l.arena.Write(off+8, []byte{byte(height), 0, 0, 0})
	return off, nil
}

// Weight returns the node's current weight.
func (l *List) Weight(n arena.Offset) int64 {
	return l.arena.GetInt64(n)
}

// SetWeight overwrites the node's weight in place.
func (l *List) SetWeight(n arena.Offset, w int64) {
	l.arena.PutInt64(n, w)
}

func (l *List) height(n arena.Offset) int {
	return int(l.arena.Read(n+8, 1)[0])
}

func (l *List) next(n arena.Offset, level int) arena.Offset {
	return arena.Offset(l.arena.GetUint32(n + arena.Offset(headerSize+4*level)))
}

func (l *List) setNext(n arena.Offset, level int, v arena.Offset) {
	l.arena.PutUint32(n+arena.Offset(headerSize+4*level), uint32(v))
}

// KeyBytes returns the node's key region. The returned slice aliases the
// backing arena; callers (MemTable) may mutate in-place fields embedded
// within it (e.g. a leading max-LSN field excluded from Compare) but must
// never change its length or touch the comparison-relevant bytes of an
// already-inserted node.
func (l *List) KeyBytes(n arena.Offset) []byte {
	h := l.height(n)
	koff := n + arena.Offset(headerSize+4*h)
	return l.arena.Read(koff, l.keySize)
}

func (l *List) randomHeight() int {
	h := 1
	for h < MaxHeight {
		l.rng = l.rng*6364136223846793005 + 1442695040888963407
		if l.rng&3 != 0 {
			break
		}
		h++
	}
	return h
}

// FindOrInsert returns the existing node whose key compares equal to key,
// or inserts a new node for key and returns it with created=true. err is
// non-nil only if the arena is exhausted while allocating a new node (in
// which case no structural change is made).
func (l *List) FindOrInsert(key []byte) (node arena.Offset, created bool, err error) {
	var prev, next [MaxHeight]arena.Offset
	cur := l.head
	for level := l.height - 1; level >= 0; level-- {
		for {
			nxt := l.next(cur, level)
			if nxt == arena.NullOffset || l.cmp(l.KeyBytes(nxt), key) >= 0 {
				break
			}
			cur = nxt
		}
		prev[level] = cur
		next[level] = l.next(cur, level)
	}

	if next[0] != arena.NullOffset && l.cmp(l.KeyBytes(next[0]), key) == 0 {
		return next[0], false, nil
	}

	height := l.randomHeight()
	if height > l.height {
		for lvl := l.height; lvl < height; lvl++ {
			prev[lvl] = l.head
			next[lvl] = arena.NullOffset
		}
		l.height = height
	}

	newNode, err := l.allocNode(height)
	if err != nil {
		return arena.NullOffset, false, err
	}
	koff := newNode + arena.Offset(headerSize+4*height)
	l.arena.Write(koff, key)
	for lvl := 0; lvl < height; lvl++ {
		l.setNext(newNode, lvl, next[lvl])
		l.setNext(prev[lvl], lvl, newNode)
	}
	return newNode, true, nil
}

// First returns the first node in ascending key order, or NullOffset if
// the list is empty.
func (l *List) First() arena.Offset {
	return l.next(l.head, 0)
}

// Next returns the node following n in ascending key order, collapsing all
// tower heights to level-0 traversal (spec §4.4 cursor_ascending), or
// NullOffset if n is the last node.
func (l *List) Next(n arena.Offset) arena.Offset {
	return l.next(n, 0)
}
