package zkey

import (
	"bytes"
	"encoding/binary"
)

// GermanString is the 16-byte hybrid string representation of spec §3: a
// 4-byte length, a 4-byte prefix that doubles as the first four bytes of
// the inline payload, and 8 trailing bytes that either complete a <=12-byte
// inline string or hold a 64-bit blob-heap offset. This is the on-disk and
// in-arena layout verbatim; there is no separate "decoded" struct.
type GermanString [16]byte

// MaxInline is the longest string length stored entirely within the
// 16-byte struct (4-byte prefix + 8 trailing bytes).
const MaxInline = 12

// Length returns the logical string length.
func (g GermanString) Length() uint32 {
	return binary.LittleEndian.Uint32(g[0:4])
}

// Prefix returns the 4-byte prefix used for O(1) inequality checks,
// NUL-padded when Length() < 4.
func (g GermanString) Prefix() []byte {
	return g[4:8]
}

// IsInline reports whether the full string is stored within the struct
// rather than referencing the blob heap.
func (g GermanString) IsInline() bool {
	return g.Length() <= MaxInline
}

// InlineBytes returns the string content for an inline GermanString. The
// caller must have checked IsInline.
func (g GermanString) InlineBytes() []byte {
	return g[4 : 4+g.Length()]
}

// HeapOffset returns the blob-heap offset for a non-inline GermanString.
// The caller must have checked !IsInline.
func (g GermanString) HeapOffset() uint64 {
	return binary.LittleEndian.Uint64(g[8:16])
}

// NewInline builds a GermanString for a payload of at most MaxInline bytes.
func NewInline(s []byte) GermanString {
	if len(s) > MaxInline {
		panic("zkey: string too long for NewInline")
	}
	var g GermanString
	binary.LittleEndian.PutUint32(g[0:4], uint32(len(s)))
	copy(g[4:4+len(s)], s)
	return g
}

// NewHeap builds a GermanString referencing a blob-heap offset for a
// payload longer than MaxInline bytes. s is only consulted for its length
// and its first 4 bytes (the prefix); the caller is responsible for having
// written s itself to the blob heap at offset.
func NewHeap(s []byte, offset uint64) GermanString {
	if len(s) <= MaxInline {
		panic("zkey: string should use NewInline")
	}
	var g GermanString
	binary.LittleEndian.PutUint32(g[0:4], uint32(len(s)))
	copy(g[4:8], s[:4])
	binary.LittleEndian.PutUint64(g[8:16], offset)
	return g
}

// Bytes materializes the full logical string content, resolving a heap
// reference against blob if necessary.
func Bytes(g GermanString, blob []byte) []byte {
	if g.IsInline() {
		return g.InlineBytes()
	}
	off := g.HeapOffset()
	n := uint64(g.Length())
	return blob[off : off+n]
}

// Equal implements the fast-path equality contract of spec §3: length
// mismatch and prefix mismatch are both decided in O(1) without touching
// the blob heap; only a length > 4 with matching prefix requires resolving
// and comparing full content, which may live inline in one operand and on
// the heap in the other.
func Equal(a GermanString, blobA []byte, b GermanString, blobB []byte) bool {
	if a.Length() != b.Length() {
		return false
	}
	if !bytes.Equal(a.Prefix(), b.Prefix()) {
		return false
	}
	if a.Length() <= 4 {
		return true // the prefix *is* the whole string
	}
	return bytes.Equal(Bytes(a, blobA), Bytes(b, blobB))
}

// Compare returns a lexicographic ordering of the two strings' full
// content, resolving blob references as needed. Unlike Equal, there is no
// safe O(1) short-circuit for ordering once the prefixes match, since a
// shorter prefix-matching string can still sort either side of a longer
// one.
func Compare(a GermanString, blobA []byte, b GermanString, blobB []byte) int {
	return bytes.Compare(Bytes(a, blobA), Bytes(b, blobB))
}
