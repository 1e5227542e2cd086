package buffer

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestReadRoundTrip(t *testing.T) {
	data := make([]byte, 32)
	binary.LittleEndian.PutUint64(data[0:8], 0xdeadbeefcafef00d)
	binary.LittleEndian.PutUint32(data[8:12], math.Float32bits(3.5))
	binary.LittleEndian.PutUint64(data[12:20], math.Float64bits(-2.25))
	data[20] = 0xff

	b := New(data)
	if b.Size() != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", b.Size(), len(data))
	}

	u64, err := b.ReadU64(0)
	if err != nil || u64 != 0xdeadbeefcafef00d {
		t.Fatalf("ReadU64 = %d, %v", u64, err)
	}
	f32, err := b.ReadF32(8)
	if err != nil || f32 != 3.5 {
		t.Fatalf("ReadF32 = %v, %v", f32, err)
	}
	f64, err := b.ReadF64(12)
	if err != nil || f64 != -2.25 {
		t.Fatalf("ReadF64 = %v, %v", f64, err)
	}
	i8, err := b.ReadI8(20)
	if err != nil || i8 != -1 {
		t.Fatalf("ReadI8 = %d, %v", i8, err)
	}
}

func TestBoundsViolations(t *testing.T) {
	b := New(make([]byte, 4))

	if _, err := b.ReadU64(0); !errors.Is(err, ErrBounds) {
		t.Fatalf("ReadU64 past end: got %v, want ErrBounds", err)
	}
	if _, err := b.ReadU32(1); !errors.Is(err, ErrBounds) {
		t.Fatalf("ReadU32 straddling end: got %v, want ErrBounds", err)
	}
	if _, err := b.Slice(-1, 2); !errors.Is(err, ErrBounds) {
		t.Fatalf("negative offset: got %v, want ErrBounds", err)
	}
	if _, err := b.Slice(2, -1); !errors.Is(err, ErrBounds) {
		t.Fatalf("negative length: got %v, want ErrBounds", err)
	}
	if _, err := b.ReadU32(4); !errors.Is(err, ErrBounds) {
		t.Fatalf("ReadU32 exactly at end: got %v, want ErrBounds", err)
	}

	s, err := b.Slice(0, 4)
	if err != nil || len(s) != 4 {
		t.Fatalf("full-length Slice: got %v, %v", s, err)
	}
}
