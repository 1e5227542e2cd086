package arena

import "testing"

func TestAllocNeverReturnsNull(t *testing.T) {
	a := New(4096, 0)
	for i := 0; i < 100; i++ {
		off, err := a.Alloc(16, 8)
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		if off == NullOffset {
			t.Fatalf("alloc %d returned null offset", i)
		}
	}
}

func TestAllocAlignment(t *testing.T) {
	a := New(4096, 0)
	for _, align := range []uint32{8, 16} {
		off, err := a.Alloc(3, align)
		if err != nil {
			t.Fatalf("alloc: %v", err)
		}
		if uint32(off)%align != 0 {
			t.Fatalf("offset %d not aligned to %d", off, align)
		}
	}
}

func TestAllocOutOfMemory(t *testing.T) {
	a := New(64, 64)
	// A single allocation larger than a slab (and than the one-slab hard
	// cap) can never fit, so Alloc must fail rather than chain a slab.
	_, err := a.Alloc(200, 8)
	if err == nil {
		t.Fatal("expected ErrOutOfMemory for oversized allocation")
	}
}

func TestAllocChainsSlabs(t *testing.T) {
	a := New(64, 0)
	var last Offset
	for i := 0; i < 10; i++ {
		off, err := a.Alloc(32, 8)
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		last = off
	}
	if len(a.slabs) < 2 {
		t.Fatalf("expected multiple slabs, got %d", len(a.slabs))
	}
	_ = last
}

func TestReadWriteRoundTrip(t *testing.T) {
	a := New(4096, 0)
	off, err := a.Alloc(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	a.PutUint64(off, 0x0102030405060708)
	if got := a.GetUint64(off); got != 0x0102030405060708 {
		t.Fatalf("got %x", got)
	}
}

func TestReset(t *testing.T) {
	a := New(64, 0)
	for i := 0; i < 5; i++ {
		if _, err := a.Alloc(32, 8); err != nil {
			t.Fatal(err)
		}
	}
	a.Reset()
	if a.Size() != 8 {
		t.Fatalf("expected size 8 after reset, got %d", a.Size())
	}
	if len(a.slabs) != 1 {
		t.Fatalf("expected 1 slab after reset, got %d", len(a.slabs))
	}
}
