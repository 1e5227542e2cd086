package checksum

import (
	"math"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 127, 128, 255, 1 << 20, math.MaxUint64, math.MaxUint32}
	buf := make([]byte, MaxVarintLen)
	for _, v := range vals {
		n := PutUvarint(buf, v)
		got, m := Uvarint(buf[:n])
		if m != n {
			t.Fatalf("value %d: encoded %d bytes, decoded %d", v, n, m)
		}
		if got != v {
			t.Fatalf("value %d round-tripped as %d", v, got)
		}
	}
}

func TestXXH3Deterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	a := XXH3(data)
	b := XXH3(data)
	if a != b {
		t.Fatal("XXH3 not deterministic")
	}
	if XXH3([]byte("the quick brown fox jumps over the lazy cat")) == a {
		t.Fatal("XXH3 collided on trivially different input")
	}
}
