package zkey

import "testing"

func schemaFixture() *TableSchema {
	return NewTableSchema(PKU64, -1, []ColumnDef{
		{Name: "a", Type: TypeI64},
		{Name: "s", Type: TypeString},
	})
}

func TestPrimaryKeyCompare(t *testing.T) {
	if Compare(U64(1), U64(2)) >= 0 {
		t.Fatal("1 should sort before 2")
	}
	if Compare(U128(0, 5), U128(0, 5)) != 0 {
		t.Fatal("equal u128 keys should compare equal")
	}
	if Compare(U128(1, 0), U128(0, 100)) <= 0 {
		t.Fatal("higher hi word should dominate ordering")
	}
}

func TestPrimaryKeyEncodeDecode(t *testing.T) {
	pk := U128(0xdeadbeef, 0x1234)
	buf := make([]byte, 16)
	pk.Encode(buf)
	got := Decode(PKU128, buf)
	if Compare(got, pk) != 0 {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, pk)
	}
}

func TestGermanStringInline(t *testing.T) {
	g := NewInline([]byte("hello"))
	if !g.IsInline() {
		t.Fatal("expected inline")
	}
	if string(Bytes(g, nil)) != "hello" {
		t.Fatalf("got %q", Bytes(g, nil))
	}
}

func TestGermanStringHeap(t *testing.T) {
	blob := []byte("0123456789abcdefThisIsALongString")
	s := blob[17:]
	g := NewHeap(s, 17)
	if g.IsInline() {
		t.Fatal("expected heap representation")
	}
	if string(Bytes(g, blob)) != string(s) {
		t.Fatalf("got %q want %q", Bytes(g, blob), s)
	}
}

func TestGermanStringEqualAcrossRepresentations(t *testing.T) {
	// Same logical short string content compared via two inline copies.
	a := NewInline([]byte("short"))
	b := NewInline([]byte("short"))
	if !Equal(a, nil, b, nil) {
		t.Fatal("identical inline strings should be equal")
	}

	// A long string stored inline-incompatible (heap) in one place and
	// identically in another heap, but at different offsets/blobs.
	blobA := []byte("xxxxxThisIsALongStringThatSpills")
	blobB := []byte("yyThisIsALongStringThatSpillsyyy")
	sA := blobA[5:]
	sB := blobB[2:]
	ga := NewHeap(sA, 5)
	gb := NewHeap(sB, 2)
	if !Equal(ga, blobA, gb, blobB) {
		t.Fatal("equal content stored in different heaps should be equal")
	}
}

func TestGermanStringLengthMismatchShortCircuits(t *testing.T) {
	a := NewInline([]byte("ab"))
	b := NewInline([]byte("abc"))
	if Equal(a, nil, b, nil) {
		t.Fatal("different lengths must not be equal")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	schema := schemaFixture()
	p := NewPayload(schema)
	p.SetI64(schema, 0, -42)
	p.SetString(schema, 1, NewInline([]byte("hi")))

	if got := p.GetI64(schema, 0); got != -42 {
		t.Fatalf("got %d", got)
	}
	if got := Bytes(p.GetString(schema, 1), nil); string(got) != "hi" {
		t.Fatalf("got %q", got)
	}
}

func TestPayloadEqualAndCompare(t *testing.T) {
	schema := schemaFixture()
	a := NewPayload(schema)
	a.SetI64(schema, 0, 1)
	a.SetString(schema, 1, NewInline([]byte("x")))

	b := NewPayload(schema)
	b.SetI64(schema, 0, 1)
	b.SetString(schema, 1, NewInline([]byte("x")))

	if !PayloadEqual(schema, a, nil, b, nil) {
		t.Fatal("identical payloads should be equal")
	}
	if PayloadCompare(schema, a, nil, b, nil) != 0 {
		t.Fatal("identical payloads should compare equal")
	}

	c := NewPayload(schema)
	c.SetI64(schema, 0, 2)
	c.SetString(schema, 1, NewInline([]byte("x")))
	if PayloadCompare(schema, a, nil, c, nil) >= 0 {
		t.Fatal("payload with smaller int column should sort first")
	}
}

func TestSchemaHashStable(t *testing.T) {
	s1 := schemaFixture()
	s2 := schemaFixture()
	if s1.Hash() != s2.Hash() {
		t.Fatal("identical schemas should hash identically")
	}
	s3 := NewTableSchema(PKU64, -1, []ColumnDef{{Name: "a", Type: TypeI32}})
	if s3.Hash() == s1.Hash() {
		t.Fatal("different schemas should not collide trivially")
	}
}
