package registry

import (
	"testing"

	"github.com/gnitz-db/zset/internal/zkey"
)

func TestShardsCoveringFindsOverlappingHandles(t *testing.T) {
	r := New()
	r.Reset(1, []Handle{
		{Path: "a", MinPK: zkey.U64(1), MaxPK: zkey.U64(10)},
		{Path: "b", MinPK: zkey.U64(5), MaxPK: zkey.U64(15)},
		{Path: "c", MinPK: zkey.U64(20), MaxPK: zkey.U64(30)},
	})

	covering := r.ShardsCovering(1, zkey.U64(7))
	if len(covering) != 2 {
		t.Fatalf("expected 2 shards covering pk=7, got %d", len(covering))
	}

	covering = r.ShardsCovering(1, zkey.U64(25))
	if len(covering) != 1 || covering[0].Path != "c" {
		t.Fatalf("expected only shard c to cover pk=25, got %+v", covering)
	}

	covering = r.ShardsCovering(1, zkey.U64(17))
	if len(covering) != 0 {
		t.Fatalf("expected no shard to cover pk=17 (gap), got %+v", covering)
	}
}

func TestOverlapDepthCountsConcurrentRanges(t *testing.T) {
	r := New()
	r.Reset(1, []Handle{
		{Path: "a", MinPK: zkey.U64(1), MaxPK: zkey.U64(10)},
		{Path: "b", MinPK: zkey.U64(2), MaxPK: zkey.U64(8)},
		{Path: "c", MinPK: zkey.U64(3), MaxPK: zkey.U64(6)},
	})
	if depth := r.OverlapDepth(1); depth != 3 {
		t.Fatalf("expected overlap depth 3, got %d", depth)
	}
}

func TestOverlapDepthDisjointRangesIsOne(t *testing.T) {
	r := New()
	r.Reset(1, []Handle{
		{Path: "a", MinPK: zkey.U64(1), MaxPK: zkey.U64(5)},
		{Path: "b", MinPK: zkey.U64(10), MaxPK: zkey.U64(15)},
	})
	if depth := r.OverlapDepth(1); depth != 1 {
		t.Fatalf("expected overlap depth 1 for disjoint ranges, got %d", depth)
	}
}

func TestCompactionCandidatesNilBelowThreshold(t *testing.T) {
	r := New()
	r.Reset(1, []Handle{
		{Path: "a", MinPK: zkey.U64(1), MaxPK: zkey.U64(5)},
		{Path: "b", MinPK: zkey.U64(3), MaxPK: zkey.U64(8)},
	})
	if c := r.CompactionCandidates(1); c != nil {
		t.Fatalf("expected nil candidates below threshold, got %+v", c)
	}
}

func TestCompactionCandidatesAboveThreshold(t *testing.T) {
	r := New()
	r.SetThreshold(1, 2)
	r.Reset(1, []Handle{
		{Path: "a", MinPK: zkey.U64(1), MaxPK: zkey.U64(10)},
		{Path: "b", MinPK: zkey.U64(2), MaxPK: zkey.U64(9)},
		{Path: "c", MinPK: zkey.U64(3), MaxPK: zkey.U64(8)},
	})
	candidates := r.CompactionCandidates(1)
	if len(candidates) != 3 {
		t.Fatalf("expected all 3 shards at max overlap, got %d", len(candidates))
	}
}

func TestJobKeyStableForSameCandidateSet(t *testing.T) {
	handles := []Handle{
		{Path: "a", MinPK: zkey.U64(1), MaxPK: zkey.U64(10)},
		{Path: "b", MinPK: zkey.U64(11), MaxPK: zkey.U64(20)},
	}
	k1 := JobKey(1, handles)
	k2 := JobKey(1, handles)
	if k1 != k2 {
		t.Fatalf("expected stable job key, got %q vs %q", k1, k2)
	}
	k3 := JobKey(2, handles)
	if k1 == k3 {
		t.Fatalf("expected different table ids to produce different job keys")
	}
}
