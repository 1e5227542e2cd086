package zset

import (
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/require"
)

// TestMaybeCompactNoOpStability covers spec §4.13's "no-op if no
// candidates are found": calling MaybeCompact when the overlap depth has
// not crossed the configured threshold must leave the merged read view
// byte-for-byte identical.
func TestMaybeCompactNoOpStability(t *testing.T) {
	dir := t.TempDir()
	schema := i64Schema()

	e, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.OpenTable("t", schema))

	_, err = e.Ingest("t", Batch{{PK: U64(1), Values: []any{int64(10)}, Weight: 1}})
	require.NoError(t, err)
	require.NoError(t, e.Flush("t"))
	_, err = e.Ingest("t", Batch{{PK: U64(2), Values: []any{int64(20)}, Weight: 1}})
	require.NoError(t, err)
	require.NoError(t, e.Flush("t"))

	before := dumpCursor(t, e, "t")
	require.NoError(t, e.MaybeCompact("t"))
	after := dumpCursor(t, e, "t")

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	require.NoError(t, err)
	require.Empty(t, strings.TrimSpace(text), "MaybeCompact changed the merged view with no candidates present")
}
