// Package compact implements the Compactor (spec §4.12): an N-way merge of
// a table's overlapping shards into one replacement shard, annihilating
// any (pk, payload) group whose weights sum to zero (the Ghost property).
//
// The forward-scan-and-collapse shape of drain (seek to the next distinct
// key, fold every record sharing it, then move on) is grounded on the
// teacher's compactionIter.mergeNext loop in compaction_iter.go, adapted
// from MVCC-style kind-based shadowing (PUT/DELETE/MERGE) to weight
// summation and semantic-equality grouping within a shared PK.
package compact

import (
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/gnitz-db/zset/internal/manifest"
	"github.com/gnitz-db/zset/internal/refcount"
	"github.com/gnitz-db/zset/internal/shard"
	"github.com/gnitz-db/zset/internal/tournament"
	"github.com/gnitz-db/zset/internal/zkey"
)

// State names a compaction job's position in spec §4.12's state machine.
type State int

const (
	Selected State = iota
	Writing
	Swapping
	Published
	Reclaiming
	Done
)

func (s State) String() string {
	switch s {
	case Selected:
		return "Selected"
	case Writing:
		return "Writing"
	case Swapping:
		return "Swapping"
	case Published:
		return "Published"
	case Reclaiming:
		return "Reclaiming"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Compactor runs compaction jobs for a table directory, deduplicating
// concurrent requests for the same input set via singleflight so two
// MaybeCompact calls racing on the same overlap don't double-merge it.
type Compactor struct {
	refs  *refcount.Counter
	group singleflight.Group
}

// New constructs a Compactor sharing refs with the Engine's readers, so
// acquisitions taken here are visible to (and block unlinking against) any
// other concurrent reader of the same shard paths.
func New(refs *refcount.Counter) *Compactor {
	return &Compactor{refs: refs}
}

// Job describes one compaction run's inputs (spec §4.12 "Input").
type Job struct {
	TableID      uint64
	Schema       *zkey.TableSchema
	ManifestPath string
	Current      *manifest.Manifest
	Inputs       []manifest.Entry
	OutputPath   string
}

// Result reports the job's final manifest state and terminal phase.
type Result struct {
	Manifest *manifest.Manifest
	State    State
}

// Run executes one compaction job end to end (spec §4.12 steps 1-9),
// deduplicated by input set so the same overlap is never merged twice
// concurrently.
func (co *Compactor) Run(job Job) (Result, error) {
	key := jobKey(job.TableID, job.Inputs)
	v, err, _ := co.group.Do(key, func() (any, error) {
		return co.run(job)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func jobKey(tableID uint64, inputs []manifest.Entry) string {
	paths := make([]string, len(inputs))
	for i, e := range inputs {
		paths[i] = e.Path
	}
	sort.Strings(paths)
	key := ""
	for _, p := range paths {
		key += p + "\x00"
	}
	return key
}

func (co *Compactor) run(job Job) (Result, error) {
	if len(job.Inputs) == 0 {
		return Result{}, errors.New("zset: compaction job with no input shards")
	}
	views := make([]*shard.View, 0, len(job.Inputs))
	acquired := make([]string, 0, len(job.Inputs))
	cleanup := func() {
		for _, v := range views {
			v.Close()
		}
		for _, p := range acquired {
			co.refs.Release(p)
		}
	}

	for _, e := range job.Inputs {
		co.refs.Acquire(e.Path)
		acquired = append(acquired, e.Path)
		v, err := shard.Open(e.Path, job.Schema)
		if err != nil {
			cleanup()
			return Result{State: Selected}, errors.Mark(errors.Wrapf(err, "zset: opening compaction input %s", e.Path), ErrWritingFailed)
		}
		views = append(views, v)
	}
	defer cleanup()

	rows, err := drain(job.Schema, views)
	if err != nil {
		return Result{State: Selected}, errors.Mark(errors.Wrap(err, "zset: draining compaction merge"), ErrWritingFailed)
	}

	minLSN, maxLSN := job.Inputs[0].MinLSN, job.Inputs[0].MaxLSN
	for _, e := range job.Inputs[1:] {
		if e.MinLSN < minLSN {
			minLSN = e.MinLSN
		}
		if e.MaxLSN > maxLSN {
			maxLSN = e.MaxLSN
		}
	}
	newGlobalMaxLSN := job.Current.GlobalMaxLSN
	if maxLSN > newGlobalMaxLSN {
		newGlobalMaxLSN = maxLSN
	}

	var added []manifest.Entry
	if len(rows) > 0 {
		res, err := shard.Write(job.OutputPath, job.Schema, job.TableID, rows)
		if err != nil {
			return Result{State: Selected}, errors.Mark(errors.Wrap(err, "zset: writing compaction output shard"), ErrWritingFailed)
		}
		added = append(added, manifest.Entry{
			TableID:    job.TableID,
			Path:       res.Path,
			PKKind:     job.Schema.PKKind,
			MinPK:      res.MinPK,
			MaxPK:      res.MaxPK,
			MinLSN:     minLSN,
			MaxLSN:     maxLSN,
			SchemaHash: job.Schema.Hash(),
		})
	}

	removed := make([]string, len(job.Inputs))
	for i, e := range job.Inputs {
		removed[i] = e.Path
	}
	next := job.Current.WithShards(removed, added, newGlobalMaxLSN)

	if err := manifest.Save(job.ManifestPath, next); err != nil {
		if len(added) > 0 {
			os.Remove(job.OutputPath)
		}
		return Result{State: Swapping}, errors.Mark(errors.Wrapf(err, "zset: swapping manifest %s", job.ManifestPath), ErrSwapFailed)
	}

	for _, e := range job.Inputs {
		if err := co.refs.MarkForDelete(e.Path); err != nil {
			return Result{Manifest: next, State: Reclaiming}, errors.Wrapf(err, "zset: marking %s for delete", e.Path)
		}
	}

	return Result{Manifest: next, State: Done}, nil
}

// group holds the representative row and running weight total for one
// distinct payload seen under the PK currently being drained (spec §4.12
// step 3: "group by full-row semantic equality of payload").
type group struct {
	payload zkey.Payload
	blob    []byte
	weight  int64
}

// drain runs the tournament-tree merge over every input view's cursor,
// grouping records sharing a PK by full-row semantic equality and summing
// their weights, discarding any group whose weight nets to zero (spec
// §4.12 steps 2-5, the Ghost property).
func drain(schema *zkey.TableSchema, views []*shard.View) ([]shard.Row, error) {
	var cursors []tournament.Cursor
	for _, v := range views {
		if v.Len() == 0 {
			continue
		}
		c, err := newShardCursor(v)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, c)
	}

	tree := tournament.New(schema, cursors)
	var rows []shard.Row

	for tree.Len() > 0 {
		headCursor, _, ok := tree.Peek()
		if !ok {
			break
		}
		pk := headCursor.PK()

		var groups []group
		for tree.Len() > 0 {
			c, _, ok := tree.Peek()
			if !ok {
				break
			}
			if zkey.Compare(c.PK(), pk) != 0 {
				break
			}
			payload := zkey.Payload(append([]byte(nil), c.PayloadBytes()...))
			blob := c.Blob()
			weight := c.Weight()

			matched := false
			for gi := range groups {
				if zkey.PayloadEqual(schema, groups[gi].payload, groups[gi].blob, payload, blob) {
					groups[gi].weight += weight
					matched = true
					break
				}
			}
			if !matched {
				groups = append(groups, group{payload: payload, blob: blob, weight: weight})
			}

			if err := tree.Advance(); err != nil {
				return nil, err
			}
		}

		for _, g := range groups {
			if g.weight == 0 {
				continue
			}
			rows = append(rows, shard.Row{
				PK:      pk,
				Payload: g.payload,
				Blob:    g.blob,
				Weight:  g.weight,
			})
		}
	}

	return rows, nil
}
