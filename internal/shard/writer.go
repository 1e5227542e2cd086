package shard

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/gnitz-db/zset/internal/checksum"
	"github.com/gnitz-db/zset/internal/zkey"
)

// Row is one surviving Z-Set record handed to Write, already in ascending
// (pk, payload) order (spec §4.6 step 1: "level-0 linear scan of the
// SkipList"). Blob resolves any heap-referenced GermanString in Payload;
// it is typically a MemTable's blob arena, not this shard's own heap.
type Row struct {
	PK      zkey.PrimaryKey
	Payload zkey.Payload
	Blob    []byte
	Weight  int64
	LSN     uint64
}

// WriteResult summarizes the shard just published, with everything the
// caller (Engine) needs to build its manifest entry.
type WriteResult struct {
	Path           string
	RowCount       uint64
	MinPK, MaxPK   zkey.PrimaryKey
	MinLSN, MaxLSN uint64
}

// Write transmutes rows into a new shard file at path (spec §4.6). Rows
// with zero weight are pruned (annihilation); rows must already be sorted
// ascending by (pk, payload) and, within a source MemTable scan, already
// are. Long strings are re-encoded with content-addressed deduplication
// against this shard's own blob heap, since a source row's GermanString
// may reference a different (e.g. MemTable arena) heap entirely.
func Write(path string, schema *zkey.TableSchema, tableID uint64, rows []Row) (WriteResult, error) {
	survivors := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Weight != 0 {
			survivors = append(survivors, r)
		}
	}
	if len(survivors) == 0 {
		return WriteResult{}, ErrEmptyShard
	}
	n := len(survivors)
	pkSize := schema.PKKind.Size()
	numColumns := schema.NumColumns()

	pkRegion := make([]byte, pkSize*n)
	weightRegion := make([]byte, 8*n)
	columnRegions := make([][]byte, numColumns)
	for i, c := range schema.Columns {
		columnRegions[i] = make([]byte, c.Type.Size()*n)
	}

	var blob []byte
	dedup := make(map[string]uint64)
	minLSN, maxLSN := survivors[0].LSN, survivors[0].LSN

	for idx, r := range survivors {
		r.PK.Encode(pkRegion[idx*pkSize : (idx+1)*pkSize])
		binary.LittleEndian.PutUint64(weightRegion[idx*8:(idx+1)*8], uint64(r.Weight))
		if r.LSN < minLSN {
			minLSN = r.LSN
		}
		if r.LSN > maxLSN {
			maxLSN = r.LSN
		}

		for i, c := range schema.Columns {
			size := c.Type.Size()
			dst := columnRegions[i][idx*size : (idx+1)*size]
			if c.Type != zkey.TypeString {
				off := schema.ColumnOffset(i)
				copy(dst, r.Payload[off:off+size])
				continue
			}
			g := r.Payload.GetString(schema, i)
			if g.IsInline() {
				copy(dst, g[:])
				continue
			}
			content := zkey.Bytes(g, r.Blob)
			off, ok := dedup[string(content)]
			if !ok {
				off = uint64(len(blob))
				blob = append(blob, content...)
				dedup[string(content)] = off
			}
			ng := zkey.NewHeap(content, off)
			copy(dst, ng[:])
		}
	}

	regions := make([][]byte, 0, regionCount(numColumns))
	regions = append(regions, pkRegion, weightRegion)
	regions = append(regions, columnRegions...)
	regions = append(regions, blob)

	dirSize := len(regions) * columnMetaSize
	buf := make([]byte, 0, HeaderSize+dirSize+len(pkRegion)+len(weightRegion)+len(blob))
	buf = append(buf, make([]byte, HeaderSize)...)
	dirOffset := len(buf)
	buf = append(buf, make([]byte, dirSize)...)

	metas := make([]ColumnMeta, 0, len(regions))
	for _, region := range regions {
		for len(buf)%Alignment != 0 {
			buf = append(buf, 0)
		}
		off := uint64(len(buf))
		buf = append(buf, region...)
		metas = append(metas, ColumnMeta{Offset: off, Size: uint64(len(region)), XXH3: checksum.XXH3(region)})
	}

	dirBuf := buf[dirOffset : dirOffset+dirSize]
	for i, m := range metas {
		m.encode(dirBuf[i*columnMetaSize : (i+1)*columnMetaSize])
	}

	binary.LittleEndian.PutUint64(buf[0:8], Magic)
	binary.LittleEndian.PutUint64(buf[8:16], Version)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(n))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(dirOffset))
	binary.LittleEndian.PutUint64(buf[32:40], tableID)

	if err := publish(path, buf); err != nil {
		return WriteResult{}, err
	}

	return WriteResult{
		Path:   path,
		RowCount: uint64(n),
		MinPK:  survivors[0].PK,
		MaxPK:  survivors[n-1].PK,
		MinLSN: minLSN,
		MaxLSN: maxLSN,
	}, nil
}

// publish writes buf to path via the tmp-file, fsync, rename, fsync-parent
// sequence (spec §4.6 step 6), grounded on dbwriter.go's atomic-publish
// pattern.
func publish(path string, buf []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "zset: creating shard tmp file %s", tmp)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return errors.Wrap(err, "zset: writing shard tmp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "zset: fsyncing shard tmp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "zset: closing shard tmp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "zset: publishing shard %s", path)
	}
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return errors.Wrap(err, "zset: opening shard directory for fsync")
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return errors.Wrap(err, "zset: fsyncing shard directory")
	}
	return nil
}
