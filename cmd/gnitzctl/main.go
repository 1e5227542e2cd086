// Command gnitzctl is an operator CLI for inspecting an on-disk zset
// storage directory: manifests, shard headers, and per-table shard
// counts, without needing to open a live Engine.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gnitz-db/zset/internal/manifest"
	"github.com/gnitz-db/zset/internal/shard"
	"github.com/gnitz-db/zset/internal/zkey"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gnitzctl",
		Short: "Inspect a zset storage directory's manifests and shards",
	}
	root.AddCommand(newManifestCmd(), newShardCmd(), newStatsCmd())
	return root
}

func newManifestCmd() *cobra.Command {
	show := &cobra.Command{
		Use:   "show <table-dir>",
		Short: "Print a table's current manifest entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestShow(cmd.OutOrStdout(), args[0])
		},
	}
	manifestCmd := &cobra.Command{Use: "manifest", Short: "Manifest inspection"}
	manifestCmd.AddCommand(show)
	return manifestCmd
}

func runManifestShow(w io.Writer, tableDir string) error {
	path := filepath.Join(tableDir, manifest.FileName)
	m, err := manifest.Load(path)
	if err != nil {
		return fmt.Errorf("loading manifest %s: %w", path, err)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"path", "pk kind", "min pk", "max pk", "min lsn", "max lsn", "schema hash"})
	for _, e := range m.Entries {
		table.Append([]string{
			filepath.Base(e.Path),
			pkKindName(e.PKKind),
			formatPK(e.MinPK),
			formatPK(e.MaxPK),
			fmt.Sprintf("%d", e.MinLSN),
			fmt.Sprintf("%d", e.MaxLSN),
			fmt.Sprintf("%x", e.SchemaHash),
		})
	}
	table.Render()
	fmt.Fprintf(w, "global_max_lsn=%d shards=%d\n", m.GlobalMaxLSN, len(m.Entries))
	return nil
}

func pkKindName(k zkey.PKKind) string {
	if k == zkey.PKU128 {
		return "u128"
	}
	return "u64"
}

func formatPK(pk zkey.PrimaryKey) string {
	if pk.Kind == zkey.PKU128 {
		return fmt.Sprintf("%d:%d", pk.Hi, pk.Lo)
	}
	return fmt.Sprintf("%d", pk.Lo)
}

func newShardCmd() *cobra.Command {
	dump := &cobra.Command{
		Use:   "dump <shard-file>",
		Short: "Print a shard file's fixed header fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShardDump(cmd.OutOrStdout(), args[0])
		},
	}
	shardCmd := &cobra.Command{Use: "shard", Short: "Shard inspection"}
	shardCmd.AddCommand(dump)
	return shardCmd
}

// rawShardHeader is the subset of a shard's HeaderSize-byte header this
// tool cares about (spec §6): five little-endian u64 fields — magic,
// version, row count, directory offset, table ID — followed by reserved
// bytes. Reading it does not require the table's schema, unlike
// shard.Open, which needs the schema to interpret the column regions.
type rawShardHeader struct {
	Magic     uint64
	Version   uint64
	RowCount  uint64
	DirOffset uint64
	TableID   uint64
}

func readRawShardHeader(path string) (rawShardHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return rawShardHeader{}, err
	}
	defer f.Close()
	buf := make([]byte, shard.HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return rawShardHeader{}, fmt.Errorf("reading shard header: %w", err)
	}
	return rawShardHeader{
		Magic:     binary.LittleEndian.Uint64(buf[0:8]),
		Version:   binary.LittleEndian.Uint64(buf[8:16]),
		RowCount:  binary.LittleEndian.Uint64(buf[16:24]),
		DirOffset: binary.LittleEndian.Uint64(buf[24:32]),
		TableID:   binary.LittleEndian.Uint64(buf[32:40]),
	}, nil
}

func runShardDump(w io.Writer, path string) error {
	h, err := readRawShardHeader(path)
	if err != nil {
		return err
	}
	if h.Magic != shard.Magic {
		return fmt.Errorf("%s: not a shard file (magic=%#x)", path, h.Magic)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"version", fmt.Sprintf("%d", h.Version)})
	table.Append([]string{"table id", fmt.Sprintf("%d", h.TableID)})
	table.Append([]string{"row count", fmt.Sprintf("%d", h.RowCount)})
	table.Append([]string{"directory offset", fmt.Sprintf("%d", h.DirOffset)})
	table.Render()
	return nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <engine-dir>",
		Short: "Summarize shard counts across every table in an engine directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.OutOrStdout(), args[0])
		},
	}
}

func runStats(w io.Writer, engineDir string) error {
	entries, err := os.ReadDir(engineDir)
	if err != nil {
		return fmt.Errorf("reading engine directory: %w", err)
	}

	var shardCounts []float64
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"table", "shards", "global max lsn"})

	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		tableDir := filepath.Join(engineDir, de.Name())
		m, err := manifest.Load(filepath.Join(tableDir, manifest.FileName))
		if err != nil {
			continue
		}
		table.Append([]string{de.Name(), fmt.Sprintf("%d", len(m.Entries)), fmt.Sprintf("%d", m.GlobalMaxLSN)})
		shardCounts = append(shardCounts, float64(len(m.Entries)))
	}
	table.Render()

	if len(shardCounts) > 1 {
		graph := asciigraph.Plot(shardCounts, asciigraph.Height(8), asciigraph.Caption("shard count per table"))
		fmt.Fprintln(w, graph)
	}
	return nil
}
