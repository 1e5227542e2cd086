package zset

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/redact"
	"github.com/prometheus/client_golang/prometheus"
)

// TableMetrics holds per-table counters, directly modeled on the
// teacher's LevelMetrics: a running aggregate updated by Add, plus derived
// ratios (WriteAmp, ReadAmp) computed on read rather than stored.
type TableMetrics struct {
	// FlushCount is the number of MemTable-to-shard transmutations.
	FlushCount int64
	// CompactionCount is the number of completed compaction jobs.
	CompactionCount int64
	// ShardCount is the current number of live shards in the manifest.
	ShardCount int64
	// BytesIngested is the cumulative size of WAL blocks appended.
	BytesIngested uint64
	// BytesFlushed is the cumulative size of shards produced by flush.
	BytesFlushed uint64
	// BytesCompacted is the cumulative size of shards produced by
	// compaction (distinct from BytesFlushed the way the teacher
	// distinguishes TablesFlushed from TablesCompacted).
	BytesCompacted uint64
	// OverlapDepth is the ShardRegistry's current overlap depth, i.e.
	// this table's read amplification (spec §4.9).
	OverlapDepth int
}

// Add accumulates u's counters into m, leaving OverlapDepth and
// ShardCount (point-in-time gauges, not counters) untouched; callers
// refresh those separately from the live registry.
func (m *TableMetrics) Add(u *TableMetrics) {
	m.FlushCount += u.FlushCount
	m.CompactionCount += u.CompactionCount
	m.BytesIngested += u.BytesIngested
	m.BytesFlushed += u.BytesFlushed
	m.BytesCompacted += u.BytesCompacted
}

// WriteAmp is (BytesFlushed+BytesCompacted)/BytesIngested, the bytes
// written to shards per byte ingested through the WAL.
func (m *TableMetrics) WriteAmp() float64 {
	if m.BytesIngested == 0 {
		return 0
	}
	return float64(m.BytesFlushed+m.BytesCompacted) / float64(m.BytesIngested)
}

// ReadAmp is the current overlap depth: the worst-case number of shards
// a point lookup must consult for this table.
func (m *TableMetrics) ReadAmp() int {
	return m.OverlapDepth
}

func (m *TableMetrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("flushes=%d compactions=%d shards=%d write-amp=%.2f read-amp=%d",
		redact.Safe(m.FlushCount), redact.Safe(m.CompactionCount),
		redact.Safe(m.ShardCount), redact.Safe(m.WriteAmp()), redact.Safe(m.ReadAmp()))
}

func (m *TableMetrics) String() string {
	return redact.StringWithoutMarkers(m)
}

// Metrics aggregates TableMetrics across every table an Engine has
// opened, and exposes them as Prometheus collectors plus HdrHistogram
// latency tracking for WAL fsync and compaction duration.
type Metrics struct {
	mu     sync.Mutex
	tables map[string]*TableMetrics

	fsyncHist      *hdrhistogram.Histogram
	compactionHist *hdrhistogram.Histogram

	flushesTotal      prometheus.Counter
	compactionsTotal  prometheus.Counter
	bytesIngested     prometheus.Counter
	readAmpGauge      *prometheus.GaugeVec
	fsyncLatencyGauge prometheus.Gauge
}

// NewMetrics constructs an empty Metrics set with fresh Prometheus
// collectors and microsecond-resolution latency histograms covering
// 1us-10s, matching the range pebble's own latency tracking covers.
func NewMetrics() *Metrics {
	return &Metrics{
		tables:         make(map[string]*TableMetrics),
		fsyncHist:      hdrhistogram.New(1, 10_000_000, 3),
		compactionHist: hdrhistogram.New(1, 10_000_000, 3),
		flushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zset_flushes_total",
			Help: "Number of MemTable flushes to shard files.",
		}),
		compactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zset_compactions_total",
			Help: "Number of completed compaction jobs.",
		}),
		bytesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zset_bytes_ingested_total",
			Help: "Cumulative bytes appended to the WAL.",
		}),
		readAmpGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zset_read_amplification",
			Help: "Current shard overlap depth per table.",
		}, []string{"table"}),
		fsyncLatencyGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zset_wal_fsync_latency_p99_us",
			Help: "p99 WAL fsync latency in microseconds.",
		}),
	}
}

// table returns (creating if necessary) the named table's metrics.
func (m *Metrics) table(name string) *TableMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		t = &TableMetrics{}
		m.tables[name] = t
	}
	return t
}

// RecordFsync records one WAL-append fsync's latency and increments the
// ingested-byte counter.
func (m *Metrics) RecordFsync(d time.Duration, bytes int) {
	m.mu.Lock()
	_ = m.fsyncHist.RecordValue(d.Microseconds())
	m.fsyncLatencyGauge.Set(float64(m.fsyncHist.ValueAtQuantile(99)))
	m.mu.Unlock()
	m.bytesIngested.Add(float64(bytes))
}

// RecordFlush records one flush's output size against table.
func (m *Metrics) RecordFlush(table string, bytes uint64) {
	t := m.table(table)
	m.mu.Lock()
	t.FlushCount++
	t.BytesFlushed += bytes
	m.mu.Unlock()
	m.flushesTotal.Inc()
}

// RecordCompaction records one compaction's output size and duration
// against table.
func (m *Metrics) RecordCompaction(table string, bytes uint64, d time.Duration) {
	t := m.table(table)
	m.mu.Lock()
	t.CompactionCount++
	t.BytesCompacted += bytes
	_ = m.compactionHist.RecordValue(d.Microseconds())
	m.mu.Unlock()
	m.compactionsTotal.Inc()
}

// SetReadAmp updates table's current overlap depth and shard count gauges.
func (m *Metrics) SetReadAmp(table string, depth, shardCount int) {
	t := m.table(table)
	m.mu.Lock()
	t.OverlapDepth = depth
	t.ShardCount = int64(shardCount)
	m.mu.Unlock()
	m.readAmpGauge.WithLabelValues(table).Set(float64(depth))
}

// Table returns a snapshot copy of table's metrics.
func (m *Metrics) Table(table string) TableMetrics {
	t := m.table(table)
	m.mu.Lock()
	defer m.mu.Unlock()
	return *t
}

// Collectors returns every Prometheus collector this Metrics registers,
// for a caller to pass to prometheus.Registry.MustRegister.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.flushesTotal, m.compactionsTotal, m.bytesIngested,
		m.readAmpGauge, m.fsyncLatencyGauge,
	}
}

func (m *Metrics) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := ""
	for name, t := range m.tables {
		s += fmt.Sprintf("%s: %s\n", name, t.String())
	}
	return s
}
