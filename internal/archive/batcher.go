package archive

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hygrostat-cloud/internal/observability/metrics"
)

const (
	// ProcessedDir holds files the loader has already ingested.
	ProcessedDir = "processed"
	// FailedDir holds files the loader could not ingest.
	FailedDir = "failed_files"

	defaultBatchSize  = 10
	defaultFlushEvery = time.Second
)

// Record is one archived reading, one JSON line per record.
type Record struct {
	DeviceID     string   `json:"device_id"`
	EventTsMs    int64    `json:"event_ts_ms"`
	Topic        string   `json:"topic,omitempty"`
	Temperature  *float64 `json:"temperature_c,omitempty"`
	Humidity     *float64 `json:"humidity_pct,omitempty"`
	ReceivedAtMs int64    `json:"received_at_ms,omitempty"`
}

// Batcher appends records to day-partitioned JSONL files under root,
// flushing on size or on a timer. File names are sequential per day;
// the sequence resumes past files already moved to processed/, so a
// restart never reuses a name.
type Batcher struct {
	root       string
	batchSize  int
	flushEvery time.Duration
	logger     *log.Logger
	queue      chan Record

	day     string
	counter int
	pending []Record
}

// BatcherOption customizes the batcher.
type BatcherOption func(*Batcher)

// WithBatchSize overrides the flush size.
func WithBatchSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithFlushInterval overrides the flush timer.
func WithFlushInterval(d time.Duration) BatcherOption {
	return func(b *Batcher) {
		if d > 0 {
			b.flushEvery = d
		}
	}
}

// NewBatcher constructs a batcher writing under root.
func NewBatcher(root string, logger *log.Logger, opts ...BatcherOption) (*Batcher, error) {
	if root == "" {
		return nil, errors.New("archive batch: empty root")
	}
	if logger == nil {
		logger = log.Default()
	}
	b := &Batcher{
		root:       root,
		batchSize:  defaultBatchSize,
		flushEvery: defaultFlushEvery,
		logger:     logger,
		queue:      make(chan Record, 1024),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Add enqueues one record. It never blocks the caller; when the queue
// is full the record is dropped and counted.
func (b *Batcher) Add(record Record) {
	select {
	case b.queue <- record:
		metrics.IncArchiveRecord()
	default:
		metrics.IncArchiveDropped()
	}
}

// Run drains the queue until the context is cancelled, then performs a
// final flush.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain()
			b.flush()
			return
		case record := <-b.queue:
			b.pending = append(b.pending, record)
			if len(b.pending) >= b.batchSize {
				b.flush()
			}
		case <-ticker.C:
			b.flush()
		}
	}
}

func (b *Batcher) drain() {
	for {
		select {
		case record := <-b.queue:
			b.pending = append(b.pending, record)
		default:
			return
		}
	}
}

func (b *Batcher) flush() {
	if len(b.pending) == 0 {
		return
	}
	path, err := b.nextFile(time.Now().UTC())
	if err != nil {
		metrics.IncArchiveFlush(metrics.ResultError)
		b.logger.Printf("archive batch: flush failed: %v", err)
		return
	}

	var buf strings.Builder
	for _, record := range b.pending {
		line, err := json.Marshal(record)
		if err != nil {
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		metrics.IncArchiveFlush(metrics.ResultError)
		b.logger.Printf("archive batch: flush failed: %v", err)
		return
	}
	metrics.IncArchiveFlush(metrics.ResultSuccess)
	b.pending = b.pending[:0]
	b.counter++
}

// nextFile returns the path for the next batch, rolling the directory
// and sequence over at midnight UTC.
func (b *Batcher) nextFile(now time.Time) (string, error) {
	day := now.Format("2006-01-02")
	dir := filepath.Join(b.root, day)
	if day != b.day {
		if err := os.MkdirAll(filepath.Join(dir, ProcessedDir), 0o755); err != nil {
			return "", err
		}
		b.day = day
		b.counter = nextSequence(dir)
	}
	return filepath.Join(dir, strconv.Itoa(b.counter)+".jsonl"), nil
}

// nextSequence finds the highest numeric file prefix in the day
// directory and its processed/ subdirectory.
func nextSequence(dir string) int {
	highest := -1
	for _, d := range []string{dir, filepath.Join(dir, ProcessedDir)} {
		entries, err := os.ReadDir(d)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasSuffix(name, ".jsonl") {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSuffix(name, ".jsonl"))
			if err != nil {
				continue
			}
			if n > highest {
				highest = n
			}
		}
	}
	return highest + 1
}
