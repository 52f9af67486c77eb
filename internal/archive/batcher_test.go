package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		records = append(records, r)
	}
	return records
}

func TestBatcherFlushesOnSize(t *testing.T) {
	root := t.TempDir()
	b, err := NewBatcher(root, nil, WithBatchSize(2), WithFlushInterval(time.Hour))
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()

	for i := 0; i < 2; i++ {
		b.Add(Record{DeviceID: "easylog-01", EventTsMs: int64(1000 + i)})
	}

	day := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(root, day, "0.jsonl")
	deadline := time.After(3 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("batch file %s never appeared", path)
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()
	<-done

	records := readRecords(t, path)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].DeviceID != "easylog-01" || records[0].EventTsMs != 1000 {
		t.Fatalf("unexpected record %+v", records[0])
	}
}

func TestBatcherFinalFlushOnShutdown(t *testing.T) {
	root := t.TempDir()
	b, err := NewBatcher(root, nil, WithBatchSize(100), WithFlushInterval(time.Hour))
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()

	b.Add(Record{DeviceID: "sense-hat", EventTsMs: 42})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	day := time.Now().UTC().Format("2006-01-02")
	records := readRecords(t, filepath.Join(root, day, "0.jsonl"))
	if len(records) != 1 || records[0].DeviceID != "sense-hat" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestNextSequenceResumesPastProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ProcessedDir), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, path := range []string{
		filepath.Join(dir, "0.jsonl"),
		filepath.Join(dir, "1.jsonl"),
		filepath.Join(dir, ProcessedDir, "7.jsonl"),
		filepath.Join(dir, "notes.txt"),
	} {
		if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got := nextSequence(dir); got != 8 {
		t.Fatalf("expected sequence 8, got %d", got)
	}
}

func TestNextSequenceEmptyDir(t *testing.T) {
	if got := nextSequence(t.TempDir()); got != 0 {
		t.Fatalf("expected sequence 0, got %d", got)
	}
}
