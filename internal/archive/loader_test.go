package archive

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPendingFilesSkipsHandledDirectories(t *testing.T) {
	root := t.TempDir()
	day := filepath.Join(root, "2026-08-01")
	for _, dir := range []string{day, filepath.Join(day, ProcessedDir), filepath.Join(day, FailedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	for _, path := range []string{
		filepath.Join(day, "0.jsonl"),
		filepath.Join(day, "1.jsonl"),
		filepath.Join(day, ProcessedDir, "2.jsonl"),
		filepath.Join(day, FailedDir, "3.jsonl"),
		filepath.Join(day, "success.log"),
	} {
		if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	l := &Loader{root: root, logger: log.Default()}
	files, err := l.pendingFiles()
	if err != nil {
		t.Fatalf("pending files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 pending files, got %v", files)
	}
	if filepath.Base(files[0]) != "0.jsonl" || filepath.Base(files[1]) != "1.jsonl" {
		t.Fatalf("unexpected order %v", files)
	}
}

func TestMoveToRelocatesFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "0.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := &Loader{root: root, logger: log.Default()}
	l.moveTo(path, ProcessedDir)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected original file gone")
	}
	if _, err := os.Stat(filepath.Join(root, ProcessedDir, "0.jsonl")); err != nil {
		t.Fatalf("expected file relocated: %v", err)
	}
}

func TestWriteStatus(t *testing.T) {
	root := t.TempDir()
	l := &Loader{root: root, logger: log.Default()}
	summary := Summary{FilesLoaded: 3, RowsInserted: 27, RowsSkipped: 2, LastRun: time.Now().UTC()}
	if err := l.writeStatus(summary); err != nil {
		t.Fatalf("write status: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, StatusFile))
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	var got Summary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FilesLoaded != 3 || got.RowsInserted != 27 || got.RowsSkipped != 2 {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestReceivedAtFallsBackToEventTime(t *testing.T) {
	r := Record{EventTsMs: 1_754_049_600_000}
	if got := receivedAt(r); !got.Equal(time.UnixMilli(r.EventTsMs).UTC()) {
		t.Fatalf("unexpected receipt time %v", got)
	}
	r.ReceivedAtMs = 1_754_049_601_000
	if got := receivedAt(r); !got.Equal(time.UnixMilli(r.ReceivedAtMs).UTC()) {
		t.Fatalf("unexpected receipt time %v", got)
	}
}
