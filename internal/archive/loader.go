package archive

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hygrostat-cloud/internal/observability/metrics"
)

// StatusFile records the outcome of the last loader run.
const StatusFile = "upload_status.json"

// Summary reports one loader run.
type Summary struct {
	FilesLoaded  int       `json:"files_loaded"`
	FilesFailed  int       `json:"files_failed"`
	RowsInserted int64     `json:"rows_inserted"`
	RowsSkipped  int64     `json:"rows_skipped"`
	LastRun      time.Time `json:"last_run"`
}

// Loader ingests archived JSONL batches into Postgres. Duplicate rows
// are skipped on the (device_id, event_ts_ms) key, so re-loading a file
// after a crash is harmless. Loaded files move to processed/, broken
// ones to failed_files/; either way a run never touches the same file
// twice.
type Loader struct {
	db     *sql.DB
	root   string
	logger *log.Logger
}

// NewLoader constructs a loader over root.
func NewLoader(db *sql.DB, root string, logger *log.Logger) (*Loader, error) {
	if db == nil {
		return nil, errors.New("archive load: nil db")
	}
	if root == "" {
		return nil, errors.New("archive load: empty root")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{db: db, root: root, logger: logger}, nil
}

// LoadDir ingests every pending batch file under root.
func (l *Loader) LoadDir(ctx context.Context) (Summary, error) {
	files, err := l.pendingFiles()
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{LastRun: time.Now().UTC()}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		inserted, skipped, err := l.loadFile(ctx, path)
		if err != nil {
			summary.FilesFailed++
			metrics.IncLoaderFile(metrics.ResultError)
			l.logger.Printf("archive load: %s failed: %v", path, err)
			l.moveTo(path, FailedDir)
			l.appendLog(filepath.Dir(path), "failed.log", fmt.Sprintf("%s %v", filepath.Base(path), err))
			continue
		}
		summary.FilesLoaded++
		summary.RowsInserted += inserted
		summary.RowsSkipped += skipped
		metrics.IncLoaderFile(metrics.ResultSuccess)
		l.moveTo(path, ProcessedDir)
		l.appendLog(filepath.Dir(path), "success.log", fmt.Sprintf("%s inserted=%d skipped=%d", filepath.Base(path), inserted, skipped))
	}

	if err := l.writeStatus(summary); err != nil {
		l.logger.Printf("archive load: status write failed: %v", err)
	}
	return summary, nil
}

// pendingFiles lists batch files not yet processed, oldest day first.
func (l *Loader) pendingFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ProcessedDir, FailedDir:
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// loadFile inserts one file's records inside a single transaction.
func (l *Loader) loadFile(ctx context.Context, path string) (inserted, skipped int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return 0, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if record.DeviceID == "" || record.EventTsMs <= 0 {
			return 0, 0, fmt.Errorf("line %d: missing device_id or event_ts_ms", lineNo)
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO sensor_readings (device_id, event_ts_ms, topic, temperature_c, humidity_pct, received_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (device_id, event_ts_ms) DO NOTHING`,
			record.DeviceID, record.EventTsMs, record.Topic,
			record.Temperature, record.Humidity, receivedAt(record))
		if err != nil {
			return 0, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rows, _ := res.RowsAffected()
		inserted += rows
		skipped += 1 - rows
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return inserted, skipped, nil
}

func receivedAt(record Record) time.Time {
	if record.ReceivedAtMs > 0 {
		return time.UnixMilli(record.ReceivedAtMs).UTC()
	}
	return time.UnixMilli(record.EventTsMs).UTC()
}

func (l *Loader) moveTo(path, subdir string) {
	target := filepath.Join(filepath.Dir(path), subdir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		l.logger.Printf("archive load: mkdir %s failed: %v", target, err)
		return
	}
	if err := os.Rename(path, filepath.Join(target, filepath.Base(path))); err != nil {
		l.logger.Printf("archive load: move %s failed: %v", path, err)
	}
}

func (l *Loader) appendLog(dir, name, line string) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), line)
}

func (l *Loader) writeStatus(summary Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.root, StatusFile), data, 0o644)
}
