// Command ingestlogs loads archived JSONL batches into Postgres. It is
// safe to run repeatedly and after crashes: rows deduplicate on
// (device_id, event_ts_ms) and handled files are moved aside.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hygrostat-cloud/internal/archive"
)

func main() {
	logger := log.New(os.Stdout, "[ingestlogs] ", log.LstdFlags|log.LUTC)

	root := flag.String("root", getenvDefault("ARCHIVE_ROOT", "logs"), "archive root directory")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "postgres connection string")
	flag.Parse()

	if *dsn == "" {
		logger.Fatal("DATABASE_URL or -dsn required")
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Fatalf("ping db: %v", err)
	}

	loader, err := archive.NewLoader(db, *root, logger)
	if err != nil {
		logger.Fatalf("new loader: %v", err)
	}

	summary, err := loader.LoadDir(ctx)
	if err != nil {
		logger.Fatalf("load: %v", err)
	}
	logger.Printf("done: loaded=%d failed=%d inserted=%d skipped=%d",
		summary.FilesLoaded, summary.FilesFailed, summary.RowsInserted, summary.RowsSkipped)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
