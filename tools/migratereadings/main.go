// Command migratereadings backfills sensor_readings from the legacy
// raw_messages table and refreshes the sensors registry. Rows without a
// resolvable device id or event timestamp are skipped; duplicates
// deduplicate on (device_id, event_ts_ms).
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const selectBatch = 1000

type rawMessage struct {
	Topic     sql.NullString
	Payload   sql.NullString
	DeviceID  sql.NullString
	EventTsMs sql.NullInt64
}

func main() {
	logger := log.New(os.Stdout, "[migratereadings] ", log.LstdFlags|log.LUTC)

	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "postgres connection string")
	limit := flag.Int("limit", 0, "max rows to migrate, 0 for all")
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

	total, err := migrate(ctx, db, *limit, logger)
	if err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	logger.Printf("done: migrated=%d", total)
}

func migrate(ctx context.Context, db *sql.DB, limit int, logger *log.Logger) (int64, error) {
	query := `
SELECT topic, payload, device_id, event_ts_ms
FROM raw_messages
WHERE event_ts_ms IS NOT NULL
ORDER BY event_ts_ms ASC`
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var (
		total   int64
		batch   []rawMessage
		flushed int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := migrateBatch(ctx, db, batch)
		if err != nil {
			return err
		}
		total += inserted
		flushed++
		logger.Printf("batch %d: candidates=%d inserted=%d total=%d", flushed, len(batch), inserted, total)
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		var msg rawMessage
		if err := rows.Scan(&msg.Topic, &msg.Payload, &msg.DeviceID, &msg.EventTsMs); err != nil {
			return total, err
		}
		batch = append(batch, msg)
		if len(batch) >= selectBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, err
	}
	return total, flush()
}

func migrateBatch(ctx context.Context, db *sql.DB, batch []rawMessage) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var inserted int64
	type span struct{ first, last int64 }
	seen := make(map[string]span)

	for _, msg := range batch {
		deviceID := resolveDeviceID(msg)
		if deviceID == "" || !msg.EventTsMs.Valid {
			continue
		}
		temp, hum := parsePayload(msg.Payload.String)
		res, err := tx.ExecContext(ctx, `
INSERT INTO sensor_readings (device_id, event_ts_ms, topic, temperature_c, humidity_pct, received_at)
VALUES ($1, $2, $3, $4, $5, to_timestamp($2::double precision / 1000))
ON CONFLICT (device_id, event_ts_ms) DO NOTHING`,
			deviceID, msg.EventTsMs.Int64, msg.Topic.String, temp, hum)
		if err != nil {
			return 0, err
		}
		rows, _ := res.RowsAffected()
		inserted += rows

		s, ok := seen[deviceID]
		if !ok {
			s = span{first: msg.EventTsMs.Int64, last: msg.EventTsMs.Int64}
		} else {
			if msg.EventTsMs.Int64 < s.first {
				s.first = msg.EventTsMs.Int64
			}
			if msg.EventTsMs.Int64 > s.last {
				s.last = msg.EventTsMs.Int64
			}
		}
		seen[deviceID] = s
	}

	for deviceID, s := range seen {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sensors (device_id, first_seen, last_seen)
VALUES ($1, to_timestamp($2::double precision / 1000), to_timestamp($3::double precision / 1000))
ON CONFLICT (device_id) DO UPDATE
SET first_seen = LEAST(COALESCE(sensors.first_seen, EXCLUDED.first_seen), EXCLUDED.first_seen),
    last_seen  = GREATEST(COALESCE(sensors.last_seen, EXCLUDED.last_seen), EXCLUDED.last_seen)`,
			deviceID, s.first, s.last); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// resolveDeviceID prefers the stored column, then payload identifier
// fields, then the trailing topic segment.
func resolveDeviceID(msg rawMessage) string {
	if msg.DeviceID.Valid && msg.DeviceID.String != "" {
		return msg.DeviceID.String
	}
	if msg.Payload.Valid {
		var obj map[string]any
		if err := json.Unmarshal([]byte(msg.Payload.String), &obj); err == nil {
			for _, key := range []string{"device_id", "id"} {
				if v, ok := obj[key].(string); ok && v != "" {
					return v
				}
			}
		}
	}
	topic := strings.TrimSpace(msg.Topic.String)
	if idx := strings.LastIndex(topic, "/"); idx >= 0 && idx+1 < len(topic) {
		return topic[idx+1:]
	}
	return topic
}

// parsePayload extracts temperature and humidity with tolerant keys; a
// value that cannot be parsed stays nil.
func parsePayload(payload string) (temp, hum *float64) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, nil
	}
	temp = lookupFloat(obj, "temperature", "temp", "t")
	hum = lookupFloat(obj, "humidity", "hum", "h")
	return temp, hum
}

func lookupFloat(obj map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			f := t
			return &f
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}
