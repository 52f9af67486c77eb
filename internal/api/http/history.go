package apihttp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultHistoryLimit = 1000
	maxHistoryLimit     = 10000
)

// Reading is one archived sensor reading row.
type Reading struct {
	DeviceID    string    `json:"device_id"`
	EventTime   time.Time `json:"event_time"`
	Topic       string    `json:"topic,omitempty"`
	Temperature *float64  `json:"temperature_c,omitempty"`
	Humidity    *float64  `json:"humidity_pct,omitempty"`
}

// HistoryRepository queries archived readings from Postgres.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository constructs a repository.
func NewHistoryRepository(db *sql.DB) (*HistoryRepository, error) {
	if db == nil {
		return nil, errors.New("history repo: nil db")
	}
	return &HistoryRepository{db: db}, nil
}

// List returns readings for a device in [from, to), newest first.
func (r *HistoryRepository) List(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]Reading, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT device_id, event_ts_ms, topic, temperature_c, humidity_pct
FROM sensor_readings
WHERE device_id = $1 AND event_ts_ms >= $2 AND event_ts_ms < $3
ORDER BY event_ts_ms DESC
LIMIT $4`, deviceID, from.UnixMilli(), to.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var (
			reading Reading
			tsMs    int64
			topic   sql.NullString
		)
		if err := rows.Scan(&reading.DeviceID, &tsMs, &topic, &reading.Temperature, &reading.Humidity); err != nil {
			return nil, err
		}
		reading.EventTime = time.UnixMilli(tsMs).UTC()
		reading.Topic = topic.String
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

// HistoryHandler serves GET /api/v1/history.
type HistoryHandler struct {
	repo *HistoryRepository
}

// NewHistoryHandler constructs a handler.
func NewHistoryHandler(repo *HistoryRepository) (*HistoryHandler, error) {
	if repo == nil {
		return nil, errors.New("history handler: nil repository")
	}
	return &HistoryHandler{repo: repo}, nil
}

// ServeHTTP handles GET /api/v1/history?source_id=&from=&to=&limit=.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID, from, to, limit, err := historyParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	readings, err := h.repo.List(r.Context(), deviceID, from, to, limit)
	if err != nil {
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		SourceID string    `json:"source_id"`
		From     time.Time `json:"from"`
		To       time.Time `json:"to"`
		Readings []Reading `json:"readings"`
	}{SourceID: deviceID, From: from, To: to, Readings: readings})
}

func historyParams(r *http.Request) (deviceID string, from, to time.Time, limit int, err error) {
	q := r.URL.Query()
	deviceID = q.Get("source_id")
	if deviceID == "" {
		return "", time.Time{}, time.Time{}, 0, errors.New("source_id required")
	}

	to = time.Now().UTC()
	from = to.Add(-24 * time.Hour)
	if raw := q.Get("from"); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", time.Time{}, time.Time{}, 0, errors.New("from must be RFC3339")
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", time.Time{}, time.Time{}, 0, errors.New("to must be RFC3339")
		}
	}
	if !to.After(from) {
		return "", time.Time{}, time.Time{}, 0, errors.New("to must be after from")
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return "", time.Time{}, time.Time{}, 0, errors.New("limit must be an integer")
		}
	}
	return deviceID, from, to, limit, nil
}
