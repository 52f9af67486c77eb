// Command fakeactuator emulates the USB relay controller for local
// development: POST /on, POST /off, GET /status, with configurable
// latency and failure injection.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type fakeActuator struct {
	start    time.Time
	latency  time.Duration
	failRate float64

	mu      sync.Mutex
	enabled bool

	totalCalls int64
	byAction   map[string]int64
}

func main() {
	addr := getenvDefault("FAKE_ACTUATOR_ADDR", ":5000")
	latencyMs := getenvIntDefault("FAKE_ACTUATOR_LATENCY_MS", 0)
	failRate := getenvFloatDefault("FAKE_ACTUATOR_FAIL_RATE", 0)

	srv := &fakeActuator{
		start:    time.Now().UTC(),
		latency:  time.Duration(latencyMs) * time.Millisecond,
		failRate: failRate,
		byAction: make(map[string]int64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/metrics", srv.handleMetrics)
	mux.HandleFunc("/on", srv.handleCommand(true))
	mux.HandleFunc("/off", srv.handleCommand(false))
	mux.HandleFunc("/status", srv.handleStatus)

	log.Printf("fake actuator listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeActuator) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeActuator) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"total":      atomic.LoadInt64(&s.totalCalls),
		"by_action":  s.byAction,
	})
}

func (s *fakeActuator) handleCommand(enable bool) http.HandlerFunc {
	action := "off"
	if enable {
		action = "on"
	}
	// The real relay firmware toggles on GET; accept both.
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if s.latency > 0 {
			time.Sleep(s.latency)
		}
		s.recordCall(action)
		if s.failRate > 0 && rand.Float64() < s.failRate {
			http.Error(w, "relay busy", http.StatusServiceUnavailable)
			return
		}
		s.mu.Lock()
		s.enabled = enable
		s.mu.Unlock()
		writeJSON(w, map[string]any{"usb_enabled": enable})
	}
}

func (s *fakeActuator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	writeJSON(w, map[string]any{"usb_enabled": enabled})
}

func (s *fakeActuator) recordCall(action string) {
	atomic.AddInt64(&s.totalCalls, 1)
	s.mu.Lock()
	s.byAction[action]++
	s.mu.Unlock()
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
