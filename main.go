package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hygrostat-cloud/internal/actuator"
	apihttp "hygrostat-cloud/internal/api/http"
	"hygrostat-cloud/internal/archive"
	"hygrostat-cloud/internal/audit"
	controlapp "hygrostat-cloud/internal/control/application"
	controlhttp "hygrostat-cloud/internal/control/interfaces/http"
	"hygrostat-cloud/internal/control/notify"
	"hygrostat-cloud/internal/observability/metrics"
	telemetryapp "hygrostat-cloud/internal/telemetry/application"
	telemetry "hygrostat-cloud/internal/telemetry/domain"
	telemetryhttp "hygrostat-cloud/internal/telemetry/interfaces/http"
	"hygrostat-cloud/internal/transport/mqtt"
)

type config struct {
	HTTPAddr      string
	DatabaseURL   string
	BrokerAddr    string
	Topic         string
	QoS           int
	QueueSize     int
	StoreCapacity int
	ArchiveRoot   string
}

func loadConfig() config {
	return config{
		HTTPAddr:      getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		BrokerAddr:    getenvDefault("MQTT_BROKER_ADDR", "localhost:1883"),
		Topic:         getenvDefault("MQTT_TOPIC", "MSN/group6/#"),
		QoS:           getenvIntDefault("MQTT_QOS", 0),
		QueueSize:     getenvIntDefault("MQTT_QUEUE_SIZE", 256),
		StoreCapacity: getenvIntDefault("STORE_CAPACITY", telemetry.DefaultHistoryCapacity),
		ArchiveRoot:   getenvDefault("ARCHIVE_ROOT", "logs"),
	}
}

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags|log.LUTC)
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres is optional: without it the live pipeline still runs, but
	// history queries, exports and the audit trail are disabled.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("open db error: %v", err)
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			logger.Fatalf("ping db error: %v", err)
		}
		cancel()
	} else {
		logger.Printf("DATABASE_URL not set; history, exports and audit disabled")
	}

	metrics.Init(db, logger)

	store, err := telemetry.NewSampleStore(cfg.StoreCapacity)
	if err != nil {
		logger.Fatalf("new sample store error: %v", err)
	}

	var batcher *archive.Batcher
	if cfg.ArchiveRoot != "" {
		batcher, err = archive.NewBatcher(cfg.ArchiveRoot, logger)
		if err != nil {
			logger.Fatalf("new archive batcher error: %v", err)
		}
		go batcher.Run(ctx)
	}

	var ingestorOpts []telemetryapp.IngestorOption
	if batcher != nil {
		ingestorOpts = append(ingestorOpts, telemetryapp.WithSampleSink(func(sample telemetry.Sample) {
			batcher.Add(archive.Record{
				DeviceID:     sample.SourceID,
				EventTsMs:    sample.Timestamp.UnixMilli(),
				Topic:        sample.Topic,
				Temperature:  sample.Temperature,
				Humidity:     sample.Humidity,
				ReceivedAtMs: sample.ReceivedAt.UnixMilli(),
			})
		}))
	}
	ingestor, err := telemetryapp.NewIngestor(store, logger, ingestorOpts...)
	if err != nil {
		logger.Fatalf("new ingestor error: %v", err)
	}

	aggregator, err := telemetryapp.NewAggregator(store)
	if err != nil {
		logger.Fatalf("new aggregator error: %v", err)
	}

	controlCfg, err := controlapp.LoadConfig()
	if err != nil {
		logger.Fatalf("load control config error: %v", err)
	}
	gateway, err := actuator.NewGateway(controlCfg.ActuatorBaseURL, time.Duration(controlCfg.ActuatorTimeoutSeconds)*time.Second)
	if err != nil {
		logger.Fatalf("new actuator gateway error: %v", err)
	}

	broker := controlhttp.NewSSEBroker()
	var notifier controlapp.CycleNotifier = broker
	if url := os.Getenv("CONTROL_WEBHOOK_URL"); url != "" {
		webhook, err := notify.NewWebhookNotifier(url, notify.WithCooldown(time.Minute))
		if err != nil {
			logger.Fatalf("new webhook notifier error: %v", err)
		}
		notifier = notify.NewMulti(broker, webhook)
	}
	engine, err := controlapp.NewEngine(aggregator, gateway, controlCfg, logger, controlapp.WithNotifier(notifier))
	if err != nil {
		logger.Fatalf("new control engine error: %v", err)
	}
	scheduler := controlapp.NewScheduler(engine, time.Duration(controlCfg.PeriodSeconds)*time.Second, logger)
	go scheduler.Start(ctx)

	subscriber, err := mqtt.NewSubscriber(mqtt.Config{
		BrokerAddr: cfg.BrokerAddr,
		Topic:      cfg.Topic,
		QoS:        byte(cfg.QoS),
		QueueSize:  cfg.QueueSize,
	}, func(msg mqtt.Message) {
		ingestor.Ingest(msg.Topic, msg.Payload, msg.ReceivedAt)
	}, logger)
	if err != nil {
		logger.Fatalf("new mqtt subscriber error: %v", err)
	}
	go func() {
		if err := subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("mqtt subscriber stopped: %v", err)
		}
	}()

	var auditLogger audit.Logger
	if db != nil {
		auditLogger = audit.NewRepository(db)
	}

	telemetryHandler, err := telemetryhttp.NewHandler(aggregator)
	if err != nil {
		logger.Fatalf("new telemetry handler error: %v", err)
	}
	controlHandler, err := controlhttp.NewHandler(engine, auditLogger)
	if err != nil {
		logger.Fatalf("new control handler error: %v", err)
	}
	streamHandler := controlhttp.NewStreamHandler(broker)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/readings/aggregate", telemetryHandler.HandleAggregate)
	mux.HandleFunc("/api/v1/readings/aggregates", telemetryHandler.HandleAggregates)
	mux.HandleFunc("/api/v1/readings/latest", telemetryHandler.HandleLatest)
	mux.HandleFunc("/api/v1/control/override", controlHandler.HandleOverride)
	mux.HandleFunc("/api/v1/control/weights", controlHandler.HandleWeights)
	mux.HandleFunc("/api/v1/control/thresholds", controlHandler.HandleThresholds)
	mux.HandleFunc("/api/v1/control/status", controlHandler.HandleStatus)
	mux.Handle("/api/v1/control/stream", streamHandler)

	if db != nil {
		historyRepo, err := apihttp.NewHistoryRepository(db)
		if err != nil {
			logger.Fatalf("new history repository error: %v", err)
		}
		historyHandler, err := apihttp.NewHistoryHandler(historyRepo)
		if err != nil {
			logger.Fatalf("new history handler error: %v", err)
		}
		mux.Handle("/api/v1/history", historyHandler)
		for _, format := range []string{"csv", "xlsx", "pdf"} {
			exportHandler, err := apihttp.NewExportHandler(historyRepo, format)
			if err != nil {
				logger.Fatalf("new export handler error: %v", err)
			}
			mux.Handle("/api/v1/exports/history."+format, exportHandler)
		}
	}

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: loggingMiddleware(mux, logger),
	}

	go func() {
		logger.Printf("hygrostat-cloud listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Printf("%s %s -> %d (%s)", r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
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
