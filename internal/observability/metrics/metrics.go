package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "hygrostat_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestDropped  *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	samplesIngested *prometheus.CounterVec

	aggregateQueries *prometheus.CounterVec
	aggregateLatency *prometheus.HistogramVec

	decisionCycles  *prometheus.CounterVec
	decisionLatency *prometheus.HistogramVec
	decisionActions *prometheus.CounterVec

	actuatorRequests *prometheus.CounterVec
	actuatorLatency  *prometheus.HistogramVec

	transportMessages  prometheus.Counter
	transportDropped   *prometheus.CounterVec
	transportConnected prometheus.Gauge

	archiveRecords prometheus.Counter
	archiveDropped prometheus.Counter
	archiveFlushes *prometheus.CounterVec
	loaderFiles    *prometheus.CounterVec

	historyExportTotal   *prometheus.CounterVec
	historyExportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingested messages by result",
			},
			[]string{"result"},
		)
		ingestDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_dropped_total",
				Help: "Total dropped messages by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		samplesIngested = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "samples_ingested_total",
				Help: "Total samples recorded by source",
			},
			[]string{"source"},
		)

		aggregateQueries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregate_queries_total",
				Help: "Total windowed aggregate queries by result",
			},
			[]string{"result"},
		)
		aggregateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregate_query_latency_seconds",
				Help:    "Windowed aggregate query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		decisionCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decision_cycles_total",
				Help: "Total control decision cycles by result",
			},
			[]string{"result"},
		)
		decisionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "decision_cycle_latency_seconds",
				Help:    "Control decision cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		decisionActions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decision_actions_total",
				Help: "Total decided actions by action",
			},
			[]string{"action"},
		)

		actuatorRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "actuator_requests_total",
				Help: "Total actuator requests by action and result",
			},
			[]string{"action", "result"},
		)
		actuatorLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "actuator_request_latency_seconds",
				Help:    "Actuator request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action", "result"},
		)

		transportMessages = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "transport_messages_total",
				Help: "Total messages received from the broker",
			},
		)
		transportDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transport_dropped_total",
				Help: "Total broker messages dropped by reason",
			},
			[]string{"reason"},
		)
		transportConnected = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "transport_connected",
				Help: "Broker connection state (1 connected, 0 disconnected)",
			},
		)

		archiveRecords = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "archive_records_total",
				Help: "Total records handed to the archive batcher",
			},
		)
		archiveDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "archive_dropped_total",
				Help: "Total records dropped on a full archive queue",
			},
		)
		archiveFlushes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "archive_flushes_total",
				Help: "Total archive batch flushes by result",
			},
			[]string{"result"},
		)
		loaderFiles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "loader_files_total",
				Help: "Total archive files loaded into the database by result",
			},
			[]string{"result"},
		)

		historyExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_export_total",
				Help: "Total history export operations by format and result",
			},
			[]string{"format", "result"},
		)
		historyExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "history_export_latency_seconds",
				Help:    "History export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestDropped,
			ingestLatency,
			samplesIngested,
			aggregateQueries,
			aggregateLatency,
			decisionCycles,
			decisionLatency,
			decisionActions,
			actuatorRequests,
			actuatorLatency,
			transportMessages,
			transportDropped,
			transportConnected,
			archiveRecords,
			archiveDropped,
			archiveFlushes,
			loaderFiles,
			historyExportTotal,
			historyExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestDropped increments the dropped-message counter.
func IncIngestDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestDropped != nil {
		ingestDropped.WithLabelValues(reason).Inc()
	}
}

// IncSampleIngested increments the recorded-sample counter per source.
func IncSampleIngested(source string) {
	if source == "" {
		source = "unknown"
	}
	if samplesIngested != nil {
		samplesIngested.WithLabelValues(source).Inc()
	}
}

// ObserveAggregateQuery records aggregate query latency and result.
func ObserveAggregateQuery(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if aggregateQueries != nil {
		aggregateQueries.WithLabelValues(result).Inc()
	}
	if aggregateLatency != nil {
		aggregateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveDecisionCycle records decision cycle latency and result.
func ObserveDecisionCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if decisionCycles != nil {
		decisionCycles.WithLabelValues(result).Inc()
	}
	if decisionLatency != nil {
		decisionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncDecisionAction increments the decided-action counter.
func IncDecisionAction(action string) {
	if action == "" {
		action = "unknown"
	}
	if decisionActions != nil {
		decisionActions.WithLabelValues(action).Inc()
	}
}

// ObserveActuatorRequest records actuator call latency by action and result.
func ObserveActuatorRequest(action, result string, duration time.Duration) {
	if action == "" {
		action = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if actuatorRequests != nil {
		actuatorRequests.WithLabelValues(action, result).Inc()
	}
	if actuatorLatency != nil {
		actuatorLatency.WithLabelValues(action, result).Observe(duration.Seconds())
	}
}

// IncTransportMessage counts one broker delivery.
func IncTransportMessage() {
	if transportMessages != nil {
		transportMessages.Inc()
	}
}

// IncTransportDropped counts a broker delivery dropped before ingest.
func IncTransportDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if transportDropped != nil {
		transportDropped.WithLabelValues(reason).Inc()
	}
}

// SetTransportConnected reflects broker connection state.
func SetTransportConnected(connected bool) {
	if transportConnected == nil {
		return
	}
	if connected {
		transportConnected.Set(1)
	} else {
		transportConnected.Set(0)
	}
}

// IncArchiveRecord counts one record enqueued for archival.
func IncArchiveRecord() {
	if archiveRecords != nil {
		archiveRecords.Inc()
	}
}

// IncArchiveDropped counts one record dropped on a full archive queue.
func IncArchiveDropped() {
	if archiveDropped != nil {
		archiveDropped.Inc()
	}
}

// IncArchiveFlush counts one batch flush.
func IncArchiveFlush(result string) {
	if result == "" {
		result = resultSuccess
	}
	if archiveFlushes != nil {
		archiveFlushes.WithLabelValues(result).Inc()
	}
}

// IncLoaderFile counts one archive file load attempt.
func IncLoaderFile(result string) {
	if result == "" {
		result = resultSuccess
	}
	if loaderFiles != nil {
		loaderFiles.WithLabelValues(result).Inc()
	}
}

// ObserveHistoryExport records export latency by format and result.
func ObserveHistoryExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if historyExportTotal != nil {
		historyExportTotal.WithLabelValues(format, result).Inc()
	}
	if historyExportLatency != nil {
		historyExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
