package apihttp

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"hygrostat-cloud/internal/observability/metrics"
)

// BuildHistoryCSV renders readings as CSV.
func BuildHistoryCSV(readings []Reading) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"device_id", "event_time", "topic", "temperature_c", "humidity_pct"}); err != nil {
		return nil, err
	}
	for _, reading := range readings {
		record := []string{
			reading.DeviceID,
			reading.EventTime.Format(time.RFC3339),
			reading.Topic,
			formatOptional(reading.Temperature),
			formatOptional(reading.Humidity),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHistoryXLSX renders readings as a workbook.
func BuildHistoryXLSX(readings []Reading) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "readings"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Device")
	_ = f.SetCellValue(sheet, "B1", "Event Time")
	_ = f.SetCellValue(sheet, "C1", "Topic")
	_ = f.SetCellValue(sheet, "D1", "Temperature (C)")
	_ = f.SetCellValue(sheet, "E1", "Humidity (%)")
	for i, reading := range readings {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), reading.DeviceID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), reading.EventTime.Format(time.RFC3339))
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), reading.Topic)
		if reading.Temperature != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), *reading.Temperature)
		}
		if reading.Humidity != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), *reading.Humidity)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHistoryPDF renders readings as a minimal PDF report.
func BuildHistoryPDF(sourceID string, from, to time.Time, readings []Reading) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Sensor Reading History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", sourceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("From: %s", from.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("To: %s", to.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Readings: %d", len(readings)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Event Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Temperature (C)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Humidity (%)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, reading := range readings {
		pdf.CellFormat(60, 6, reading.EventTime.Format(time.RFC3339), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, formatOptional(reading.Temperature), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, formatOptional(reading.Humidity), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// ExportHandler serves GET /api/v1/exports/history.{csv,xlsx,pdf}.
type ExportHandler struct {
	repo   *HistoryRepository
	format string
}

// NewExportHandler constructs a handler for one export format.
func NewExportHandler(repo *HistoryRepository, format string) (*ExportHandler, error) {
	if repo == nil {
		return nil, errors.New("export handler: nil repository")
	}
	switch format {
	case "csv", "xlsx", "pdf":
	default:
		return nil, fmt.Errorf("export handler: unsupported format %q", format)
	}
	return &ExportHandler{repo: repo, format: format}, nil
}

// ServeHTTP handles one export request; query params match the history
// endpoint.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID, from, to, limit, err := historyParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	readings, err := h.repo.List(r.Context(), deviceID, from, to, limit)
	if err != nil {
		metrics.ObserveHistoryExport(h.format, metrics.ResultError, time.Since(start))
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}

	var (
		payload     []byte
		contentType string
	)
	switch h.format {
	case "csv":
		payload, err = BuildHistoryCSV(readings)
		contentType = "text/csv"
	case "xlsx":
		payload, err = BuildHistoryXLSX(readings)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		payload, err = BuildHistoryPDF(deviceID, from, to, readings)
		contentType = "application/pdf"
	}
	if err != nil {
		metrics.ObserveHistoryExport(h.format, metrics.ResultError, time.Since(start))
		http.Error(w, "export build failed", http.StatusInternalServerError)
		return
	}

	metrics.ObserveHistoryExport(h.format, metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="history-%s-%s.%s"`, deviceID, from.Format("20060102"), h.format))
	_, _ = w.Write(payload)
}
