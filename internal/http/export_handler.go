package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/models"
	"github.com/klienn/swinetrack/internal/repository"
)

// AlertExportHeader 报警导出表头
var AlertExportHeader = []string{
	"Alert ID",
	"Device ID",
	"Kind",
	"Severity",
	"Message",
	"Reading ID",
	"Created At",
}

const defaultExportLimit = 100

// ExportHandler 管理端导出 Handler
type ExportHandler struct {
	alerts repository.AlertsRepo
	logger *zap.Logger
}

// NewExportHandler 创建导出 Handler
func NewExportHandler(alerts repository.AlertsRepo, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{alerts: alerts, logger: logger}
}

// Alerts 导出最近报警为 Excel
func (h *ExportHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), defaultExportLimit)

	alerts, err := h.alerts.ListRecentAlerts(r.Context(), limit)
	if err != nil {
		h.logger.Error("alert export query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query_failed"})
		return
	}

	data, err := GenerateAlertExport(alerts)
	if err != nil {
		h.logger.Error("alert export generation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "export_failed"})
		return
	}

	filename := fmt.Sprintf("alerts-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GenerateAlertExport 生成报警导出 Excel 文件
// alerts 为空时只生成表头
func GenerateAlertExport(alerts []models.Alert) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteToBuffer needs the file to be open

	sheetName := "Alerts"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range AlertExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style %s: %w", cell, err)
		}
	}

	for row, alert := range alerts {
		readingID := any("")
		if alert.ReadingID != nil {
			readingID = *alert.ReadingID
		}
		values := []any{
			alert.ID,
			alert.DeviceID,
			string(alert.Kind),
			string(alert.Severity),
			alert.Message,
			readingID,
			alert.CreatedAt.UTC().Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}
