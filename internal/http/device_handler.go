package httpapi

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/auth"
	"github.com/klienn/swinetrack/internal/models"
	"github.com/klienn/swinetrack/internal/realtime"
	"github.com/klienn/swinetrack/internal/repository"
)

// DeviceHandler 设备侧辅助端点：心跳、配置下发、手动报警
type DeviceHandler struct {
	auth         *auth.Authenticator
	devices      repository.DevicesRepo
	alerts       repository.AlertsRepo
	publisher    *realtime.Publisher
	topicFmt     string
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewDeviceHandler 创建设备辅助 Handler
func NewDeviceHandler(
	authenticator *auth.Authenticator,
	devices repository.DevicesRepo,
	alerts repository.AlertsRepo,
	publisher *realtime.Publisher,
	topicFmt string,
	maxBodyBytes int64,
	logger *zap.Logger,
) *DeviceHandler {
	return &DeviceHandler{
		auth:         authenticator,
		devices:      devices,
		alerts:       alerts,
		publisher:    publisher,
		topicFmt:     topicFmt,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Heartbeat 设备心跳：上报可达的相机地址并刷新 last_seen
func (h *DeviceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	identity, failure := h.auth.Verify(r)
	if failure != nil {
		http.Error(w, failure.Message, failure.Status)
		return
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := readBodyJSON(r, h.maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
		return
	}
	if body.IP == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing_ip"})
		return
	}

	// 固件只报 LAN IP，抓拍地址在服务端拼出
	cameraURL := fmt.Sprintf("http://%s/capture?res=VGA", body.IP)

	if err := h.devices.UpdateHeartbeat(r.Context(), identity.DeviceID, cameraURL); err != nil {
		h.logger.Error("heartbeat update failed",
			zap.String("device_id", identity.DeviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "update_failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Config 下发设备配置给固件
func (h *DeviceHandler) Config(w http.ResponseWriter, r *http.Request) {
	identity, failure := h.auth.Verify(r)
	if failure != nil {
		http.Error(w, failure.Message, failure.Status)
		return
	}

	cfg, err := h.devices.GetDeviceConfig(r.Context(), identity.DeviceID)
	if err != nil {
		h.logger.Error("device config lookup failed",
			zap.String("device_id", identity.DeviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "lookup_failed"})
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "device_not_found"})
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// CreateAlert 设备直接上报报警（绕过读数派生的手动通道）
func (h *DeviceHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	identity, failure := h.auth.Verify(r)
	if failure != nil {
		http.Error(w, failure.Message, failure.Status)
		return
	}
	ctx := r.Context()

	var body struct {
		Kind      string `json:"kind"`
		Severity  string `json:"severity"`
		Message   string `json:"message"`
		ReadingID *int64 `json:"reading_id"`
	}
	if err := readBodyJSON(r, h.maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
		return
	}

	kind := models.AlertKind(body.Kind)
	switch kind {
	case models.AlertTempFever, models.AlertAirQuality, models.AlertDeviceOffline:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_kind"})
		return
	}

	severity := models.AlertSeverity(body.Severity)
	switch severity {
	case models.SeverityInfo, models.SeverityWarn, models.SeverityCrit:
	case "":
		severity = models.SeverityWarn
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_severity"})
		return
	}

	id, err := h.alerts.InsertAlert(ctx, &models.Alert{
		DeviceID:  identity.DeviceID,
		Kind:      kind,
		Severity:  severity,
		Message:   body.Message,
		ReadingID: body.ReadingID,
	})
	if err != nil {
		h.logger.Error("alert insert failed",
			zap.String("device_id", identity.DeviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "insert_failed"})
		return
	}

	// 实时通知 best-effort，失败不影响响应
	topic := fmt.Sprintf(h.topicFmt, identity.DeviceID)
	if err := h.publisher.Publish(ctx, topic, realtime.Message{
		Type:    "alert",
		Payload: map[string]any{"id": id},
	}); err != nil {
		h.logger.Warn("alert publish failed",
			zap.String("device_id", identity.DeviceID),
			zap.String("topic", topic),
			zap.Error(err),
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}
