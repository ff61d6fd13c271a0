package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/auth"
	"github.com/klienn/swinetrack/internal/ingest"
	"github.com/klienn/swinetrack/internal/repository"
)

// IngestHandler 设备上行摄取 Handler
// 三个 multipart 端点各持一条管线形态；readings 是纯 JSON 的轻量端点
type IngestHandler struct {
	liveFrame   *ingest.Pipeline
	liveThermal *ingest.Pipeline
	snapshot    *ingest.Pipeline

	auth         *auth.Authenticator
	devices      repository.DevicesRepo
	readings     repository.ReadingsRepo
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewIngestHandler 创建摄取 Handler
func NewIngestHandler(
	liveFrame, liveThermal, snapshot *ingest.Pipeline,
	authenticator *auth.Authenticator,
	devices repository.DevicesRepo,
	readings repository.ReadingsRepo,
	maxBodyBytes int64,
	logger *zap.Logger,
) *IngestHandler {
	return &IngestHandler{
		liveFrame:    liveFrame,
		liveThermal:  liveThermal,
		snapshot:     snapshot,
		auth:         authenticator,
		devices:      devices,
		readings:     readings,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *IngestHandler) LiveFrame(w http.ResponseWriter, r *http.Request) {
	h.liveFrame.Handle(w, r)
}

func (h *IngestHandler) LiveThermal(w http.ResponseWriter, r *http.Request) {
	h.liveThermal.Handle(w, r)
}

func (h *IngestHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	h.snapshot.Handle(w, r)
}

// Readings 纯读数上报（无图像帧的固件用）
func (h *IngestHandler) Readings(w http.ResponseWriter, r *http.Request) {
	identity, failure := h.auth.Verify(r)
	if failure != nil {
		http.Error(w, failure.Message, failure.Status)
		return
	}
	ctx := r.Context()

	var raw map[string]any
	if err := readBodyJSON(r, h.maxBodyBytes, &raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
		return
	}

	id, err := h.readings.InsertReading(ctx, ingest.MapReading(identity.DeviceID, raw))
	if err != nil {
		h.logger.Error("reading insert failed",
			zap.String("device_id", identity.DeviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "insert_failed"})
		return
	}

	if err := h.devices.TouchLastSeen(ctx, identity.DeviceID); err != nil {
		h.logger.Warn("device touch failed",
			zap.String("device_id", identity.DeviceID),
			zap.Error(err),
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}
