package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/overlay"
	"github.com/klienn/swinetrack/internal/storage"
)

// LiveHandler 前端实时查看端点
type LiveHandler struct {
	blobs      storage.BlobStore
	liveBucket string
	logger     *zap.Logger
}

// NewLiveHandler 创建实时查看 Handler
func NewLiveHandler(blobs storage.BlobStore, liveBucket string, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{
		blobs:      blobs,
		liveBucket: liveBucket,
		logger:     logger,
	}
}

// Current 返回设备最新一帧（实时缓存桶的固定路径覆盖写）
func (h *LiveHandler) Current(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	if deviceID == "" {
		http.Error(w, "device required", http.StatusBadRequest)
		return
	}

	data, err := h.blobs.Download(r.Context(), h.liveBucket, deviceID+"/current.jpg")
	if err != nil {
		http.Error(w, "no frame", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", overlay.SniffMime(data))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
