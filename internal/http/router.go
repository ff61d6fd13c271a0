package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterIngestRoutes 注册设备上行摄取路由（HMAC 签名认证在管线内完成）
func (r *Router) RegisterIngestRoutes(h *IngestHandler) {
	r.Handle("/ingest/live-frame", postOnly(h.LiveFrame))
	r.Handle("/ingest/live-thermal", postOnly(h.LiveThermal))
	r.Handle("/ingest/snapshot", postOnly(h.Snapshot))
	r.Handle("/ingest/readings", postOnly(h.Readings))
}

// RegisterDeviceRoutes 注册设备侧辅助路由
func (r *Router) RegisterDeviceRoutes(h *DeviceHandler) {
	r.Handle("/heartbeat", postOnly(h.Heartbeat))
	r.Handle("/device/config", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Config(w, req)
	})
	r.Handle("/alerts", postOnly(h.CreateAlert))
}

// RegisterLiveRoutes 注册前端实时查看路由
func (r *Router) RegisterLiveRoutes(h *LiveHandler) {
	r.Handle("/live/current", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Current(w, req)
	})
}

// RegisterAdminRoutes 注册管理端路由
func (r *Router) RegisterAdminRoutes(h *ExportHandler) {
	r.Handle("/admin/export/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Alerts(w, req)
	})
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}
