// Package ingest 设备上行摄取管线
// 两种形态共用一条管线：实时帧（覆盖写缓存桶）与存档快照（合成叠加图、
// 派生报警、落 snapshots 行）。硬失败只有存储上传；其余步骤都是
// best-effort，单步失败隔离，不拖垮整个请求。
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/auth"
	"github.com/klienn/swinetrack/internal/evaluator"
	"github.com/klienn/swinetrack/internal/models"
	"github.com/klienn/swinetrack/internal/overlay"
	"github.com/klienn/swinetrack/internal/realtime"
	"github.com/klienn/swinetrack/internal/repository"
	"github.com/klienn/swinetrack/internal/storage"
)

// multipart part 名称
const (
	partCam     = "cam"
	partThermal = "thermal"
	partReading = "reading"
)

const maxMultipartMemory = 32 << 20

// Options 管线形态配置
// 每个 HTTP 端点持有一份，决定必填 part、持久化目标与是否走存档流程
type Options struct {
	RequireCam     bool
	RequireThermal bool

	PersistCamFrame bool
	PersistThermal  bool

	CamBucket     string
	ThermalBucket string
	// 对象路径生成器；stamp 仅存档形态使用，实时形态可忽略
	CamPath     func(deviceID, stamp string) string
	ThermalPath func(deviceID, stamp string) string

	// Archival: 合成热叠加图、派生报警、写 snapshots 行、对象仅新建不覆盖
	Archival     bool
	OverlayAlpha float64
}

// Deps 管线依赖
type Deps struct {
	Auth      *auth.Authenticator
	Devices   repository.DevicesRepo
	Readings  repository.ReadingsRepo
	Alerts    repository.AlertsRepo
	Snapshots repository.SnapshotsRepo
	Blobs     storage.BlobStore
	Publisher *realtime.Publisher
	Evaluator *evaluator.Evaluator
	Logger    *zap.Logger
	// TopicFmt 报警实时通知的 topic 模板（%s 为 device id）
	TopicFmt string
}

// Pipeline 一个端点形态的摄取管线
type Pipeline struct {
	deps Deps
	opts Options

	now       func() time.Time
	newSuffix func() string
}

// NewPipeline 创建管线
func NewPipeline(deps Deps, opts Options) *Pipeline {
	if opts.OverlayAlpha <= 0 {
		opts.OverlayAlpha = overlay.DefaultAlpha
	}
	return &Pipeline{
		deps: deps,
		opts: opts,
		now:  time.Now,
		newSuffix: func() string {
			return uuid.NewString()[:8]
		},
	}
}

// SetClock 覆盖时钟（仅测试用）
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Handle 处理一次设备上行请求
func (p *Pipeline) Handle(w http.ResponseWriter, r *http.Request) {
	started := p.now()

	defer func() {
		if rec := recover(); rec != nil {
			p.deps.Logger.Error("ingest pipeline panic",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "server_error",
				"details": fmt.Sprintf("%v", rec),
			})
		}
	}()

	identity, failure := p.deps.Auth.Verify(r)
	if failure != nil {
		http.Error(w, failure.Message, failure.Status)
		return
	}
	deviceID := identity.DeviceID
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		p.deps.Logger.Warn("multipart parse failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "server_error",
			"details": err.Error(),
		})
		return
	}

	camBytes, hasCam := filePart(r, partCam)
	thermalText, hasThermal := textPart(r, partThermal)
	readingText, hasReading := textPart(r, partReading)

	if code, ok := p.missingPartError(hasCam, hasThermal); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": code})
		return
	}

	// 读数入库：解析或插入失败都只记日志，readingId 置空
	var readingID *int64
	var payload evaluator.ReadingPayload
	var payloadOK bool
	if hasReading {
		readingID, payload, payloadOK = p.storeReading(ctx, deviceID, readingText)
	}

	// 存档形态先合成叠加图；合成失败回退原始相机帧并带 warning
	frameBytes := camBytes
	frameMime := overlay.SniffMime(camBytes)
	warning := ""
	if p.opts.Archival && hasCam && hasThermal {
		if composed, mime, err := p.composeOverlay(camBytes, thermalText); err != nil {
			p.deps.Logger.Warn("overlay composition failed",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			warning = "overlay_failed"
		} else {
			frameBytes = composed
			frameMime = mime
		}
	}

	stamp := archivalStamp(started) + "-" + p.newSuffix()

	if hasThermal && p.opts.PersistThermal {
		path := p.opts.ThermalPath(deviceID, stamp)
		err := p.deps.Blobs.Upload(ctx, p.opts.ThermalBucket, path, []byte(thermalText), storage.UploadOptions{
			ContentType:  "application/json",
			Upsert:       !p.opts.Archival,
			CacheControl: "no-store",
		})
		if err != nil {
			p.deps.Logger.Error("thermal upload failed",
				zap.String("device_id", deviceID),
				zap.String("path", path),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "thermal_upload_failed",
				"details": err.Error(),
			})
			return
		}
	}

	objectPath := ""
	if hasCam && p.opts.PersistCamFrame {
		objectPath = p.opts.CamPath(deviceID, stamp)
		err := p.deps.Blobs.Upload(ctx, p.opts.CamBucket, objectPath, frameBytes, storage.UploadOptions{
			ContentType:  frameMime,
			Upsert:       !p.opts.Archival,
			CacheControl: "no-store",
		})
		if err != nil {
			p.deps.Logger.Error("frame upload failed",
				zap.String("device_id", deviceID),
				zap.String("path", objectPath),
				zap.Error(err),
			)
			code := "frame_upload_failed"
			if p.opts.Archival {
				code = "upload_failed"
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   code,
				"details": err.Error(),
			})
			return
		}
	}

	if err := p.deps.Devices.TouchLastSeen(ctx, deviceID); err != nil {
		p.deps.Logger.Warn("device touch failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	result := map[string]any{
		"ok":         true,
		"readingId":  readingID,
		"elapsed_ms": p.now().Sub(started).Milliseconds(),
	}

	if p.opts.Archival {
		var firstAlertID *int64
		if payloadOK {
			firstAlertID = p.fanOutAlerts(ctx, deviceID, readingID, payload)
		}

		snapshotID := p.storeSnapshot(ctx, deviceID, started, readingID, firstAlertID, objectPath)

		result["snapshotId"] = snapshotID
		result["overlay_path"] = objectPath
		result["contentType"] = frameMime
		if warning != "" {
			result["warning"] = warning
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// missingPartError 校验必填 part；缺失时返回对应错误码
// 同时要求 cam 和 thermal 的形态只有一个合并错误码，不区分缺了哪个
func (p *Pipeline) missingPartError(hasCam, hasThermal bool) (string, bool) {
	missCam := p.opts.RequireCam && !hasCam
	missThermal := p.opts.RequireThermal && !hasThermal
	if !missCam && !missThermal {
		return "", true
	}
	if p.opts.RequireCam && p.opts.RequireThermal {
		return "missing_cam_or_thermal", false
	}
	if missThermal {
		return "missing_thermal", false
	}
	return "missing_cam", false
}

// storeReading 解析并插入读数；任一步失败都降级为 nil id
func (p *Pipeline) storeReading(ctx context.Context, deviceID, readingText string) (*int64, evaluator.ReadingPayload, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(readingText), &raw); err != nil {
		p.deps.Logger.Warn("reading payload malformed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil, evaluator.ReadingPayload{}, false
	}

	var payload evaluator.ReadingPayload
	if err := json.Unmarshal([]byte(readingText), &payload); err != nil {
		// raw 能解开这里就不会失败，保险起见仍然容错
		p.deps.Logger.Warn("reading payload decode failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil, evaluator.ReadingPayload{}, false
	}

	id, err := p.deps.Readings.InsertReading(ctx, MapReading(deviceID, raw))
	if err != nil {
		p.deps.Logger.Warn("reading insert failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil, payload, true
	}
	return &id, payload, true
}

// composeOverlay 解析热栅格并合成叠加图
func (p *Pipeline) composeOverlay(camBytes []byte, thermalText string) ([]byte, string, error) {
	var grid models.ThermalGrid
	if err := json.Unmarshal([]byte(thermalText), &grid); err != nil {
		return nil, "", fmt.Errorf("thermal grid malformed: %w", err)
	}
	return overlay.Compose(camBytes, grid, p.opts.OverlayAlpha)
}

// fanOutAlerts 派生报警并逐条入库+实时通知；单条失败不影响其余
// 返回第一条成功入库的报警 id（snapshots 行引用它）
func (p *Pipeline) fanOutAlerts(ctx context.Context, deviceID string, readingID *int64, payload evaluator.ReadingPayload) *int64 {
	drafts := p.deps.Evaluator.Derive(payload)
	var firstID *int64

	for _, draft := range drafts {
		id, err := p.deps.Alerts.InsertAlert(ctx, &models.Alert{
			DeviceID:  deviceID,
			Kind:      draft.Kind,
			Severity:  draft.Severity,
			Message:   draft.Message,
			ReadingID: readingID,
		})
		if err != nil {
			p.deps.Logger.Warn("alert insert failed",
				zap.String("device_id", deviceID),
				zap.String("kind", string(draft.Kind)),
				zap.Error(err),
			)
			continue
		}
		if firstID == nil {
			firstID = &id
		}

		topic := fmt.Sprintf(p.deps.TopicFmt, deviceID)
		if err := p.deps.Publisher.Publish(ctx, topic, realtime.Message{
			Type:    "alert",
			Payload: map[string]any{"id": id},
		}); err != nil {
			p.deps.Logger.Warn("alert publish failed",
				zap.String("device_id", deviceID),
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}
	return firstID
}

// storeSnapshot 写 snapshots 行（best-effort）
func (p *Pipeline) storeSnapshot(ctx context.Context, deviceID string, ts time.Time, readingID, alertID *int64, objectPath string) *int64 {
	id, err := p.deps.Snapshots.InsertSnapshot(ctx, &models.Snapshot{
		DeviceID:   deviceID,
		Timestamp:  ts,
		ReadingID:  readingID,
		AlertID:    alertID,
		ObjectPath: objectPath,
	})
	if err != nil {
		p.deps.Logger.Warn("snapshot insert failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}
	return &id
}

// archivalStamp 存档对象名里的时间戳：ISO8601 去掉路径不友好的 : 和 .
func archivalStamp(t time.Time) string {
	s := t.UTC().Format("2006-01-02T15:04:05.000Z")
	s = strings.ReplaceAll(s, ":", "-")
	s = strings.ReplaceAll(s, ".", "-")
	return s
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
