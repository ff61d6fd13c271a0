// Package repository PostgreSQL 数据访问层
// 接口按消费方（ingest 管线、retention 清理、HTTP handler）取最小面
package repository

import (
	"context"

	"github.com/klienn/swinetrack/internal/models"
)

// DevicesRepo devices 表访问接口
type DevicesRepo interface {
	// GetCredential 查询设备凭据（认证用，只读）
	GetCredential(ctx context.Context, deviceID string) (*models.DeviceCredential, error)
	// TouchLastSeen 更新设备 last_seen（best-effort）
	TouchLastSeen(ctx context.Context, deviceID string) error
	// UpdateHeartbeat 心跳：更新 camera_url 和 last_seen
	UpdateHeartbeat(ctx context.Context, deviceID, cameraURL string) error
	// GetDeviceConfig 查询下发给固件的设备配置
	GetDeviceConfig(ctx context.Context, deviceID string) (*models.DeviceConfig, error)
	// RetentionDays 查询配置了 snapshot_retention_days 的设备
	RetentionDays(ctx context.Context) (map[string]int, error)
}

// ReadingsRepo readings 表访问接口
type ReadingsRepo interface {
	InsertReading(ctx context.Context, reading *models.Reading) (int64, error)
	// PurgeOldReadings 调用库内的批量清理过程
	PurgeOldReadings(ctx context.Context) error
}

// AlertsRepo alerts 表访问接口
type AlertsRepo interface {
	InsertAlert(ctx context.Context, alert *models.Alert) (int64, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]models.Alert, error)
}

// SnapshotsRepo snapshots 表访问接口（append-only）
type SnapshotsRepo interface {
	InsertSnapshot(ctx context.Context, snapshot *models.Snapshot) (int64, error)
	ListSnapshots(ctx context.Context) ([]models.Snapshot, error)
	DeleteSnapshots(ctx context.Context, ids []int64) error
}
