package models

import (
	"encoding/json"
	"time"
)

// AlertKind 报警类型
type AlertKind string

const (
	AlertTempFever     AlertKind = "TEMP_FEVER"
	AlertAirQuality    AlertKind = "AIR_QUALITY"
	AlertDeviceOffline AlertKind = "DEVICE_OFFLINE"
)

// AlertSeverity 报警级别
type AlertSeverity string

const (
	SeverityInfo AlertSeverity = "INFO"
	SeverityWarn AlertSeverity = "WARN"
	SeverityCrit AlertSeverity = "CRIT"
)

// DeviceCredential 设备认证凭据（devices 表，只读）
type DeviceCredential struct {
	DeviceID string
	Secret   string
}

// DeviceConfig 设备下发配置（config 接口返回给固件）
type DeviceConfig struct {
	CameraURL  string          `json:"camera_url"`
	CameraHost string          `json:"camera_host"`
	Config     json.RawMessage `json:"config"`
}

// Reading 一次环境采样（readings 表）
// 字段均可空：固件按传感器可用性上报
type Reading struct {
	ID       int64
	DeviceID string
	TempC    *float64
	Humidity *float64
	Pressure *float64
	GasRes   *float64
	IAQ      *float64
	TMinC    *float64
	TMaxC    *float64
	TAvgC    *float64
}

// AlertDraft 派生出的报警草稿（尚未入库）
type AlertDraft struct {
	Kind     AlertKind
	Severity AlertSeverity
	Message  string
}

// Alert 报警记录（alerts 表）
type Alert struct {
	ID        int64
	DeviceID  string
	Kind      AlertKind
	Severity  AlertSeverity
	Message   string
	ReadingID *int64
	CreatedAt time.Time
}

// Snapshot 存档快照记录（snapshots 表，append-only）
type Snapshot struct {
	ID         int64
	DeviceID   string
	Timestamp  time.Time
	ReadingID  *int64
	AlertID    *int64
	ObjectPath string
}

// ThermalGrid 热成像栅格：w×h 行优先的温度序列
type ThermalGrid struct {
	W    int       `json:"w"`
	H    int       `json:"h"`
	Data []float64 `json:"data"`
}
