package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置（Realtime 广播使用 Redis Pub/Sub）
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 配置（可选的第二种 Realtime broker，默认禁用）
type MQTTConfig struct {
	Enabled  bool
	Broker   string // 如 "tcp://localhost:1883"
	ClientID string
	Username string
	Password string
	QoS      byte
}

// StorageConfig 对象存储配置（HTTP 对象存储服务）
type StorageConfig struct {
	BaseURL        string
	ServiceKey     string
	LiveBucket     string // 实时帧缓存 bucket
	SnapshotBucket string // 存档快照 bucket
	Timeout        time.Duration
}

// IngestConfig 采集管线配置
type IngestConfig struct {
	OverlayAlpha  float64       // 热成像叠加透明度 [0,1]
	JoinTimeout   time.Duration // realtime channel 订阅超时
	MaxBodyBytes  int64         // multipart 请求体上限
	FeverTopicFmt string        // realtime topic 模板，%s = device_id
}

// RetentionConfig 快照保留清理配置
type RetentionConfig struct {
	Enabled     bool
	Interval    time.Duration
	DefaultDays int
}

// Config swinetrack-server 配置
type Config struct {
	HTTP struct {
		Addr string
	}
	Database  DatabaseConfig
	Redis     RedisConfig
	MQTT      MQTTConfig
	Storage   StorageConfig
	Ingest    IngestConfig
	Retention RetentionConfig
	Log       struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "swinetrack")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	// MQTT broker（默认禁用；启用后 realtime 广播走 MQTT 而不是 Redis）
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "swinetrack-server")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))

	cfg.Storage.BaseURL = getEnv("STORAGE_BASE_URL", "http://localhost:9000")
	cfg.Storage.ServiceKey = getEnv("STORAGE_SERVICE_KEY", "")
	cfg.Storage.LiveBucket = getEnv("STORAGE_LIVE_BUCKET", "frames-live")
	cfg.Storage.SnapshotBucket = getEnv("STORAGE_SNAPSHOT_BUCKET", "snapshots")
	cfg.Storage.Timeout = time.Duration(parseInt(getEnv("STORAGE_TIMEOUT_SEC", "30"), 30)) * time.Second

	cfg.Ingest.OverlayAlpha = parseFloat(getEnv("OVERLAY_ALPHA", "0.35"), 0.35)
	cfg.Ingest.JoinTimeout = time.Duration(parseInt(getEnv("REALTIME_JOIN_TIMEOUT_MS", "5000"), 5000)) * time.Millisecond
	cfg.Ingest.MaxBodyBytes = int64(parseInt(getEnv("INGEST_MAX_BODY_BYTES", "2500000"), 2500000))
	cfg.Ingest.FeverTopicFmt = getEnv("REALTIME_TOPIC_FMT", "realtime:device:%s")

	cfg.Retention.Enabled = getEnv("RETENTION_ENABLED", "true") == "true"
	cfg.Retention.Interval = time.Duration(parseInt(getEnv("RETENTION_INTERVAL_MIN", "60"), 60)) * time.Minute
	cfg.Retention.DefaultDays = parseInt(getEnv("RETENTION_DEFAULT_DAYS", "7"), 7)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
