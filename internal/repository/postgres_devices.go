package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/models"
)

// PostgresDevicesRepo devices 表的 PostgreSQL 实现
type PostgresDevicesRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDevicesRepo 创建 devices repo
func NewPostgresDevicesRepo(db *sql.DB, logger *zap.Logger) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db, logger: logger}
}

func (r *PostgresDevicesRepo) GetCredential(ctx context.Context, deviceID string) (*models.DeviceCredential, error) {
	query := `SELECT id, secret FROM devices WHERE id = $1`

	var cred models.DeviceCredential
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&cred.DeviceID, &cred.Secret)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("device %s not found", deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("query device credential: %w", err)
	}
	return &cred, nil
}

func (r *PostgresDevicesRepo) TouchLastSeen(ctx context.Context, deviceID string) error {
	query := `UPDATE devices SET last_seen = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, deviceID); err != nil {
		return fmt.Errorf("touch last_seen: %w", err)
	}
	return nil
}

func (r *PostgresDevicesRepo) UpdateHeartbeat(ctx context.Context, deviceID, cameraURL string) error {
	query := `UPDATE devices SET camera_url = $2, last_seen = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, deviceID, cameraURL); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

func (r *PostgresDevicesRepo) GetDeviceConfig(ctx context.Context, deviceID string) (*models.DeviceConfig, error) {
	query := `SELECT COALESCE(camera_url, ''), COALESCE(camera_host, ''), COALESCE(config, '{}'::jsonb) FROM devices WHERE id = $1`

	var cfg models.DeviceConfig
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&cfg.CameraURL, &cfg.CameraHost, &cfg.Config)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("device %s not found", deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("query device config: %w", err)
	}
	return &cfg, nil
}

func (r *PostgresDevicesRepo) RetentionDays(ctx context.Context) (map[string]int, error) {
	query := `SELECT id, (config->>'snapshot_retention_days')::int
		FROM devices
		WHERE config->>'snapshot_retention_days' IS NOT NULL`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query retention config: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var id string
		var days sql.NullInt64
		if err := rows.Scan(&id, &days); err != nil {
			return nil, fmt.Errorf("scan retention config: %w", err)
		}
		if days.Valid {
			result[id] = int(days.Int64)
		}
	}
	return result, rows.Err()
}
