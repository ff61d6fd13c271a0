package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/models"
)

// PostgresReadingsRepo readings 表的 PostgreSQL 实现
type PostgresReadingsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresReadingsRepo 创建 readings repo
func NewPostgresReadingsRepo(db *sql.DB, logger *zap.Logger) *PostgresReadingsRepo {
	return &PostgresReadingsRepo{db: db, logger: logger}
}

func (r *PostgresReadingsRepo) InsertReading(ctx context.Context, reading *models.Reading) (int64, error) {
	query := `INSERT INTO readings
		(device_id, temp_c, humidity_rh, pressure_hpa, gas_res_ohm, iaq, t_min_c, t_max_c, t_avg_c)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		reading.DeviceID,
		reading.TempC,
		reading.Humidity,
		reading.Pressure,
		reading.GasRes,
		reading.IAQ,
		reading.TMinC,
		reading.TMaxC,
		reading.TAvgC,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reading: %w", err)
	}
	return id, nil
}

// PurgeOldReadings 调用库内的 purge_old_readings() 批量清理（按设备保留期）
func (r *PostgresReadingsRepo) PurgeOldReadings(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `SELECT purge_old_readings()`); err != nil {
		return fmt.Errorf("purge old readings: %w", err)
	}
	return nil
}
