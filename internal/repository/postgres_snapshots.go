package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/models"
)

// PostgresSnapshotsRepo snapshots 表的 PostgreSQL 实现（append-only）
type PostgresSnapshotsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresSnapshotsRepo 创建 snapshots repo
func NewPostgresSnapshotsRepo(db *sql.DB, logger *zap.Logger) *PostgresSnapshotsRepo {
	return &PostgresSnapshotsRepo{db: db, logger: logger}
}

func (r *PostgresSnapshotsRepo) InsertSnapshot(ctx context.Context, snapshot *models.Snapshot) (int64, error) {
	query := `INSERT INTO snapshots (device_id, reading_id, alert_id, overlay_path)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		snapshot.DeviceID,
		snapshot.ReadingID,
		snapshot.AlertID,
		snapshot.ObjectPath,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

func (r *PostgresSnapshotsRepo) ListSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	query := `SELECT id, device_id, ts, reading_id, alert_id, overlay_path FROM snapshots`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		var readingID, alertID sql.NullInt64
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Timestamp, &readingID, &alertID, &s.ObjectPath); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if readingID.Valid {
			v := readingID.Int64
			s.ReadingID = &v
		}
		if alertID.Valid {
			v := alertID.Int64
			s.AlertID = &v
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func (r *PostgresSnapshotsRepo) DeleteSnapshots(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `DELETE FROM snapshots WHERE id = ANY($1)`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}
