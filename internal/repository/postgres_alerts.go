package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/models"
)

// PostgresAlertsRepo alerts 表的 PostgreSQL 实现
type PostgresAlertsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlertsRepo 创建 alerts repo
func NewPostgresAlertsRepo(db *sql.DB, logger *zap.Logger) *PostgresAlertsRepo {
	return &PostgresAlertsRepo{db: db, logger: logger}
}

func (r *PostgresAlertsRepo) InsertAlert(ctx context.Context, alert *models.Alert) (int64, error) {
	query := `INSERT INTO alerts (device_id, kind, severity, message, reading_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		alert.DeviceID,
		string(alert.Kind),
		string(alert.Severity),
		alert.Message,
		alert.ReadingID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	return id, nil
}

func (r *PostgresAlertsRepo) ListRecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, device_id, kind, severity, message, reading_id, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var kind, severity string
		var readingID sql.NullInt64
		if err := rows.Scan(&a.ID, &a.DeviceID, &kind, &severity, &a.Message, &readingID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Kind = models.AlertKind(kind)
		a.Severity = models.AlertSeverity(severity)
		if readingID.Valid {
			id := readingID.Int64
			a.ReadingID = &id
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
