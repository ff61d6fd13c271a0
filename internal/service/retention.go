package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/repository"
	"github.com/klienn/swinetrack/internal/storage"
)

// RetentionSweeper 周期清理过期的存档快照与读数
// 每台设备可配置 snapshot_retention_days；未配置的用全局默认值
type RetentionSweeper struct {
	devices   repository.DevicesRepo
	readings  repository.ReadingsRepo
	snapshots repository.SnapshotsRepo
	blobs     storage.BlobStore

	bucket      string
	defaultDays int
	interval    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewRetentionSweeper 创建清理器
func NewRetentionSweeper(
	devices repository.DevicesRepo,
	readings repository.ReadingsRepo,
	snapshots repository.SnapshotsRepo,
	blobs storage.BlobStore,
	bucket string,
	defaultDays int,
	interval time.Duration,
	logger *zap.Logger,
) *RetentionSweeper {
	return &RetentionSweeper{
		devices:     devices,
		readings:    readings,
		snapshots:   snapshots,
		blobs:       blobs,
		bucket:      bucket,
		defaultDays: defaultDays,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock 覆盖时钟（仅测试用）
func (s *RetentionSweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Run 周期执行清理直到 ctx 取消
func (s *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce 执行一轮清理：先删对象再删行，保证不会留下指向已删对象的行
func (s *RetentionSweeper) RunOnce(ctx context.Context) error {
	perDevice, err := s.devices.RetentionDays(ctx)
	if err != nil {
		return err
	}

	snapshots, err := s.snapshots.ListSnapshots(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	expiredByPath := map[string][]string{} // 目前单桶，键留作多桶扩展
	var expiredIDs []int64

	for _, snap := range snapshots {
		days, ok := perDevice[snap.DeviceID]
		if !ok {
			days = s.defaultDays
		}
		if days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -days)
		if snap.Timestamp.Before(cutoff) {
			expiredIDs = append(expiredIDs, snap.ID)
			if snap.ObjectPath != "" {
				expiredByPath[s.bucket] = append(expiredByPath[s.bucket], snap.ObjectPath)
			}
		}
	}

	if len(expiredIDs) == 0 {
		return s.readings.PurgeOldReadings(ctx)
	}

	for bucket, paths := range expiredByPath {
		if err := s.blobs.Remove(ctx, bucket, paths); err != nil {
			return err
		}
	}

	if err := s.snapshots.DeleteSnapshots(ctx, expiredIDs); err != nil {
		return err
	}

	s.logger.Info("retention sweep completed",
		zap.Int("snapshots_deleted", len(expiredIDs)),
	)

	return s.readings.PurgeOldReadings(ctx)
}
