// Package storage 对象存储访问层（实时帧缓存与存档快照的 blob 存取）
package storage

import "context"

// UploadOptions 上传选项
type UploadOptions struct {
	ContentType  string
	Upsert       bool   // true: 覆盖写（实时缓存）；false: 仅新建（存档快照）
	CacheControl string // 如 "no-store"
}

// BlobStore 对象存储接口
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) error
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	// Remove 批量删除；不存在的路径不算错误
	Remove(ctx context.Context, bucket string, paths []string) error
}
