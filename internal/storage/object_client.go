package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/config"
)

// ObjectClient HTTP 对象存储客户端
// 对接 /object/{bucket}/{path} 风格的对象存储服务
type ObjectClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewObjectClient 创建对象存储客户端
func NewObjectClient(cfg *config.StorageConfig, logger *zap.Logger) *ObjectClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)

	if cfg.ServiceKey != "" {
		client.SetAuthToken(cfg.ServiceKey)
	}

	return &ObjectClient{httpClient: client, logger: logger}
}

func (c *ObjectClient) Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) error {
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", fmt.Sprintf("%t", opts.Upsert)).
		SetBody(data)
	if opts.CacheControl != "" {
		req.SetHeader("Cache-Control", opts.CacheControl)
	}

	resp, err := req.Post(fmt.Sprintf("/object/%s/%s", bucket, path))
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("upload %s/%s: status %d: %s", bucket, path, resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *ObjectClient) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/object/%s/%s", bucket, path))
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download %s/%s: status %d", bucket, path, resp.StatusCode())
	}
	return resp.Body(), nil
}

func (c *ObjectClient) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string][]string{"prefixes": paths}).
		Delete(fmt.Sprintf("/object/%s", bucket))
	if err != nil {
		return fmt.Errorf("remove from %s: %w", bucket, err)
	}
	if resp.IsError() {
		return fmt.Errorf("remove from %s: status %d", bucket, resp.StatusCode())
	}
	return nil
}
