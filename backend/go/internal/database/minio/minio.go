package minio

import (
	"context"
	"fmt"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewClient 创建 MinIO 客户端并确认 bucket 存在。minio-go 客户端无需显式关闭。
func NewClient(ctx context.Context, cfg *config.MinIOConfig, bucket string, log *logger.Logger) (*minio.Client, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("无法创建 MinIO 客户端: %w", err)
	}

	ok, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化健康检查失败: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("MinIO bucket %q 不存在", bucket)
	}
	log.With("endpoint", cfg.Endpoint).With("bucket", bucket).Info("✅ 成功连接到 MinIO!")
	return c, nil
}
