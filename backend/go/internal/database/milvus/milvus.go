package milvus

import (
	"context"
	"fmt"
	"strings"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/pkg/logger"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。
	log    *logger.Logger
}

// NewClient 创建一个新的 Milvus 客户端。每次调用都会建立独立的连接，由调用方负责 Close。
func NewClient(ctx context.Context, cfg *config.MilvusConfig, log *logger.Logger) (*MilvusClient, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		APIKey:   cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("无法连接到 Milvus %s: %w", cfg.Address, err)
	}
	log.With("address", cfg.Address).Info("✅ 成功连接到 Milvus!")
	return &MilvusClient{Client: c, Config: cfg, log: log}, nil
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() error {
	if c.Client == nil {
		return nil
	}
	err := c.Client.Close()
	c.log.Info("ℹ️ 已安全关闭 Milvus 连接。")
	return err
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// FlushCollection 手动触发一次刷新操作，使新写入的数据计入统计。
func (c *MilvusClient) FlushCollection(ctx context.Context, collName string) error {
	if err := c.Client.Flush(ctx, collName, false); err != nil {
		return fmt.Errorf("刷新集合 '%s' 失败: %w", collName, err)
	}
	return nil
}

// BuildIndex 根据索引类型和参数构建向量索引实体。未给出的参数使用默认值。
func BuildIndex(indexType string, metric entity.MetricType, params map[string]int) (entity.Index, error) {
	switch strings.ToUpper(indexType) {
	case "", "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(metric)
	case "FLAT":
		return entity.NewIndexFlat(metric)
	case "IVF_FLAT":
		return entity.NewIndexIvfFlat(metric, param(params, "nlist", 128))
	case "IVF_SQ8":
		return entity.NewIndexIvfSQ8(metric, param(params, "nlist", 128))
	case "HNSW":
		return entity.NewIndexHNSW(metric, param(params, "M", 8), param(params, "efConstruction", 96))
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", indexType)
	}
}

// BuildSearchParam 返回与索引类型匹配的搜索参数。
func BuildSearchParam(indexType string, params map[string]int) (entity.SearchParam, error) {
	switch strings.ToUpper(indexType) {
	case "", "AUTOINDEX":
		return entity.NewIndexAUTOINDEXSearchParam(param(params, "level", 1))
	case "FLAT":
		return entity.NewIndexFlatSearchParam()
	case "IVF_FLAT":
		return entity.NewIndexIvfFlatSearchParam(param(params, "nprobe", 16))
	case "IVF_SQ8":
		return entity.NewIndexIvfSQ8SearchParam(param(params, "nprobe", 16))
	case "HNSW":
		return entity.NewIndexHNSWSearchParam(param(params, "ef", 64))
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", indexType)
	}
}

func param(params map[string]int, key string, def int) int {
	if v, ok := params[key]; ok && v > 0 {
		return v
	}
	return def
}
