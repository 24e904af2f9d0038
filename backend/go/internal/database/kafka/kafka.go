package kafka

import (
	"context"
	"fmt"
	"time"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// EnsureTopics 连接第一个 broker，创建尚不存在的主题。
func EnsureTopics(ctx context.Context, cfg *config.KafkaConfig, log *logger.Logger, topics ...string) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("未配置 Kafka brokers")
	}
	dialer := &kafka.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka 初始化连接失败: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	existing := make(map[string]struct{}, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = struct{}{}
	}

	var missing []kafka.TopicConfig
	for _, topic := range topics {
		if _, ok := existing[topic]; !ok {
			log.With("topic", topic).Info("主题不存在，准备创建")
			missing = append(missing, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := conn.CreateTopics(missing...); err != nil {
		return fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	log.Info(fmt.Sprintf("成功创建 %d 个 Kafka 主题。", len(missing)))
	return nil
}

// NewWriter 返回写入 topic 的 writer，由调用方负责 Close。
func NewWriter(cfg *config.KafkaConfig, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireOne,
	}
}
