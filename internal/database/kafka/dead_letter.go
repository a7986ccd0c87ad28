package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DeadLetterPublisher 封装了向死信主题投递消息的逻辑。
// 无法解析或反复处理失败的对话批次会被原样转投到这里，
// 附带失败原因，供人工排查后重放。
type DeadLetterPublisher struct {
	writer *kafka.Writer
}

// NewDeadLetterPublisher 创建一个新的 DeadLetterPublisher 实例。
func NewDeadLetterPublisher(client *KafkaClient) *DeadLetterPublisher {
	// 为死信主题创建一个新的 writer 实例配置
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      client.Config.Brokers,
		Topic:        client.Config.DeadLetterTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	})
	return &DeadLetterPublisher{writer: writer}
}

// Publish 将原始消息连同失败原因投递到死信主题。
func (p *DeadLetterPublisher) Publish(ctx context.Context, key, value []byte, reason string) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(reason)},
			{Key: "failed_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write message to dead letter topic: %w", err)
	}
	return nil
}

// Close 关闭底层的 writer 连接。
func (p *DeadLetterPublisher) Close() error {
	return p.writer.Close()
}
