package kafka

import (
	"context"

	"github.com/Shopify/sarama"
)

// SendSync 同步发送：key 决定分区，保证同一会话的事件有序
func SendSync(topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := Producer.SendMessage(msg)
	return err
}

// SyncPublisher 适配投递事件发布接口（module/message.Publisher）
type SyncPublisher struct{}

func (SyncPublisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	return SendSync(topic, key, payload)
}
