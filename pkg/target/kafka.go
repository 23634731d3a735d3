package target

import (
	"context"

	"github.com/IBM/sarama"
)

// Kafka 以同步生产者写入 topic，按发送者分区
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer 创建等待全部副本确认的同步生产者
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_1_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, ErrInvalidSettings.WithMessage("create kafka producer failed").WithError(err)
	}
	return producer, nil
}

// NewKafka 创建 Kafka 目标
func NewKafka(producer sarama.SyncProducer, topic string) (*Kafka, error) {
	if topic == "" {
		return nil, ErrInvalidSettings.WithMessage("kafka target requires topic")
	}
	return &Kafka{producer: producer, topic: topic}, nil
}

// Type 目标类型
func (t *Kafka) Type() string { return TypeKafka }

// Send 写入一条事件
func (t *Kafka) Send(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return ErrSend.WithError(err)
	}

	msg := &sarama.ProducerMessage{
		Topic: t.topic,
		Key:   sarama.StringEncoder(e.Payload.Sender.String()),
		Value: sarama.ByteEncoder(e.Body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_id"), Value: []byte(e.ID)},
			{Key: []byte("type"), Value: []byte(e.Payload.Type)},
		},
		Timestamp: e.CreatedAt,
	}
	if _, _, err := t.producer.SendMessage(msg); err != nil {
		return ErrSend.WithError(err)
	}
	return nil
}

// Close 关闭生产者
func (t *Kafka) Close() error {
	return t.producer.Close()
}
