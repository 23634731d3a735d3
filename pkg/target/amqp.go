package target

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher *amqp.Channel 的发布能力
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP 发布到交换机
type AMQP struct {
	conn       *amqp.Connection // 自建连接，可为 nil
	ch         Publisher
	exchange   string
	routingKey string
}

// DialAMQP 建立连接并打开通道
func DialAMQP(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, ErrInvalidSettings.WithMessage("dial amqp failed").WithError(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, ErrInvalidSettings.WithMessage("open amqp channel failed").WithError(err)
	}
	return conn, ch, nil
}

// NewAMQP 创建 AMQP 目标，conn 非空时 Close 一并关闭
func NewAMQP(conn *amqp.Connection, ch Publisher, exchange, routingKey string) (*AMQP, error) {
	if exchange == "" && routingKey == "" {
		return nil, ErrInvalidSettings.WithMessage("amqp target requires exchange or routingKey")
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

// Type 目标类型
func (t *AMQP) Type() string { return TypeAMQP }

// Send 发布一条持久化消息
func (t *AMQP) Send(ctx context.Context, e Event) error {
	err := t.ch.PublishWithContext(ctx, t.exchange, t.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.CreatedAt,
		Type:         e.Payload.Type,
		Body:         e.Body,
	})
	if err != nil {
		return ErrSend.WithError(err)
	}
	return nil
}

// Close 关闭通道与连接
func (t *AMQP) Close() error {
	err := t.ch.Close()
	if t.conn != nil {
		err = errors.Join(err, t.conn.Close())
	}
	return err
}
