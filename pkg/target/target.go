package target

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tokmz/scatter/pkg/chat"
)

// 目标类型
const (
	TypeRedis    = "redis"
	TypePostback = "postback"
	TypeKafka    = "kafka"
	TypeAMQP     = "amqp"
)

// Event 投递给外部目标的一条消息，Body 为下行 JSON，所有目标共用
type Event struct {
	ID        string
	Payload   chat.Payload
	Body      []byte
	CreatedAt time.Time
}

// NewEvent 生成带唯一 ID 的事件
func NewEvent(p chat.Payload) (Event, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, ErrEncode.WithError(err)
	}
	return Event{
		ID:        uuid.NewString(),
		Payload:   p,
		Body:      body,
		CreatedAt: time.Now(),
	}, nil
}

// Target 外部投递目标
type Target interface {
	Type() string
	Send(ctx context.Context, e Event) error
	Close() error
}
