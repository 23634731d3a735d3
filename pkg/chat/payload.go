package chat

import (
	"encoding/json"
	"strings"
)

// 消息类型
const (
	TypeText                 = "text"
	TypeBinary               = "binary"
	TypeB64Image             = "b64_image"
	TypeURLImage             = "url_image"
	TypeNotificationReceived = "notification_received"
)

// Payload 一条消息
// 解析后不可变，按接收人分发时通过 WithRecipient 复制
type Payload struct {
	Sender     UserID
	Recipients []UserID
	Type       string
	Text       string
	Data       json.RawMessage

	valid      bool
	errorCause string
	status     bool
}

type wirePayload struct {
	Sender     *UserID         `json:"sender"`
	Recipients []UserID        `json:"recipients"`
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type wireStatus struct {
	Recipient UserID `json:"recipient"`
	Type      string `json:"type"`
}

// NewPayload 构造一条有效消息
func NewPayload(sender UserID, recipients []UserID, typ, text string) Payload {
	p := Payload{
		Sender:     sender,
		Recipients: append([]UserID(nil), recipients...),
		Type:       typ,
		Text:       text,
	}
	p.validate(true)
	return p
}

// ParsePayload 解析客户端上行的 JSON
// 不返回错误：解析或校验失败时得到无效消息，原因见 Err
func ParsePayload(raw []byte) Payload {
	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return Payload{errorCause: err.Error()}
	}

	p := Payload{
		Recipients: w.Recipients,
		Type:       strings.TrimSpace(w.Type),
		Text:       w.Text,
		Data:       w.Data,
	}
	if w.Sender != nil {
		p.Sender = *w.Sender
	}
	p.validate(w.Sender != nil)
	return p
}

func (p *Payload) validate(hasSender bool) {
	switch {
	case !hasSender:
		p.errorCause = "sender required"
	case len(p.Recipients) == 0:
		p.errorCause = "recipients required"
	case p.Type == "":
		p.errorCause = "type required"
	case p.Type == TypeNotificationReceived:
		p.errorCause = "type " + TypeNotificationReceived + " is reserved"
	default:
		p.valid = true
		p.errorCause = ""
	}
}

// NewSendStatus 为 original 生成送达回执：发给原发送人，携带实际接收人
func NewSendStatus(original Payload, recipient UserID) Payload {
	return Payload{
		Sender:     recipient,
		Recipients: []UserID{original.Sender},
		Type:       TypeNotificationReceived,
		valid:      true,
		status:     true,
	}
}

// Valid 是否通过校验
func (p Payload) Valid() bool {
	return p.valid
}

// Err 校验失败原因，有效消息返回空串
func (p Payload) Err() string {
	return p.errorCause
}

// IsSendStatus 是否为送达回执
func (p Payload) IsSendStatus() bool {
	return p.status
}

// IsForBot 所有接收人均为 BotID
func (p Payload) IsForBot() bool {
	for _, r := range p.Recipients {
		if r != BotID {
			return false
		}
	}
	return true
}

// IsMine 是否由 id 发出
func (p Payload) IsMine(id UserID) bool {
	return p.Sender == id
}

// WithRecipient 返回接收人仅为 id 的副本
func (p Payload) WithRecipient(id UserID) Payload {
	p.Recipients = []UserID{id}
	return p
}

// MarshalJSON 输出下行格式
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.status {
		return json.Marshal(wireStatus{Recipient: p.Sender, Type: p.Type})
	}
	sender := p.Sender
	return json.Marshal(wirePayload{
		Sender:     &sender,
		Recipients: p.Recipients,
		Type:       p.Type,
		Text:       p.Text,
		Data:       p.Data,
	})
}

// Record 持久化形式，回执与无效消息也可完整还原
type Record struct {
	Sender     UserID          `json:"sender"`
	Recipients []UserID        `json:"recipients"`
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Status     bool            `json:"status,omitempty"`
}

// Record 转换为持久化形式
func (p Payload) Record() Record {
	return Record{
		Sender:     p.Sender,
		Recipients: p.Recipients,
		Type:       p.Type,
		Text:       p.Text,
		Data:       p.Data,
		Status:     p.status,
	}
}

// FromRecord 从持久化形式还原，仅写入过有效消息，因此还原结果总是有效
func FromRecord(r Record) Payload {
	return Payload{
		Sender:     r.Sender,
		Recipients: r.Recipients,
		Type:       r.Type,
		Text:       r.Text,
		Data:       r.Data,
		valid:      true,
		status:     r.Status,
	}
}
