package target

import (
	"context"
	"net/http"
	"strings"

	"github.com/tokmz/scatter/pkg/request"
)

// MessageIDHeader 回调请求中携带事件 ID 的请求头
const MessageIDHeader = "X-Scatter-Message-Id"

// Postback 以 HTTP 请求把事件回调给业务方
type Postback struct {
	client *request.Client
	method string
	url    string
}

// NewPostback 创建回调目标，method 为空时使用 POST
func NewPostback(client *request.Client, method, url string) (*Postback, error) {
	if url == "" {
		return nil, ErrInvalidSettings.WithMessage("postback target requires url")
	}
	method = strings.ToUpper(method)
	switch method {
	case "":
		method = http.MethodPost
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodGet:
	default:
		return nil, ErrInvalidSettings.WithMessage("unsupported postback method: " + method)
	}
	return &Postback{client: client, method: method, url: url}, nil
}

// Type 目标类型
func (t *Postback) Type() string { return TypePostback }

// Send 发送事件，非 2xx 视为失败
func (t *Postback) Send(ctx context.Context, e Event) error {
	header := http.Header{}
	header.Set(MessageIDHeader, e.ID)

	var body []byte
	if t.method != http.MethodGet {
		body = e.Body
		header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Send(ctx, t.method, t.url, body, header)
	if err != nil {
		return ErrSend.WithError(err)
	}
	if err := resp.Err(); err != nil {
		return ErrSend.WithError(err)
	}
	return nil
}

// Close 释放空闲连接
func (t *Postback) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
