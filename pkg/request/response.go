package request

import (
	"net/http"
	"strconv"
	"time"
)

// maxErrorBody 错误信息中保留的响应体长度
const maxErrorBody = 512

// Response 已读取完整响应体的响应
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// OK 是否为 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err 非 2xx 时返回带状态码与截断响应体的 ErrRequestFailed
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	body := r.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return ErrRequestFailed.WithMessage("HTTP " + strconv.Itoa(r.StatusCode) + ": " + string(body))
}
