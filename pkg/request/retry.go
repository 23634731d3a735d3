package request

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"
)

// Retry 指数退避重试
type Retry struct {
	Attempts int           // 失败后的重试次数
	Initial  time.Duration // 第一次重试前的等待
	Max      time.Duration // 单次等待上限
}

// delay 第 n 次重试（从 0 开始）前的等待，带 ±25% 抖动
func (r Retry) delay(n int) time.Duration {
	d := r.Initial
	for range n {
		d *= 2
		if r.Max > 0 && d >= r.Max {
			d = r.Max
			break
		}
	}
	if r.Max > 0 {
		d = min(d, r.Max)
	}
	jitter := time.Duration(float64(d) * 0.25 * (rand.Float64()*2 - 1))
	return max(d+jitter, 0)
}

// retryable 网络错误、429 与 5xx 可重试；调用方取消不重试
func retryable(status int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
