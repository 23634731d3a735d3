package request

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func fastRetry(n int) []Option {
	return []Option{WithRetries(n), WithBackoff(time.Millisecond, 5*time.Millisecond)}
}

func TestSendBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "m-1", r.Header.Get("X-Message-Id"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"sender":7}`, string(body))
		w.Header().Set("X-Reply", "yes")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Message-Id", "m-1")

	resp, err := New().Send(context.Background(), http.MethodPut, srv.URL, []byte(`{"sender":7}`), header)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.NoError(t, resp.Err())
	assert.Equal(t, "yes", resp.Header.Get("X-Reply"))
	assert.Equal(t, "queued", string(resp.Body))
	assert.Positive(t, resp.Duration)
}

func TestRetryUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body), "body replayed on every attempt")
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := New(fastRetry(3)...).Send(context.Background(), http.MethodPost, srv.URL, []byte("payload"), nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryExhaustedReturnsLastResponse(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	resp, err := New(fastRetry(2)...).Send(context.Background(), http.MethodPost, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load()) // 1 次请求 + 2 次重试

	err = resp.Err()
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "HTTP 502: upstream down")
}

func TestRetryOnTooManyRequests(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := New(fastRetry(1)...).Send(context.Background(), http.MethodPost, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestNoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	resp, err := New(fastRetry(3)...).Send(context.Background(), http.MethodPost, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestNetworkErrorExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(fastRetry(1)...).Send(context.Background(), http.MethodGet, url, nil, nil)
	assert.ErrorIs(t, err, ErrMaxRetry)

	_, err = New().Send(context.Background(), http.MethodGet, url, nil, nil)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestRetryDelayBounded(t *testing.T) {
	r := Retry{Initial: 100 * time.Millisecond, Max: time.Second}
	for n := range 12 {
		d := r.delay(n)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
	assert.LessOrEqual(t, r.delay(0), 125*time.Millisecond)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(0, io.ErrUnexpectedEOF))
	assert.False(t, retryable(0, context.Canceled))
	assert.True(t, retryable(http.StatusInternalServerError, nil))
	assert.True(t, retryable(http.StatusTooManyRequests, nil))
	assert.False(t, retryable(http.StatusBadRequest, nil))
	assert.False(t, retryable(http.StatusOK, nil))
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := New(WithTimeout(50*time.Millisecond)).Send(context.Background(), http.MethodGet, srv.URL, nil, nil)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fastRetry(3)...).Send(ctx, http.MethodGet, srv.URL, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBeforeHooks(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer dynamic-token", r.Header.Get("Authorization"))
		c, err := r.Cookie("session")
		require.NoError(t, err)
		assert.Equal(t, "abc", c.Value)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(
		WithBefore(func(r *http.Request) { r.Header.Set("Authorization", "Bearer dynamic-token") }),
		WithBefore(func(r *http.Request) {
			calls.Add(1)
			r.AddCookie(&http.Cookie{Name: "session", Value: "abc"})
		}),
	)
	resp, err := client.Send(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvalidRequest(t *testing.T) {
	_, err := New().Send(context.Background(), http.MethodGet, "http://[::1", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = New().Send(context.Background(), "BAD METHOD", "http://localhost", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("traceparent"))
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(WithTracing(true)).Send(context.Background(), http.MethodPost, srv.URL, nil, nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST", spans[0].Name())
	assert.Equal(t, "Internal Server Error", spans[0].Status().Description)
}
