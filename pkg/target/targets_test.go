package target

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/scatter/pkg/auth"
	"github.com/tokmz/scatter/pkg/chat"
	"github.com/tokmz/scatter/pkg/config"
)

func event(t *testing.T) Event {
	t.Helper()
	e, err := NewEvent(chat.NewPayload(7, []chat.UserID{9}, chat.TypeText, "hi"))
	require.NoError(t, err)
	return e
}

func TestPostbackSend(t *testing.T) {
	e := event(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, e.ID, r.Header.Get(MessageIDHeader))
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, string(e.Body), string(body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tg, err := New(context.Background(), config.TargetSettings{
		Type:   TypePostback,
		URL:    srv.URL + "/hook",
		Method: "put",
		Auth:   config.AuthSettings{Type: auth.TypeBearer, Value: "s3cret"},
	}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, TypePostback, tg.Type())
	assert.NoError(t, tg.Send(context.Background(), e))
	assert.NoError(t, tg.Close())
}

func TestPostbackJWTAuth(t *testing.T) {
	verifier := auth.NewJWT("key", "", false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !verifier.Validate(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg, err := New(context.Background(), config.TargetSettings{
		Type: TypePostback,
		URL:  srv.URL,
		Auth: config.AuthSettings{Type: auth.TypeJWT, Secret: "key"},
	}, Deps{})
	require.NoError(t, err)
	assert.NoError(t, tg.Send(context.Background(), event(t)))
}

func TestPostbackRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	tg, err := New(context.Background(), config.TargetSettings{Type: TypePostback, URL: srv.URL, Retries: 2}, Deps{})
	require.NoError(t, err)
	err = tg.Send(context.Background(), event(t))
	assert.ErrorIs(t, err, ErrSend)
	assert.Contains(t, err.Error(), "nope")
}

func TestNewPostbackValidation(t *testing.T) {
	_, err := NewPostback(nil, "", "")
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = NewPostback(nil, "TRACE", "http://x")
	assert.ErrorIs(t, err, ErrInvalidSettings)

	p, err := NewPostback(nil, "", "http://x")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, p.method)
}

func TestKafkaSend(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	e := event(t)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "chat-events", msg.Topic)
		key, _ := msg.Key.Encode()
		assert.Equal(t, "7", string(key))
		value, _ := msg.Value.Encode()
		assert.Equal(t, e.Body, value)
		require.Len(t, msg.Headers, 2)
		assert.Equal(t, e.ID, string(msg.Headers[0].Value))
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	tg, err := NewKafka(producer, "chat-events")
	require.NoError(t, err)
	assert.NoError(t, tg.Send(context.Background(), e))
	assert.ErrorIs(t, tg.Send(context.Background(), e), ErrSend)
	assert.NoError(t, tg.Close())
}

func TestKafkaCanceledContext(t *testing.T) {
	tg, err := NewKafka(mocks.NewSyncProducer(t, nil), "topic")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tg.Send(ctx, event(t)), context.Canceled)
	assert.NoError(t, tg.Close())

	_, err = NewKafka(nil, "")
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
	closed        bool
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestAMQPSend(t *testing.T) {
	pub := &fakePublisher{}
	tg, err := NewAMQP(nil, pub, "scatter", "chat.text")
	require.NoError(t, err)

	e := event(t)
	require.NoError(t, tg.Send(context.Background(), e))
	assert.Equal(t, "scatter", pub.exchange)
	assert.Equal(t, "chat.text", pub.key)
	assert.Equal(t, e.ID, pub.msg.MessageId)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, e.Body, pub.msg.Body)

	pub.err = amqp.ErrClosed
	err = tg.Send(context.Background(), e)
	assert.ErrorIs(t, err, ErrSend)
	assert.ErrorIs(t, err, amqp.ErrClosed)

	require.NoError(t, tg.Close())
	assert.True(t, pub.closed)

	_, err = NewAMQP(nil, pub, "", "")
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestNewRedisModes(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	tests := []struct {
		mode, name string
		wantMode   string
		wantName   string
		wantErr    bool
	}{
		{"", "", RedisModeQueue, DefaultRedisQueue, false},
		{RedisModeQueue, "events", RedisModeQueue, "events", false},
		{RedisModeChannel, "", RedisModeChannel, DefaultRedisChannel, false},
		{"stream", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			tg, err := NewRedis(client, tt.mode, tt.name, false)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSettings)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, tg.Mode())
			assert.Equal(t, tt.wantName, tg.Name())
		})
	}

	_, err := NewRedis(nil, "", "", false)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestRedisSendUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	tg, err := NewRedis(client, RedisModeQueue, "", true)
	require.NoError(t, err)

	assert.ErrorIs(t, tg.Send(context.Background(), event(t)), ErrSend)
	require.NoError(t, tg.Close())
}

// 需要可用的 Redis：SCATTER_TEST_REDIS=127.0.0.1:6379
func TestRedisSend(t *testing.T) {
	addr := os.Getenv("SCATTER_TEST_REDIS")
	if addr == "" {
		t.Skip("SCATTER_TEST_REDIS not set")
	}
	ctx := context.Background()
	name := "scatter:test:events:" + time.Now().Format("150405.000000")

	tg, err := New(ctx, config.TargetSettings{
		Type:  TypeRedis,
		Mode:  RedisModeQueue,
		Name:  name,
		Redis: &config.RedisSettings{Addrs: []string{addr}},
	}, Deps{})
	require.NoError(t, err)
	defer tg.Close()

	e := event(t)
	require.NoError(t, tg.Send(ctx, e))

	client := tg.(*Redis).client
	defer client.Del(ctx, name)
	got, err := client.LPop(ctx, name).Result()
	require.NoError(t, err)
	assert.Equal(t, string(e.Body), got)
}

func TestFactoryErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		s    config.TargetSettings
		want error
	}{
		{"unknown", config.TargetSettings{Type: "sqs"}, ErrUnknownType},
		{"redis without client", config.TargetSettings{Type: TypeRedis}, ErrInvalidSettings},
		{"postback without url", config.TargetSettings{Type: TypePostback}, ErrInvalidSettings},
		{"postback bad auth", config.TargetSettings{Type: TypePostback, URL: "http://x", Auth: config.AuthSettings{Type: "magic"}}, auth.ErrUnknownType},
		{"kafka without brokers", config.TargetSettings{Type: TypeKafka, Topic: "t"}, ErrInvalidSettings},
		{"amqp without url", config.TargetSettings{Type: TypeAMQP}, ErrInvalidSettings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(ctx, tt.s, Deps{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewAllClosesOnFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	targets, err := NewAll(context.Background(), []config.TargetSettings{
		{Type: TypeRedis, Mode: RedisModeChannel},
		{Type: TypePostback, URL: "http://x"},
	}, Deps{Redis: client})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, TypeRedis, targets[0].Type())

	_, err = NewAll(context.Background(), []config.TargetSettings{
		{Type: TypeRedis},
		{Type: "sqs"},
	}, Deps{Redis: client})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), "targets[1]")
	assert.NotErrorIs(t, client.Ping(context.Background()).Err(), redis.ErrClosed, "shared client stays open")
}
