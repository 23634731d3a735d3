package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tokmz/scatter/pkg/config"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config", config: nil},
		{name: "console output", config: &Config{Level: InfoLevel, Format: JSONFormat, Console: true}},
		{name: "file output", config: &Config{File: filepath.Join(dir, "scatter.log")}},
		{name: "rotate output", config: &Config{Rotate: &RotateConfig{Filename: filepath.Join(dir, "rotate.log")}}},
		{name: "sampling", config: &Config{Console: true, Sampling: &SamplingConfig{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			require.NoError(t, err)
			require.NotNil(t, l)
			l.Info("hello", zap.String("case", tt.name))
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	rotate := &RotateConfig{Filename: "x.log"}
	sampling := &SamplingConfig{}
	c := &Config{Format: "yaml", Rotate: rotate, Sampling: sampling}
	c.setDefaults()

	assert.Equal(t, JSONFormat, c.Format)
	assert.False(t, c.Console, "rotate output configured, console stays off")
	assert.Equal(t, 100, rotate.MaxSize)
	assert.Equal(t, 30, rotate.MaxAge)
	assert.Equal(t, 10, rotate.MaxBackups)
	assert.Equal(t, 100, sampling.Initial)
	assert.Equal(t, 100, sampling.Thereafter)
}

func TestSetLevel(t *testing.T) {
	var hits int
	l, err := New(&Config{Level: InfoLevel, Hooks: []Hook{hookFunc(func() { hits++ })}})
	require.NoError(t, err)

	child := l.With(zap.String("module", "chat"))
	child.Debug("dropped")
	assert.Equal(t, 0, hits)

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
	assert.Equal(t, DebugLevel, child.Level())

	child.Debug("kept")
	assert.Equal(t, 1, hits)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"INFO", InfoLevel, true},
		{"", InfoLevel, true},
		{"warning", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"verbose", InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
			if ok && tt.in != "" && tt.in != "warning" {
				assert.Equal(t, got.String(), strings.ToLower(tt.in))
			}
		})
	}
}

func TestContextFields(t *testing.T) {
	ctx := WithConnID(WithUserID(context.Background(), 42), 7)

	uid, ok := UserIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, uint64(42), uid)

	fields := contextFields(ctx, []zap.Field{zap.String("k", "v")})
	require.Len(t, fields, 3)
	assert.Equal(t, "user_id", fields[0].Key)
	assert.Equal(t, "conn_id", fields[1].Key)
	assert.Equal(t, "k", fields[2].Key)

	_, ok = ConnIDFromContext(context.Background())
	assert.False(t, ok)
}

func TestHook(t *testing.T) {
	called := false
	l, err := New(&Config{Console: true, Hooks: []Hook{hookFunc(func() { called = true })}})
	require.NoError(t, err)

	l.InfoContext(WithUserID(context.Background(), 1), "test hook")
	assert.True(t, called)
}

func TestFileOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "out.log")
	l, err := New(&Config{Format: JSONFormat, File: file})
	require.NoError(t, err)

	l.Info("test file output", zap.String("key", "value"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"test file output"`)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var levels []zapcore.Level
	l, err := New(&Config{Hooks: []Hook{levelHook(func(lv zapcore.Level) { levels = append(levels, lv) })}})
	require.NoError(t, err)

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/bad", "/boom"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}, levels)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	assert.Equal(t, InfoLevel, l.Level())
}

type hookFunc func()

func (h hookFunc) OnWrite(zapcore.Entry, []zapcore.Field) error {
	h()
	return nil
}

type levelHook func(zapcore.Level)

func (h levelHook) OnWrite(entry zapcore.Entry, _ []zapcore.Field) error {
	h(entry.Level)
	return nil
}

func TestFromSettings(t *testing.T) {
	c := FromSettings(config.LogSettings{Level: "debug", Format: "console"})
	assert.Equal(t, DebugLevel, c.Level)
	assert.Equal(t, ConsoleFormat, c.Format)
	assert.True(t, c.Console)
	assert.Nil(t, c.Rotate)

	c = FromSettings(config.LogSettings{Level: "loud", File: "/var/log/scatter.log", Rotate: true, MaxSize: 5})
	assert.Equal(t, InfoLevel, c.Level)
	assert.False(t, c.Console)
	require.NotNil(t, c.Rotate)
	assert.Equal(t, "/var/log/scatter.log", c.Rotate.Filename)
	assert.Equal(t, 5, c.Rotate.MaxSize)

	c = FromSettings(config.LogSettings{File: "app.log", Caller: true, Sampling: true})
	assert.Equal(t, "app.log", c.File)
	assert.Nil(t, c.Rotate)
	assert.True(t, c.EnableCaller)
	require.NotNil(t, c.Sampling)
}
