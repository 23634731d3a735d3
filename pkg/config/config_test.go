package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/scatter/pkg/errors"
)

const testYAML = `
server:
  address: ":9000"
  workers: 4
  watchdog:
    lifetime: 30s
chat:
  maxMessageSize: 1024
  enableSendBack: true
  undelivered:
    driver: redis
    maxPerUser: 50
auth:
  type: bearer
  value: secret-token
targets:
  - type: redis
    mode: channel
    name: events
  - type: postback
    url: http://localhost:8081/hook
    method: POST
log:
  level: debug
`

func writeTestConfig(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoaderFileUsed(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "config.yaml", testYAML)

	l := NewLoader(cfgPath)
	s, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", s.Server.Address)
	assert.Equal(t, cfgPath, l.ConfigFileUsed())
	assert.False(t, l.IsWatching(), "no reload callback, no watch")
}

func TestConfigFileNotFound(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestConfigFileBroken(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "config.yaml", "server: [unclosed")
	_, err := NewLoader(cfgPath).Load()
	assert.True(t, errors.Is(err, ErrConfigReadFailed))
}

func TestLoadSettings(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "config.yaml", testYAML)

	s, c, err := LoadSettings(cfgPath, nil)
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, ":9000", s.Server.Address)
	assert.Equal(t, "/chat", s.Server.Endpoint, "default kept")
	assert.Equal(t, 4, s.Server.Workers)
	assert.True(t, s.Server.Watchdog.Enabled)
	assert.Equal(t, time.Minute, s.Server.Watchdog.Interval)
	assert.Equal(t, 30*time.Second, s.Server.Watchdog.Lifetime)
	assert.Equal(t, 2*time.Second, s.Server.Watchdog.PongGrace)

	assert.Equal(t, int64(1024), s.Chat.MaxMessageSize)
	assert.True(t, s.Chat.EnableSendBack)
	assert.True(t, s.Chat.EnableUndeliveredQueue)
	assert.Equal(t, "redis", s.Chat.Undelivered.Driver)
	assert.Equal(t, 50, s.Chat.Undelivered.MaxPerUser)

	assert.Equal(t, "bearer", s.Auth.Type)
	assert.Equal(t, "secret-token", s.Auth.Value)

	require.Len(t, s.Targets, 2)
	assert.Equal(t, "channel", s.Targets[0].Mode)
	assert.Equal(t, "events", s.Targets[0].Name)
	assert.Equal(t, "http://localhost:8081/hook", s.Targets[1].URL)

	assert.Equal(t, "debug", s.Log.Level)
	assert.False(t, s.Server.TLS.Enabled())
}

func TestLoadSettingsDefaultsOnly(t *testing.T) {
	s, _, err := LoadSettings("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.Server.Address)
	assert.Equal(t, int64(10*1024*1024), s.Chat.MaxMessageSize)
	assert.Equal(t, "memory", s.Chat.Undelivered.Driver)
	assert.Equal(t, "noauth", s.Auth.Type)
	assert.Empty(t, s.Targets)
}

func TestLoadSettingsEnvOverride(t *testing.T) {
	t.Setenv("SCATTER_SERVER_ADDRESS", ":7000")
	t.Setenv("SCATTER_CHAT_ENABLEDELIVERYSTATUS", "true")

	s, _, err := LoadSettings("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":7000", s.Server.Address)
	assert.True(t, s.Chat.EnableDeliveryStatus)
}

func TestSettingsValidate(t *testing.T) {
	base := func() *Settings {
		s, _, err := LoadSettings("", nil)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero max message size", func(s *Settings) { s.Chat.MaxMessageSize = 0 }},
		{"zero fragment size", func(s *Settings) { s.Server.FragmentSize = 0 }},
		{"relative endpoint", func(s *Settings) { s.Server.Endpoint = "chat" }},
		{"unknown driver", func(s *Settings) { s.Chat.Undelivered.Driver = "etcd" }},
		{"watchdog without interval", func(s *Settings) { s.Server.Watchdog.Interval = 0 }},
		{"watchdog without pong grace", func(s *Settings) { s.Server.Watchdog.PongGrace = 0 }},
		{"unknown target", func(s *Settings) { s.Targets = []TargetSettings{{Type: "smtp"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			require.NoError(t, s.Validate())
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSettings))
		})
	}
}

func TestLoadSettingsReload(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "config.yaml", testYAML)

	reloaded := make(chan *Settings, 16)
	_, c, err := LoadSettings(cfgPath, func(s *Settings) {
		select {
		case reloaded <- s:
		default:
		}
	})
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.IsWatching())

	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: warn\n"), 0644))

	timeout := time.After(3 * time.Second)
	for {
		select {
		case s := <-reloaded:
			if s.Log.Level == "warn" {
				return
			}
		case <-timeout:
			t.Fatal("reload callback was not triggered within timeout")
		}
	}
}

func TestReloadInvalidReportsError(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "config.yaml", testYAML)

	failures := make(chan error, 16)
	l := NewLoader(cfgPath,
		WithOnReload(func(*Settings) {}),
		WithOnError(func(err error) {
			select {
			case failures <- err:
			default:
			}
		}),
	)
	_, err := l.Load()
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, os.WriteFile(cfgPath, []byte("chat:\n  maxMessageSize: -1\n"), 0644))

	select {
	case err := <-failures:
		assert.True(t, errors.Is(err, ErrInvalidSettings))
	case <-time.After(3 * time.Second):
		t.Fatal("reload error was not reported within timeout")
	}
}

func TestNoWatchWithoutFile(t *testing.T) {
	_, l, err := LoadSettings("", func(*Settings) {})
	require.NoError(t, err)
	assert.False(t, l.IsWatching())
	assert.Empty(t, l.ConfigFileUsed())
}
