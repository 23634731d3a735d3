package config

import (
	"io/fs"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/tokmz/scatter/pkg/errors"
)

// Loader 合并默认值、配置文件与 SCATTER_* 环境变量并解析为 Settings
// 优先级：环境变量 > 配置文件 > 默认值
type Loader struct {
	viper *viper.Viper
	path  string

	mu       sync.Mutex
	watching bool
	onReload func(*Settings)
	onError  func(error)
}

// LoaderOption 加载选项
type LoaderOption func(*Loader)

// WithOnReload 配置文件变更并重新解析成功后回调
func WithOnReload(fn func(*Settings)) LoaderOption {
	return func(l *Loader) { l.onReload = fn }
}

// WithOnError 重新加载失败时回调，默认写 stderr
func WithOnError(fn func(error)) LoaderOption {
	return func(l *Loader) { l.onError = fn }
}

// NewLoader 创建加载器，path 为空时只使用默认值与环境变量
func NewLoader(path string, opts ...LoaderOption) *Loader {
	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l := &Loader{viper: v, path: path}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load 读取并校验配置；设置了 onReload 且有配置文件时开始监控
func (l *Loader) Load() (*Settings, error) {
	if l.path != "" {
		l.viper.SetConfigFile(l.path)
		if err := l.viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return nil, ErrConfigNotFound.WithError(err)
			}
			return nil, ErrConfigReadFailed.WithError(err)
		}
	}

	s, err := l.decode()
	if err != nil {
		return nil, err
	}
	if l.path != "" && l.onReload != nil {
		l.watch()
	}
	return s, nil
}

func (l *Loader) decode() (*Settings, error) {
	s := &Settings{}
	if err := l.viper.Unmarshal(s); err != nil {
		return nil, ErrConfigDecodeFailed.WithError(err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ConfigFileUsed 实际读取的配置文件
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

// LoadSettings 创建加载器并完成首次加载
// onReload 非空时监控配置文件，变更后以新的 Settings 回调
func LoadSettings(path string, onReload func(*Settings)) (*Settings, *Loader, error) {
	l := NewLoader(path, WithOnReload(onReload))
	s, err := l.Load()
	if err != nil {
		return nil, nil, err
	}
	return s, l, nil
}
