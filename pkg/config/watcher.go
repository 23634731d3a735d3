package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

func (l *Loader) watch() {
	l.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if !l.IsWatching() {
			return
		}

		s, err := l.decode()
		if err != nil {
			l.reportError(err)
			return
		}
		l.onReload(s)
	})

	l.mu.Lock()
	l.watching = true
	l.mu.Unlock()
	l.viper.WatchConfig()
}

// IsWatching 是否正在监控配置文件
func (l *Loader) IsWatching() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watching
}

// Close 停止回调
// viper 不提供停止底层 fsnotify watcher 的方法，这里只让回调失效
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watching = false
}

func (l *Loader) reportError(err error) {
	if l.onError != nil {
		l.onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "[config] reload failed: %v\n", err)
}
