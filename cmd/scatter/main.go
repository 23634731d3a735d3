package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tokmz/scatter/pkg/server"
)

func main() {
	var (
		configPath  string
		showVersion bool
		quiet       bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，为空时只使用默认值与 SCATTER_* 环境变量")
	pflag.BoolVarP(&showVersion, "version", "v", false, "打印版本号并退出")
	pflag.BoolVarP(&quiet, "quiet", "q", false, "不打印启动 banner")
	pflag.Parse()

	if showVersion {
		fmt.Println("scatter", server.Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configPath, !quiet); err != nil {
		fmt.Fprintln(os.Stderr, "scatter:", err)
		os.Exit(1)
	}
}
