package server

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

// Version 版本号
const Version = "0.3.0"

const banner = `
 ___  ___ __ _| |_| |_ ___ _ __    WebSocket 消息中继
/ __|/ __/ _' | __| __/ _ \ '__|   ws: %s
\__ \ (_| (_| | |_| ||  __/ |      version: %s
|___/\___\__,_|\__|\__\___|_|
`

// PrintBanner 打印启动信息与路由表
func (s *Server) PrintBanner(out io.Writer) {
	fPrint(out, banner, s.wsURL(), Version)
	fPrint(out, "\n")

	if routes := s.engine.Routes(); len(routes) > 0 {
		printRoutes(out, routes)
		fPrint(out, "\n")
	}

	fPrint(out, "[scatter] Running in %q mode | Go %s | %s/%s\n",
		s.config.Mode, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fPrint(out, "[scatter] Listening on %s\n", s.config.Addr)
}

// wsURL 拼接客户端连接地址
func (s *Server) wsURL() string {
	scheme := "ws://"
	if s.config.TLSEnabled() {
		scheme = "wss://"
	}

	addr := s.config.Addr
	switch {
	case strings.HasPrefix(addr, ":"):
		addr = "127.0.0.1" + addr
	case !strings.Contains(addr, ":"):
		addr = "127.0.0.1:" + addr
	}
	return scheme + addr + s.config.Endpoint + "?id=<user>"
}

func printRoutes(out io.Writer, routes gin.RoutesInfo) {
	width := 0
	for _, r := range routes {
		width = max(width, len(r.Path))
	}
	for _, r := range routes {
		fPrint(out, "[scatter] %-7s %-*s --> %s\n", r.Method, width, r.Path, r.Handler)
	}
}

// silenceGin 静默 Gin 的默认输出，请求日志由 logger 中间件负责
func silenceGin() {
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}

// fPrint 打印到 writer，忽略错误
func fPrint(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}
