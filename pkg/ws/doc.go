// Package ws is the gorilla/websocket transport of scatter.
//
// # Features
//
//   - HTTP upgrade with origin whitelist
//   - Streaming reads: messages are handed to the router in FragmentSize chunks
//   - Asynchronous writes through a fixed write pool with per-connection FIFO outboxes
//   - Close frames carrying the router's close codes and reasons
//   - Graceful shutdown with timeout control
//
// # Basic Usage
//
//	server, err := chat.NewServer(chat.WithLogger(log))
//	if err != nil {
//	    log.Fatal("create chat server", zap.Error(err))
//	}
//	server.Start()
//
//	handler, err := ws.NewHandler(server,
//	    ws.WithWorkers(0, 4096),
//	    ws.WithFragmentSize(64*1024),
//	    ws.WithLogger(log),
//	)
//	if err != nil {
//	    log.Fatal("create ws handler", zap.Error(err))
//	}
//
//	r := gin.New()
//	r.GET("/chat", gin.WrapH(handler))
//
//	// Graceful shutdown: close connections first, then the write pool
//	_ = server.Shutdown(ctx)
//	_ = handler.Shutdown(ctx)
//
// # Concurrency
//
// Each connection has one reader goroutine started by the handler. Writes are
// queued on the connection and drained by one pool worker at a time, so the
// completion callbacks passed to Send and Ping always run on a pool worker or
// a dedicated goroutine, never inside the call itself.
package ws
