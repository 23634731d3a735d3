package chat

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// fakeConn 记录写入的连接，写回调在独立协程中执行
type fakeConn struct {
	id ConnID

	mu          sync.Mutex
	sent        [][]byte
	pings       int
	closed      bool
	closeCode   int
	closeReason string
	sendErr     error
	pingErr     error
	onPing      func()

	pending sync.WaitGroup
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: NextConnID()}
}

func (c *fakeConn) ID() ConnID         { return c.id }
func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:0" }

func (c *fakeConn) Send(data []byte, done func(error)) {
	c.mu.Lock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	err := c.sendErr
	c.mu.Unlock()

	c.complete(done, err)
}

func (c *fakeConn) Ping(done func(error)) {
	c.mu.Lock()
	c.pings++
	err := c.pingErr
	onPing := c.onPing
	c.mu.Unlock()

	c.complete(func(err error) {
		if done != nil {
			done(err)
		}
		if err == nil && onPing != nil {
			onPing()
		}
	}, err)
}

func (c *fakeConn) complete(done func(error), err error) {
	if done == nil {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		done(err)
	}()
}

func (c *fakeConn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
}

// wait 等待已发起的写回调全部执行完
func (c *fakeConn) wait() {
	c.pending.Wait()
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, b := range c.sent {
		out[i] = string(b)
	}
	return out
}

func (c *fakeConn) closeState() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode, c.closeReason
}

func (c *fakeConn) setSendErr(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// connectRequest 构造携带 ?id= 的握手请求
func connectRequest(query string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/chat"+query, nil)
}
