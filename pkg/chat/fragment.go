package chat

import (
	"bytes"
	"sync"
)

// fragmentBuffer 按连接暂存分片消息，独立于注册表加锁
type fragmentBuffer struct {
	mu      sync.Mutex
	buffers map[ConnID]*bytes.Buffer
}

func newFragmentBuffer() *fragmentBuffer {
	return &fragmentBuffer{buffers: make(map[ConnID]*bytes.Buffer)}
}

// begin 开始（或重置）连接的分片缓冲
func (f *fragmentBuffer) begin(id ConnID, data []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf := &bytes.Buffer{}
	buf.Write(data)
	f.buffers[id] = buf
	return buf.Len()
}

// append 追加分片，没有已开始的缓冲时返回 ErrFragmentNotOpen
func (f *fragmentBuffer) append(id ConnID, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf, ok := f.buffers[id]
	if !ok {
		return 0, ErrFragmentNotOpen
	}
	buf.Write(data)
	return buf.Len(), nil
}

// end 追加最后一个分片，取出并清空缓冲
func (f *fragmentBuffer) end(id ConnID, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf, ok := f.buffers[id]
	if !ok {
		return nil, ErrFragmentNotOpen
	}
	delete(f.buffers, id)
	buf.Write(data)
	return buf.Bytes(), nil
}

func (f *fragmentBuffer) drop(id ConnID) {
	f.mu.Lock()
	delete(f.buffers, id)
	f.mu.Unlock()
}

func (f *fragmentBuffer) has(id ConnID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.buffers[id]
	return ok
}
