package bridgeprocess

import (
	"bytes"
	"sync"
)

// outputBuffer collects renderer stdout up to a limit. Past the limit it keeps
// accepting writes so the pipe never backs up, and reports the overflow once.
type outputBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	maxSize  int64
	exceeded bool
	onExceed func()
}

func newOutputBuffer(maxSize int64, onExceed func()) *outputBuffer {
	return &outputBuffer{maxSize: maxSize, onExceed: onExceed}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	if b.exceeded {
		b.mu.Unlock()
		return len(p), nil
	}
	if b.maxSize > 0 && int64(b.buf.Len()+len(p)) > b.maxSize {
		b.exceeded = true
		b.buf.Reset()
		b.mu.Unlock()
		if b.onExceed != nil {
			b.onExceed()
		}
		return len(p), nil
	}
	n, err := b.buf.Write(p)
	b.mu.Unlock()
	return n, err
}

func (b *outputBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

func (b *outputBuffer) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exceeded
}

// tailBuffer keeps the last maxSize bytes written to it.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	maxSize   int
	truncated bool
}

func newTailBuffer(maxSize int64) *tailBuffer {
	return &tailBuffer{maxSize: int(maxSize)}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if b.maxSize > 0 && len(b.buf) > b.maxSize {
		b.buf = append(b.buf[:0], b.buf[len(b.buf)-b.maxSize:]...)
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return "..." + string(b.buf)
	}
	return string(b.buf)
}
