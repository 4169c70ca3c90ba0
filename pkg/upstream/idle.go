package upstream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// idleTimeoutBody wraps a streaming response body and cancels the request
// when a single Read waits longer than timeout for upstream bytes. The timer
// only runs while a Read is in progress, so a slow consumer never trips it.
type idleTimeoutBody struct {
	body    io.ReadCloser
	cancel  context.CancelFunc
	timeout time.Duration
	timer   *time.Timer

	timedOut  atomic.Bool
	closeOnce sync.Once
}

func newIdleTimeoutBody(body io.ReadCloser, cancel context.CancelFunc, timeout time.Duration) *idleTimeoutBody {
	b := &idleTimeoutBody{
		body:    body,
		cancel:  cancel,
		timeout: timeout,
	}
	if timeout > 0 {
		b.timer = time.AfterFunc(timeout, b.expire)
		b.timer.Stop()
	}
	return b
}

func (b *idleTimeoutBody) expire() {
	b.timedOut.Store(true)
	b.cancel()
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	if b.timer != nil {
		b.timer.Reset(b.timeout)
	}
	n, err := b.body.Read(p)
	if b.timer != nil {
		b.timer.Stop()
	}
	if b.timedOut.Load() {
		return n, &HTTPError{Err: ErrChunkTimeout}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, &HTTPError{Err: err}
	}
	return n, err
}

// Close releases the upstream connection. It is safe to call more than once.
func (b *idleTimeoutBody) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.timer != nil {
			b.timer.Stop()
		}
		err = b.body.Close()
		b.cancel()
	})
	return err
}
