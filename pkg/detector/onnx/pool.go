package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultPoolSize = 2
	AcquireTimeout  = 30 * time.Second
)

var ErrPoolClosed = errors.New("session pool is closed")

// closer is what the pool needs from a pooled item.
type closer interface {
	Destroy()
}

// sessionPool hands out each session to one caller at a time. A session
// owns its bound input/output tensors, so it cannot be shared concurrently.
type sessionPool[T closer] struct {
	sessions chan T
	size     int
	mu       sync.RWMutex
	closed   bool
}

func newSessionPool[T closer](size int, create func() (T, error)) (*sessionPool[T], error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &sessionPool[T]{
		sessions: make(chan T, size),
		size:     size,
	}

	for i := 0; i < size; i++ {
		s, err := create()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- s
	}

	return pool, nil
}

func (p *sessionPool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return zero, ErrPoolClosed
	}

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case s, ok := <-p.sessions:
		if !ok {
			return zero, ErrPoolClosed
		}
		return s, nil
	case <-timer.C:
		return zero, fmt.Errorf("timeout waiting for available session")
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *sessionPool[T]) Release(s T) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		s.Destroy()
		return
	}
	p.sessions <- s
}

// Destroy closes the pool and destroys idle sessions. Sessions still held by
// callers are destroyed on Release.
func (p *sessionPool[T]) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.sessions)

	for s := range p.sessions {
		s.Destroy()
	}
}
