// Package transport holds the asynchronous sender used by outbound record
// sinks such as the NATS publisher.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrAsyncTxClosed = errors.New("async tx closed")

// Hooks customize AsyncTx behavior. All hooks are optional.
type Hooks struct {
	// OnError is called when send returns a non-nil error.
	OnError func(error)
	// OnAfter is called after each successful send.
	OnAfter func()
	// OnDrop is called when the queue is full; its returned error is returned
	// from Send.
	OnDrop func() error
}

// TxStats counts what happened to values handed to an AsyncTx.
type TxStats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

// AsyncTx hands values of type T to send from a single worker goroutine.
// Send never blocks: a full queue drops the value.
//
// Close stops intake and waits until the worker has sent what was queued.
// Cancelling the parent context abandons the queue instead.
type AsyncTx[T any] struct {
	ctx  context.Context
	stop context.CancelFunc
	send func(T) error
	hk   Hooks

	mu     sync.RWMutex // guards closed and the close of queue
	closed bool
	queue  chan T
	done   chan struct{}

	sent, failed, dropped atomic.Uint64
}

// NewAsyncTx starts the worker with a queue of buf values.
func NewAsyncTx[T any](parent context.Context, buf int, send func(T) error, hooks Hooks) *AsyncTx[T] {
	ctx, stop := context.WithCancel(parent)
	a := &AsyncTx[T]{
		ctx:   ctx,
		stop:  stop,
		send:  send,
		hk:    hooks,
		queue: make(chan T, buf),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncTx[T]) run() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return
		case v, ok := <-a.queue:
			if !ok || a.ctx.Err() != nil {
				return
			}
			a.deliver(v)
		}
	}
}

func (a *AsyncTx[T]) deliver(v T) {
	if err := a.send(v); err != nil {
		a.failed.Add(1)
		if a.hk.OnError != nil {
			a.hk.OnError(err)
		}
		return
	}
	a.sent.Add(1)
	if a.hk.OnAfter != nil {
		a.hk.OnAfter()
	}
}

// Send queues v. It returns the OnDrop error when the queue is full and
// ErrAsyncTxClosed after Close.
func (a *AsyncTx[T]) Send(v T) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrAsyncTxClosed
	}
	select {
	case a.queue <- v:
		return nil
	default:
	}
	a.dropped.Add(1)
	if a.hk.OnDrop != nil {
		return a.hk.OnDrop()
	}
	return nil
}

// Len reports the number of queued values.
func (a *AsyncTx[T]) Len() int { return len(a.queue) }

func (a *AsyncTx[T]) Stats() TxStats {
	return TxStats{Sent: a.sent.Load(), Failed: a.failed.Load(), Dropped: a.dropped.Load()}
}

// Close stops intake, lets the worker finish the queue and releases the
// context. It is safe to call more than once.
func (a *AsyncTx[T]) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	a.stop()
}
