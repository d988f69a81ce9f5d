package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var (
	errOverflow = errors.New("overflow")
	errSendFail = errors.New("send fail")
)

// TestAsyncTxSuccess verifies values are sent and hooks fire.
func TestAsyncTxSuccess(t *testing.T) {
	var sent atomic.Int64
	var after atomic.Int64
	ax := NewAsyncTx[int](context.Background(), 4, func(v int) error {
		sent.Add(1)
		return nil
	}, Hooks{OnAfter: func() { after.Add(1) }})
	defer ax.Close()
	for i := 0; i < 3; i++ {
		if err := ax.Send(i); err != nil {
			t.Fatalf("unexpected send error: %v", err)
		}
	}
	// Allow worker to drain
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && sent.Load() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	if sent.Load() != 3 || after.Load() != 3 {
		t.Fatalf("expected 3 sent & after, got sent=%d after=%d", sent.Load(), after.Load())
	}
}

// TestAsyncTxOverflow ensures OnDrop is invoked when the queue is full.
func TestAsyncTxOverflow(t *testing.T) {
	busy := make(chan struct{})
	release := make(chan struct{})
	var drops atomic.Int64
	ax := NewAsyncTx[int](context.Background(), 1, func(v int) error {
		if v == 0 {
			close(busy)
			<-release
		}
		return nil
	}, Hooks{OnDrop: func() error { drops.Add(1); return errOverflow }})
	if err := ax.Send(0); err != nil {
		t.Fatalf("unexpected error enqueue first: %v", err)
	}
	<-busy // worker holds value 0, queue is empty
	if err := ax.Send(1); err != nil {
		t.Fatalf("unexpected error filling queue: %v", err)
	}
	if err := ax.Send(2); !errors.Is(err, errOverflow) {
		t.Fatalf("expected overflow error, got %v", err)
	}
	close(release)
	ax.Close()
	if drops.Load() != 1 {
		t.Fatalf("expected 1 drop, got %d", drops.Load())
	}
	if st := ax.Stats(); st.Sent != 2 || st.Dropped != 1 || st.Failed != 0 {
		t.Fatalf("stats %+v", st)
	}
}

// TestAsyncTxSendError triggers OnError hook.
func TestAsyncTxSendError(t *testing.T) {
	var errs atomic.Int64
	ax := NewAsyncTx[int](context.Background(), 2, func(v int) error { return errSendFail }, Hooks{OnError: func(error) { errs.Add(1) }})
	defer ax.Close()
	_ = ax.Send(0)
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && errs.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if errs.Load() == 0 {
		t.Fatalf("expected error hook invocation")
	}
	if ax.Stats().Failed == 0 {
		t.Fatalf("stats %+v", ax.Stats())
	}
}

// TestAsyncTxCloseFlushesQueue sends what was queued before Close and
// nothing after.
func TestAsyncTxCloseFlushesQueue(t *testing.T) {
	var sent atomic.Int64
	ax := NewAsyncTx[int](context.Background(), 8, func(v int) error {
		time.Sleep(5 * time.Millisecond)
		sent.Add(1)
		return nil
	}, Hooks{})
	for i := range 5 {
		if err := ax.Send(i); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	ax.Close()
	if sent.Load() != 5 {
		t.Fatalf("sent=%d want 5 after Close", sent.Load())
	}
	_ = ax.Send(0)
	time.Sleep(20 * time.Millisecond)
	if sent.Load() != 5 {
		t.Fatalf("value processed after close: %d", sent.Load())
	}
	ax.Close()
}

// TestAsyncTxCancelAbandonsQueue stops the worker without draining.
func TestAsyncTxCancelAbandonsQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	busy := make(chan struct{})
	release := make(chan struct{})
	var sent atomic.Int64
	ax := NewAsyncTx[int](ctx, 8, func(v int) error {
		if v == 0 {
			close(busy)
			<-release
		}
		sent.Add(1)
		return nil
	}, Hooks{})
	for i := range 4 {
		_ = ax.Send(i)
	}
	<-busy
	cancel()
	close(release)
	ax.Close()
	if n := sent.Load(); n != 1 {
		t.Fatalf("sent=%d want 1, queue not abandoned", n)
	}
}

func TestAsyncTxSendAfterClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tx := NewAsyncTx[int](ctx, 2, func(v int) error { return nil }, Hooks{})
	tx.Close()
	if err := tx.Send(123); !errors.Is(err, ErrAsyncTxClosed) {
		t.Fatalf("expected ErrAsyncTxClosed, got %v", err)
	}
}

func TestAsyncTxCloseConcurrentSend(t *testing.T) {
	for i := 0; i < 100; i++ {
		ax := NewAsyncTx[int](context.Background(), 1, func(v int) error { return nil }, Hooks{})
		done := make(chan error, 1)
		go func() {
			done <- ax.Send(0)
		}()
		time.Sleep(1 * time.Millisecond)
		ax.Close()
		if err := <-done; err != nil && !errors.Is(err, ErrAsyncTxClosed) {
			t.Fatalf("iteration %d: unexpected send error %v", i, err)
		}
	}
}

func TestAsyncTxPreservesOrder(t *testing.T) {
	got := make(chan string, 8)
	ax := NewAsyncTx[string](context.Background(), 8, func(s string) error { got <- s; return nil }, Hooks{})
	defer ax.Close()
	for _, s := range []string{"odometry", "xv11lidar", "rplidar"} {
		if err := ax.Send(s); err != nil {
			t.Fatalf("send %s: %v", s, err)
		}
	}
	for _, want := range []string{"odometry", "xv11lidar", "rplidar"} {
		select {
		case s := <-got:
			if s != want {
				t.Fatalf("got %q want %q", s, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	if ax.Len() != 0 {
		t.Fatalf("queue not drained: %d", ax.Len())
	}
}
