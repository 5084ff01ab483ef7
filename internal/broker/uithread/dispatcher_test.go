package uithread

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func start(t *testing.T, d *Dispatcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestDispatcher_RunTwice(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New()
	stop := start(t, d)
	defer stop()

	// Wait until the loop is up.
	if err := d.Invoke(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Invoke() failed: %v", err)
	}
	if err := d.Run(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestDispatcher_PostRunsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New(WithQueueSize(16))
	stop := start(t, d)
	defer stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := d.Post(func(ctx context.Context) {
			defer wg.Done()
			if !d.OnThread(ctx) {
				t.Error("posted function not marked as running on the loop")
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Post() failed: %v", err)
		}
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, want %d", i, got, i)
		}
	}
}

func TestDispatcher_Invoke(t *testing.T) {
	d := New()
	stop := start(t, d)
	defer stop()

	errBoom := errors.New("boom")
	if err := d.Invoke(context.Background(), func(context.Context) error { return errBoom }); err != errBoom {
		t.Errorf("Invoke() = %v, want %v", err, errBoom)
	}

	// Nested Invoke from the loop runs in place instead of deadlocking.
	err := d.Invoke(context.Background(), func(ctx context.Context) error {
		return d.Invoke(ctx, func(inner context.Context) error {
			if _, ok := FromContext(inner); !ok {
				return errors.New("nested call lost the loop marker")
			}
			return nil
		})
	})
	if err != nil {
		t.Errorf("nested Invoke() = %v, want nil", err)
	}

	err = d.Invoke(context.Background(), func(context.Context) error { panic("kaboom") })
	if err == nil {
		t.Error("Invoke() of a panicking function = nil, want error")
	}
	if err := d.Invoke(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Errorf("loop did not survive a panic: %v", err)
	}
}

func TestDispatcher_Stopped(t *testing.T) {
	d := New()
	stop := start(t, d)
	d.Invoke(context.Background(), func(context.Context) error { return nil })
	stop()

	if err := d.Post(func(context.Context) {}); err != ErrStopped {
		t.Errorf("Post() after stop = %v, want ErrStopped", err)
	}
	if err := d.Invoke(context.Background(), func(context.Context) error { return nil }); err != ErrStopped {
		t.Errorf("Invoke() after stop = %v, want ErrStopped", err)
	}
	d.Stop()
}

func TestFromContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext() found a dispatcher in a plain context")
	}
	d := New()
	if d.OnThread(context.Background()) {
		t.Error("OnThread() = true outside of the loop")
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := New(WithQueueSize(1))
	blocked.tasks <- task{fn: func(context.Context) error { return nil }}
	if err := blocked.Invoke(cancelled, func(context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Invoke() with cancelled context = %v, want context.Canceled", err)
	}
}
