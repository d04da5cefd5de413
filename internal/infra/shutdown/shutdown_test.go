package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandler_ReverseOrder(t *testing.T) {
	h := NewHandler(5*time.Second, quiet())

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		h.OnShutdown(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	if err := h.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !slices.Equal(order, []string{"c", "b", "a"}) {
		t.Errorf("order = %v, want [c b a]", order)
	}
}

func TestHandler_ErrorsJoined(t *testing.T) {
	h := NewHandler(5*time.Second, quiet())
	errA := errors.New("a failed")
	errC := errors.New("c failed")

	ran := false
	h.OnShutdown("a", func(context.Context) error { return errA })
	h.OnShutdown("b", func(context.Context) error { ran = true; return nil })
	h.OnShutdown("c", func(context.Context) error { return errC })

	err := h.Run()
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("Run() error = %v, want both hook errors", err)
	}
	if !ran {
		t.Error("a failing hook must not stop the others")
	}
}

func TestHandler_RunOnce(t *testing.T) {
	h := NewHandler(5*time.Second, quiet())
	calls := 0
	h.OnShutdown("count", func(context.Context) error { calls++; return nil })

	_ = h.Run()
	_ = h.Run()
	if calls != 1 {
		t.Errorf("hook ran %d times, want 1", calls)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done() should be closed after Run")
	}
}

func TestHandler_HookDeadline(t *testing.T) {
	h := NewHandler(50*time.Millisecond, quiet())
	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := h.Run()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("hook deadline was not applied")
	}
}

func TestHandler_WaitTrigger(t *testing.T) {
	h := NewHandler(time.Second, quiet())
	called := make(chan struct{})
	h.OnShutdown("hook", func(context.Context) error { close(called); return nil })

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.Trigger()
		h.Trigger()
	}()

	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	select {
	case <-called:
	default:
		t.Error("hook did not run")
	}
}

func TestHandler_WaitContext(t *testing.T) {
	h := NewHandler(time.Second, quiet())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Wait(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after the context ended")
	}
}

func TestHandler_WaitSignal(t *testing.T) {
	// Keeps SIGUSR1 from terminating the test binary before Wait subscribes.
	guard := make(chan os.Signal, 8)
	signal.Notify(guard, syscall.SIGUSR1)
	defer signal.Stop(guard)

	h := NewHandler(time.Second, quiet(), WithSignals(syscall.SIGUSR1))
	called := make(chan struct{})
	h.OnShutdown("hook", func(context.Context) error { close(called); return nil })

	done := make(chan error, 1)
	go func() { done <- h.Wait(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for {
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
			<-called
			return
		case <-deadline:
			t.Fatal("Wait() did not return after the signal")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
