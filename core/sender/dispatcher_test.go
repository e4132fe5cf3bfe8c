package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("relay returned %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 8, Workers: 2})

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := d.Enqueue(context.Background(), "send_text", "message/text", func() error {
			defer wg.Done()
			ran.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	wg.Wait()
	d.Close()

	if got := ran.Load(); got != 5 {
		t.Errorf("ran = %d, want 5", got)
	}
	if got := d.ErrorCount(); got != 0 {
		t.Errorf("ErrorCount = %d, want 0", got)
	}
}

func TestDispatcherRetriesRetryable(t *testing.T) {
	d := NewDispatcher(Options{
		QueueSize:    4,
		Workers:      1,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})

	var calls atomic.Int32
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send_text", "message/text", func() error {
		if calls.Add(1) == 1 {
			return &statusErr{code: 503}
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	d.Close()

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if got := d.ErrorCount(); got != 0 {
		t.Errorf("ErrorCount = %d, want 0", got)
	}
}

func TestDispatcherDoesNotRetryNonRetryable(t *testing.T) {
	d := NewDispatcher(Options{
		QueueSize:    4,
		Workers:      1,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})

	var calls atomic.Int32
	err := d.Enqueue(context.Background(), "send_text", "message/text", func() error {
		calls.Add(1)
		return &statusErr{code: 400}
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	d.Close()

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if got := d.ErrorCount(); got != 1 {
		t.Errorf("ErrorCount = %d, want 1", got)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 1, Workers: 1})
	defer d.Close()

	block := make(chan struct{})
	release := func() error {
		<-block
		return nil
	}

	// First job occupies the worker, second fills the queue.
	if err := d.Enqueue(context.Background(), "send_text", "", release); err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	// Give the worker a moment to pick up the first job.
	deadline := time.Now().Add(time.Second)
	for len(d.jobs) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := d.Enqueue(context.Background(), "send_text", "", release); err != nil {
		t.Fatalf("Enqueue 2: %v", err)
	}

	err := d.Enqueue(context.Background(), "send_text", "", release)
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue 3 = %v, want ErrQueueFull", err)
	}
	close(block)
}

func TestDispatcherEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 1, Workers: 1})
	d.Close()

	err := d.Enqueue(context.Background(), "send_text", "", func() error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue = %v, want ErrQueueClosed", err)
	}
}

func TestDispatcherCloseDuringEnqueue(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 2, Workers: 1})

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				err := d.Enqueue(context.Background(), "send_text", "", func() error { return nil })
				if err != nil && !errors.Is(err, ErrQueueClosed) && !errors.Is(err, ErrQueueFull) {
					t.Errorf("Enqueue: %v", err)
					return
				}
			}
		}()
	}
	close(start)
	d.Close()
	wg.Wait()

	err := d.Enqueue(context.Background(), "send_text", "", func() error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after close = %v, want ErrQueueClosed", err)
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	err := errors.New(`Post "http://localhost:1234/api/v1/message/text?password=hunter2&foo=1": dial tcp: refused`)
	got := sanitizeErrorMessage(err)
	want := `Post "http://localhost:1234/api/v1/message/text?password=<redacted>&foo=1": dial tcp: refused`
	if got != want {
		t.Errorf("sanitizeErrorMessage = %q, want %q", got, want)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"server error", &statusErr{code: 502}, "http_5xx"},
		{"client error", &statusErr{code: 404}, "http_4xx"},
		{"plain", errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
