package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sudeshabasnet/MediTrack-sub001/domain"
)

type captureDispatcher struct {
	mu       sync.Mutex
	received []Notification
	attempts int
	block    chan struct{}
	fail     bool
}

func (d *captureDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.fail {
		return errors.New("channel unavailable")
	}
	d.received = append(d.received, n)
	return nil
}

func (d *captureDispatcher) setFail(fail bool) {
	d.mu.Lock()
	d.fail = fail
	d.mu.Unlock()
}

func (d *captureDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.received)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestQueueDeliversNotifications(t *testing.T) {
	dispatcher := &captureDispatcher{}
	q := NewQueue(dispatcher, 8)
	q.Start(context.Background())
	defer q.Close()

	n := New(7, domain.OrderConfirmed, "jane@example.com")
	if !q.Enqueue(n) {
		t.Fatalf("enqueue rejected")
	}

	waitFor(t, func() bool { return dispatcher.count() == 1 })
	if dispatcher.received[0].OrderID != 7 {
		t.Fatalf("delivered = %+v", dispatcher.received[0])
	}
	if dispatcher.received[0].ID == "" {
		t.Fatalf("notification missing message id")
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	dispatcher := &captureDispatcher{block: make(chan struct{})}
	q := NewQueue(dispatcher, 1)
	q.Start(context.Background())

	// The worker takes the first notification and blocks inside Dispatch.
	if !q.Enqueue(New(1, domain.OrderShipped, "a@example.com")) {
		t.Fatalf("first enqueue rejected")
	}
	waitFor(t, func() bool { return len(q.out) == 0 })

	// Second fills the buffer, third must be dropped without blocking.
	if !q.Enqueue(New(2, domain.OrderShipped, "b@example.com")) {
		t.Fatalf("second enqueue rejected")
	}
	if q.Enqueue(New(3, domain.OrderShipped, "c@example.com")) {
		t.Fatalf("expected drop on saturated queue")
	}
	if _, _, dropped := q.Stats(); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}

	close(dispatcher.block)
	q.Close()
}

func TestQueueRejectsAfterClose(t *testing.T) {
	dispatcher := &captureDispatcher{}
	q := NewQueue(dispatcher, 4)
	q.Start(context.Background())
	q.Close()

	if q.Enqueue(New(1, domain.OrderDelivered, "a@example.com")) {
		t.Fatalf("enqueue accepted after close")
	}
	if _, _, dropped := q.Stats(); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}

func TestDispatchFailureDoesNotStopWorker(t *testing.T) {
	dispatcher := &captureDispatcher{}
	dispatcher.setFail(true)
	q := NewQueue(dispatcher, 4)
	q.Start(context.Background())

	q.Enqueue(New(1, domain.OrderConfirmed, "a@example.com"))
	waitFor(t, func() bool {
		dispatcher.mu.Lock()
		defer dispatcher.mu.Unlock()
		return dispatcher.attempts == 1
	})

	// Worker survives the failure and keeps consuming.
	dispatcher.setFail(false)
	q.Enqueue(New(2, domain.OrderConfirmed, "b@example.com"))
	waitFor(t, func() bool { return dispatcher.count() == 1 })
	q.Close()

	if dispatcher.received[0].OrderID != 2 {
		t.Fatalf("delivered = %+v", dispatcher.received[0])
	}
}
