package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sudeshabasnet/MediTrack-sub001/internal/obs"
)

// Queue decouples notification delivery from the transition path. Enqueue
// never blocks: when the buffer is full or the queue is shutting down the
// notification is dropped with a warning, so dispatcher latency or failure
// can never stall or roll back a transition.
type Queue struct {
	dispatcher   Dispatcher
	out          chan Notification
	shuttingDown atomic.Bool
	wg           sync.WaitGroup

	enqueued   atomic.Uint64
	dispatched atomic.Uint64
	dropped    atomic.Uint64
}

const dispatchTimeout = 5 * time.Second

// NewQueue creates a Queue with a buffered delivery channel.
func NewQueue(dispatcher Dispatcher, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		dispatcher: dispatcher,
		out:        make(chan Notification, buffer),
	}
}

// Start runs the delivery worker until ctx is cancelled or Close is called.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.worker(ctx)
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q.out:
			if !ok {
				return
			}
			q.deliver(ctx, n)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, n Notification) {
	dctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := q.dispatcher.Dispatch(dctx, n); err != nil {
		obs.Logger.Warn("notification dispatch failed",
			"message_id", n.ID, "order_id", n.OrderID, "error", err)
		return
	}
	q.dispatched.Add(1)
}

// Enqueue hands a notification to the worker. It reports whether the
// notification was accepted.
func (q *Queue) Enqueue(n Notification) bool {
	if q.shuttingDown.Load() {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.out <- n:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		obs.Logger.Warn("notification queue full, dropping",
			"message_id", n.ID, "order_id", n.OrderID)
		return false
	}
}

// Close stops accepting notifications, drains the buffer and waits for the
// worker to exit.
func (q *Queue) Close() {
	if q.shuttingDown.Swap(true) {
		return
	}
	close(q.out)
	q.wg.Wait()
}

// Stats reports enqueue/dispatch/drop counters.
func (q *Queue) Stats() (enqueued, dispatched, dropped uint64) {
	return q.enqueued.Load(), q.dispatched.Load(), q.dropped.Load()
}
