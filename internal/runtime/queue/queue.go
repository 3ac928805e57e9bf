// Package queue provides the named, unbounded FIFO queues that connect stage
// workers and reply routers.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	ring "github.com/eapache/queue"

	"github.com/drblury/dagflow/internal/runtime/message"
)

// Signal distinguishes control deliveries from data.
type Signal int

const (
	// None marks a data delivery.
	None Signal = iota
	// Terminate tells the single consumer that receives it to exit.
	Terminate
)

// Delivery is one queue item. On node queues only Message is set; on the
// reply queue From names the stage that produced Message.
type Delivery struct {
	From    string
	Message *message.Message
	Signal  Signal
}

// Queue is an unbounded FIFO safe for many producers and consumers.
//
// Data deliveries count as pending from Put until the consumer calls Done,
// so work in the hands of a consumer is still visible to Pending. Signals are
// never counted.
type Queue struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	buf     *ring.Queue
	pending int

	total *atomic.Int64
}

// New returns a standalone queue.
func New(name string) *Queue {
	return newQueue(name, nil)
}

func newQueue(name string, total *atomic.Int64) *Queue {
	q := &Queue{name: name, buf: ring.New(), total: total}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Name() string { return q.name }

// Put appends d and wakes one waiting consumer.
func (q *Queue) Put(d Delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if d.Signal == None {
		q.pending++
		if q.total != nil {
			q.total.Add(1)
		}
	}
	q.buf.Add(d)
	q.cond.Signal()
}

// Terminate enqueues one Terminate signal.
func (q *Queue) Terminate() {
	q.Put(Delivery{Signal: Terminate})
}

// Get blocks until a delivery is available or ctx is done. Every data
// delivery returned must be acknowledged with Done.
func (q *Queue) Get(ctx context.Context) (Delivery, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.buf.Length() == 0 {
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}
		q.cond.Wait()
	}
	return q.buf.Remove().(Delivery), nil
}

// Done acknowledges one data delivery returned by Get.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		panic("dagflow: queue " + q.name + ": Done called more times than Get")
	}
	q.pending--
	if q.total != nil {
		q.total.Add(-1)
	}
}

// Pending returns the data deliveries queued or awaiting acknowledgement.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}
