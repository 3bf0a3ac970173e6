package messaging

import "context"

const defaultQueueCapacity = 1024

// SampleQueue carries batches of training samples from many actor
// producers to the single learner consumer. It preserves per-producer
// FIFO order; no global ordering across producers is guaranteed.
type SampleQueue struct {
	ch chan SampleBatch
}

// NewSampleQueue creates a queue with the given capacity. A capacity
// of zero or less falls back to a large default.
func NewSampleQueue(capacity int) *SampleQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &SampleQueue{
		ch: make(chan SampleBatch, capacity),
	}
}

// Push enqueues one batch, blocking while the queue is full.
func (q *SampleQueue) Push(batch SampleBatch) {
	q.ch <- batch
}

// PushContext enqueues one batch, giving up when ctx is cancelled.
func (q *SampleQueue) PushContext(ctx context.Context, batch SampleBatch) error {
	select {
	case q.ch <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the next batch, blocking until one is available.
func (q *SampleQueue) Receive() SampleBatch {
	return <-q.ch
}

// C exposes the receive end so callers can select on it alongside a
// context.
func (q *SampleQueue) C() <-chan SampleBatch {
	return q.ch
}

// Depth returns the number of batches currently queued.
func (q *SampleQueue) Depth() int {
	return len(q.ch)
}
