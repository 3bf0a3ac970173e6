package messaging

import (
	"errors"
	"fmt"
	"sync"
)

const defaultSubscriberBuffer = 16

var (
	ErrAlreadySubscribed = errors.New("subscriber id already registered")
	ErrSlotOverflow      = errors.New("checkpoint path exceeds slot capacity")
)

// CheckpointChannel fans checkpoint paths out from the learner to every
// registered actor. Each subscriber gets a private buffered channel;
// when a subscriber falls behind, the oldest undelivered path is dropped
// in favor of the new one, so the newest checkpoint is always the one
// left deliverable. Receiving the same path repeatedly is harmless:
// actors reload idempotently.
type CheckpointChannel struct {
	subscribers map[string]chan string
	buffer      int
	mu          sync.RWMutex
}

// NewCheckpointChannel creates a fan-out channel whose subscribers each
// buffer up to `buffer` undelivered paths.
func NewCheckpointChannel(buffer int) *CheckpointChannel {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &CheckpointChannel{
		subscribers: make(map[string]chan string),
		buffer:      buffer,
	}
}

// Subscribe registers a consumer and returns its private receive channel.
// Re-registration under the same id is not supported.
func (c *CheckpointChannel) Subscribe(id string) (<-chan string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subscribers[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, id)
	}
	ch := make(chan string, c.buffer)
	c.subscribers[id] = ch
	return ch, nil
}

// Publish delivers path to every subscriber registered before the call.
func (c *CheckpointChannel) Publish(path string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ch := range c.subscribers {
		for {
			select {
			case ch <- path:
			default:
				// Full buffer: evict the oldest path and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribers returns the number of registered consumers.
func (c *CheckpointChannel) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.subscribers)
}

// SlotCapacity is the fixed size of the shared checkpoint cell read by
// the evaluator.
const SlotCapacity = 4096

// LatestCheckpointSlot is a single-writer multi-reader cell holding the
// most recent checkpoint path. Writes overwrite (last-writer-wins, safe
// because the single learner issues them in increasing train-step
// order); readers never observe a torn value and see only the latest,
// never a history.
type LatestCheckpointSlot struct {
	buf      []byte
	n        int
	ready    bool
	capacity int
	mu       sync.RWMutex
}

// NewLatestCheckpointSlot allocates a slot with the given byte capacity.
// A capacity of zero or less falls back to SlotCapacity.
func NewLatestCheckpointSlot(capacity int) *LatestCheckpointSlot {
	if capacity <= 0 {
		capacity = SlotCapacity
	}
	return &LatestCheckpointSlot{
		buf:      make([]byte, capacity),
		capacity: capacity,
	}
}

// Set overwrites the slot with path. A path longer than the slot's
// capacity is a fatal configuration error, reported as ErrSlotOverflow.
func (s *LatestCheckpointSlot) Set(path string) error {
	if len(path) > s.capacity {
		return fmt.Errorf("%w: %d > %d bytes", ErrSlotOverflow, len(path), s.capacity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.n = copy(s.buf, path)
	s.ready = true
	return nil
}

// Get returns the current path and whether the slot has been written at
// least once.
func (s *LatestCheckpointSlot) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return "", false
	}
	return string(s.buf[:s.n]), true
}
