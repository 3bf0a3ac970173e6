package evaluator

import (
	"context"
	"errors"
	"log"
	"time"

	"async-program-rl/pkg/messaging"
)

var (
	ErrNotRegistered = errors.New("evaluator is not registered with a learner")
	ErrNilEvaluate   = errors.New("evaluator requires an evaluate function")
)

const defaultPollInterval = time.Second

// EvaluateFunc runs held-out evaluation against a published checkpoint.
// Its internals are the caller's concern.
type EvaluateFunc func(ctx context.Context, path string) error

// Evaluator polls the latest-checkpoint slot and evaluates each new
// checkpoint it observes. It only ever sees the most recent value;
// intermediate checkpoints overwritten between polls are never
// observed.
type Evaluator struct {
	interval time.Duration
	evaluate EvaluateFunc
	slot     *messaging.LatestCheckpointSlot
	last     string
}

type Option func(*Evaluator)

func WithPollInterval(d time.Duration) Option {
	return func(e *Evaluator) {
		e.interval = d
	}
}

func WithEvaluate(f EvaluateFunc) Option {
	return func(e *Evaluator) {
		e.evaluate = f
	}
}

func New(opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		interval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.evaluate == nil {
		return nil, ErrNilEvaluate
	}
	return e, nil
}

// Bind attaches the slot read handle. Called by the learner during
// registration.
func (e *Evaluator) Bind(slot *messaging.LatestCheckpointSlot) {
	e.slot = slot
}

// Run polls until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) error {
	if e.slot == nil {
		return ErrNotRegistered
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			path, ok := e.slot.Get()
			if !ok || path == e.last {
				continue
			}
			if err := e.evaluate(ctx, path); err != nil {
				log.Printf("[evaluator] evaluation of %s failed: %v", path, err)
				continue
			}
			e.last = path
		}
	}
}
