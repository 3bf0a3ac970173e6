package actor

import (
	"context"
	"errors"
	"log"

	"async-program-rl/pkg/messaging"

	"github.com/google/uuid"
)

var (
	ErrNotRegistered = errors.New("actor is not registered with a learner")
	ErrNilRollout    = errors.New("actor requires a rollout function")
)

// RolloutFunc produces one batch of labeled trajectories. How rollouts
// are generated (environments, search, the program cache interplay) is
// the caller's concern; the actor only moves the results across the
// queue boundary.
type RolloutFunc func(ctx context.Context) (messaging.SampleBatch, error)

// LoadModelFunc refreshes the actor's local model copy from a published
// checkpoint path. It must be safe to call repeatedly with the same
// path.
type LoadModelFunc func(path string) error

// Actor is the producer side of the coordination layer: it refreshes
// its model from the checkpoint channel and pushes sample batches into
// the shared queue. Handles are bound once, at registration.
type Actor struct {
	id          string
	rollout     RolloutFunc
	loadModel   LoadModelFunc
	queue       *messaging.SampleQueue
	checkpoints <-chan string
	lastLoaded  string
}

type Option func(*Actor)

func WithID(id string) Option {
	return func(a *Actor) {
		a.id = id
	}
}

func WithRollout(f RolloutFunc) Option {
	return func(a *Actor) {
		a.rollout = f
	}
}

func WithModelLoader(f LoadModelFunc) Option {
	return func(a *Actor) {
		a.loadModel = f
	}
}

// New creates an actor. A rollout function is required; the model
// loader is optional (stateless rollout sources need none).
func New(opts ...Option) (*Actor, error) {
	a := &Actor{
		id: "actor-" + uuid.New().String(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rollout == nil {
		return nil, ErrNilRollout
	}
	return a, nil
}

func (a *Actor) ID() string {
	return a.id
}

// Bind attaches the shared handles. Called by the learner during
// registration; binding is once-only for the process lifetime.
func (a *Actor) Bind(queue *messaging.SampleQueue, checkpoints <-chan string) {
	a.queue = queue
	a.checkpoints = checkpoints
}

// Run generates batches until ctx is cancelled: refresh the model from
// any pending checkpoint, roll out one batch, push it.
func (a *Actor) Run(ctx context.Context) error {
	if a.queue == nil {
		return ErrNotRegistered
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		a.refreshModel()

		batch, err := a.rollout(ctx)
		if err != nil {
			return err
		}
		if len(batch.Samples) == 0 {
			continue
		}
		if err := a.queue.PushContext(ctx, batch); err != nil {
			return err
		}
	}
}

// refreshModel drains pending checkpoint paths and loads the newest
// one. Duplicate paths from idempotent re-publishes are skipped.
func (a *Actor) refreshModel() {
	var latest string

drain:
	for {
		select {
		case path := <-a.checkpoints:
			latest = path
		default:
			break drain
		}
	}

	if latest == "" || latest == a.lastLoaded {
		return
	}
	if a.loadModel != nil {
		if err := a.loadModel(latest); err != nil {
			log.Printf("[%s] failed to load checkpoint %s: %v", a.id, latest, err)
			return
		}
	}
	a.lastLoaded = latest
}
