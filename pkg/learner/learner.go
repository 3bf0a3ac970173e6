package learner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"async-program-rl/pkg/cache"
	"async-program-rl/pkg/checkpoint"
	"async-program-rl/pkg/config"
	"async-program-rl/pkg/messaging"
	"async-program-rl/pkg/metrics"
)

// maxGradNorm is the fixed clipping threshold for the secondary group.
const maxGradNorm = 5.0

var (
	ErrEmptyBatch          = errors.New("sample batch contains zero samples")
	ErrNoEntropy           = errors.New("entropy regularization configured but model returned no entropies")
	ErrAlreadyStarted      = errors.New("registration is not supported after training starts")
	ErrEvaluatorRegistered = errors.New("evaluator already registered")
)

// ActorHandle is the registration boundary for an actor: it receives
// the producer end of the sample queue and its private checkpoint
// subscription.
type ActorHandle interface {
	ID() string
	Bind(queue *messaging.SampleQueue, checkpoints <-chan string)
}

// EvaluatorHandle is the registration boundary for the evaluator: it
// receives the read handle of the latest-checkpoint slot.
type EvaluatorHandle interface {
	Bind(slot *messaging.LatestCheckpointSlot)
}

// Learner owns the training loop: it drains the sample queue, drives
// the optimization cycle, and on a fixed cadence publishes checkpoints
// to the actors and the evaluator. All mutable loop state lives on the
// instance; the loop itself runs on a single goroutine and is not
// reentrant.
type Learner struct {
	cfg   *config.TrainerConfig
	setup *Setup

	queue       *messaging.SampleQueue
	checkpoints *messaging.CheckpointChannel
	slot        *messaging.LatestCheckpointSlot
	store       *checkpoint.Store
	programs    cache.Cache
	sink        metrics.Sink

	secondary  Optimizer
	current    checkpoint.Checkpoint
	hasCurrent bool
	actorNum   int

	mu      sync.Mutex
	started bool
}

type Option func(*Learner)

// WithSetup injects a pre-built model setup instead of building one
// from the model registry at INIT.
func WithSetup(s *Setup) Option {
	return func(l *Learner) {
		l.setup = s
	}
}

// WithCache points the learner at a shared program cache. Defaults to
// an in-process cache.
func WithCache(c cache.Cache) Option {
	return func(l *Learner) {
		l.programs = c
	}
}

// WithSink sets the scalar observability sink. Defaults to a no-op.
func WithSink(s metrics.Sink) Option {
	return func(l *Learner) {
		l.sink = s
	}
}

// New creates a learner and the shared queue/channel infrastructure
// the actors will be registered against.
func New(cfg *config.TrainerConfig, opts ...Option) (*Learner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Learner{
		cfg:         cfg,
		queue:       messaging.NewSampleQueue(cfg.QueueCapacity),
		checkpoints: messaging.NewCheckpointChannel(cfg.CheckpointBuffer),
		programs:    cache.NewMemoryCache(),
		sink:        metrics.NopSink{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Queue exposes the shared sample queue (producer end for registered
// actors, observability for callers).
func (l *Learner) Queue() *messaging.SampleQueue {
	return l.queue
}

// ActorNum returns the number of registered actors.
func (l *Learner) ActorNum() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.actorNum
}

// RegisterActor binds an actor to the shared queue and gives it a
// private checkpoint subscription. Must complete before Run;
// re-registration under the same id is unsupported.
func (l *Learner) RegisterActor(a ActorHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrAlreadyStarted
	}
	ch, err := l.checkpoints.Subscribe(a.ID())
	if err != nil {
		return err
	}
	a.Bind(l.queue, ch)
	l.actorNum++
	return nil
}

// RegisterEvaluator allocates the latest-checkpoint slot exactly once
// and hands the evaluator its read handle.
func (l *Learner) RegisterEvaluator(e EvaluatorHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrAlreadyStarted
	}
	if l.slot != nil {
		return ErrEvaluatorRegistered
	}
	l.slot = messaging.NewLatestCheckpointSlot(messaging.SlotCapacity)
	e.Bind(l.slot)
	return nil
}

// Run executes the training loop until max_train_step batches have been
// processed or ctx is cancelled. Data-contract violations (empty batch,
// missing entropy) and checkpoint write failures abort the loop.
func (l *Learner) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("learner loop already running")
	}
	l.started = true
	l.mu.Unlock()

	if err := l.init(); err != nil {
		return err
	}

	cfg := l.cfg
	accumulate := cfg.GradientAccumulationNIter

	step := 0
	cumLoss := 0.0
	cumExamples := 0
	windowStart := time.Now()

	for step < cfg.MaxTrainStep {
		var batch messaging.SampleBatch
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch = <-l.queue.C():
		}

		// Rejected before the step counter moves: an invalid batch must
		// leave counter, parameters, and checkpoint state untouched.
		if len(batch.Samples) == 0 {
			return fmt.Errorf("after train step %d: %w", step, ErrEmptyBatch)
		}
		step++

		l.emit("queue_depth", float64(l.queue.Depth()), step)

		// Gradients accumulate across the window; zero only at its start.
		if (step-1)%accumulate == 0 {
			l.setup.Primary.ZeroGrad()
			l.secondary.ZeroGrad()
		}

		loss, err := l.computeLoss(batch, step)
		if err != nil {
			return fmt.Errorf("train step %d: %w", step, err)
		}
		if err := l.setup.Model.Backward(loss); err != nil {
			return fmt.Errorf("train step %d: backward failed: %w", step, err)
		}

		if step%accumulate == 0 {
			gradNorm := l.secondary.ClipGradNorm(maxGradNorm)
			l.emit("grad_norm", gradNorm, step)

			l.secondary.Step()
			if step > cfg.FreezeNIter {
				l.setup.Primary.Step()
			}
		}
		if step == cfg.FreezeNIter {
			log.Printf("[learner] step=%d rebuilding secondary optimizer, primary group joins fine-tuning", step)
			l.secondary = l.setup.NewSecondary()
		}

		if clipFrac, ok := batch.Meta["clip_frac"]; ok {
			l.emit("sample_clip_frac", clipFrac, step)
		}

		cumLoss += loss * float64(len(batch.Samples))
		cumExamples += len(batch.Samples)

		if step%cfg.SaveEveryNIter == 0 {
			elapsed := time.Since(windowStart).Seconds()
			log.Printf("[learner] step=%d avg. loss=%.6f, %d examples (%.1f examples/s)",
				step, cumLoss/float64(cumExamples), cumExamples, float64(cumExamples)/elapsed)
			cumLoss = 0.0
			cumExamples = 0
			windowStart = time.Now()

			if err := l.publishNew(step); err != nil {
				return fmt.Errorf("train step %d: %w", step, err)
			}
			l.reportCacheStats(step)
		} else if l.hasCurrent {
			// Idempotent re-broadcast of the current checkpoint; actors
			// tolerate receiving the same path repeatedly.
			if err := l.publish(l.current.Path); err != nil {
				return fmt.Errorf("train step %d: %w", step, err)
			}
		}

		if cfg.SaveProgramCacheNIter > 0 && step%cfg.SaveProgramCacheNIter == 0 {
			path := l.store.SnapshotPath(step)
			if err := cache.WriteSnapshot(l.programs, path); err != nil {
				log.Printf("[learner] step=%d program cache snapshot failed: %v", step, err)
			}
		}
	}

	log.Printf("[learner] reached max_train_step=%d, stopping", cfg.MaxTrainStep)
	return nil
}

// init binds the compute side: seeded randomness, the model setup from
// the registry, the work dir, and the secondary optimizer.
func (l *Learner) init() error {
	rng := rand.New(rand.NewSource(l.cfg.Seed))

	if l.setup == nil {
		setup, err := BuildModel(l.cfg.Model, l.cfg, rng)
		if err != nil {
			return err
		}
		l.setup = setup
	}
	l.secondary = l.setup.NewSecondary()

	store, err := checkpoint.NewStore(l.cfg.WorkDir)
	if err != nil {
		return err
	}
	l.store = store
	return nil
}

// computeLoss turns one batch into the scalar training loss: the
// negative weighted mean of per-sample log-probabilities, scaled for
// gradient accumulation, plus the optional entropy term.
func (l *Learner) computeLoss(batch messaging.SampleBatch, step int) (float64, error) {
	trajectories := make([]any, len(batch.Samples))
	for i, s := range batch.Samples {
		trajectories[i] = s.Trajectory
	}

	logProbs, entropies, err := l.setup.Model.Score(trajectories)
	if err != nil {
		return 0, fmt.Errorf("score failed: %w", err)
	}
	if len(logProbs) != len(batch.Samples) {
		return 0, fmt.Errorf("model returned %d log-probs for %d samples", len(logProbs), len(batch.Samples))
	}

	var weighted float64
	for i, lp := range logProbs {
		weighted += lp * batch.Samples[i].Weight
	}
	loss := -weighted / float64(len(logProbs))

	if l.cfg.GradientAccumulationNIter > 1 {
		loss /= float64(l.cfg.GradientAccumulationNIter)
	}
	l.emit("loss", loss, step)

	if l.cfg.EntropyRegWeight != 0 {
		if len(entropies) == 0 {
			return 0, ErrNoEntropy
		}
		var sum float64
		for _, e := range entropies {
			sum += e
		}
		entropy := sum / float64(len(entropies))
		entropyLoss := -l.cfg.EntropyRegWeight * entropy // maximize entropy
		loss += entropyLoss

		l.emit("entropy", entropy, step)
		l.emit("entropy_reg_loss", entropyLoss, step)
	}

	return loss, nil
}

// publishNew saves the model state as a new checkpoint, publishes it,
// and retires the previously-current file. The artifact is durably on
// disk before any consumer can see its path; a failed save prevents
// publication entirely.
func (l *Learner) publishNew(step int) error {
	started := time.Now()

	state, err := l.setup.Model.Snapshot()
	if err != nil {
		return fmt.Errorf("model snapshot failed: %w", err)
	}
	ck, err := l.store.Save(state, step)
	if err != nil {
		return err
	}
	if err := l.publish(ck.Path); err != nil {
		return err
	}
	log.Printf("[learner] pushed checkpoint %s (took %s)", ck.Path, time.Since(started))

	if l.hasCurrent {
		// Best effort: a slow reader may still hold the old file open.
		if err := l.store.Retire(l.current); err != nil {
			log.Printf("[learner] %v", err)
		}
	}
	l.current = ck
	l.hasCurrent = true
	return nil
}

// publish fans the path out to every registered actor and overwrites
// the evaluator slot. Slot overflow is a fatal configuration error.
func (l *Learner) publish(path string) error {
	l.checkpoints.Publish(path)
	if l.slot != nil {
		if err := l.slot.Set(path); err != nil {
			return err
		}
	}
	return nil
}

func (l *Learner) reportCacheStats(step int) {
	stat := l.programs.Stat()
	l.emit("num_programs_in_cache", float64(stat.NumEntries), step)
	if stat.NumEnvs > 0 {
		l.emit("avg_num_programs_in_cache", float64(stat.NumEntries)/float64(stat.NumEnvs), step)
	}
}

// emit reports one scalar, swallowing sink errors: observability must
// never affect training.
func (l *Learner) emit(name string, value float64, step int) {
	_ = l.sink.Emit(name, value, step)
}
