package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"async-program-rl/internal/policy"
	"async-program-rl/pkg/actor"
	"async-program-rl/pkg/cache"
	"async-program-rl/pkg/config"
	"async-program-rl/pkg/evaluator"
	"async-program-rl/pkg/learner"
	"async-program-rl/pkg/messaging"
	"async-program-rl/pkg/metrics"
)

const batchSize = 8

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "trainer",
		Short: "Trainer coordinates asynchronous actor/learner/evaluator training over a shared program cache.",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the learner with in-process actors and an evaluator",
		RunE:  runTrainer,
	}
	runCmd.Flags().StringVar(&configPath, "config", "trainer.yaml", "path to the yaml trainer config")

	for _, envFile := range []string{
		".env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd.AddCommand(runCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTrainer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	var programs cache.Cache = cache.NewMemoryCache()
	if cfg.CacheURL != "" {
		programs = cache.NewHTTPCache(cfg.CacheURL)
		log.Printf("[trainer] using shared program cache at %s", cfg.CacheURL)
	}

	var sink metrics.Sink = metrics.NopSink{}
	if cfg.MetricsAddr != "" {
		promSink := metrics.NewPromSink(cfg.MetricsAddr)
		defer promSink.Close()
		sink = promSink
		log.Printf("[trainer] serving metrics on %s", cfg.MetricsAddr)
	}

	l, err := learner.New(cfg, learner.WithCache(programs), learner.WithSink(sink))
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.NumActors; i++ {
		a, err := newRolloutActor(cfg, i, programs)
		if err != nil {
			return fmt.Errorf("failed to create actor %d: %w", i, err)
		}
		if err := l.RegisterActor(a); err != nil {
			return fmt.Errorf("failed to register actor %d: %w", i, err)
		}
		log.Printf("[trainer] registered %s", a.ID())

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[trainer] %s stopped: %v", a.ID(), err)
			}
		}()
	}

	ev, err := newHeldOutEvaluator(cfg)
	if err != nil {
		return err
	}
	if err := l.RegisterEvaluator(ev); err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ev.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[trainer] evaluator stopped: %v", err)
		}
	}()

	runErr := l.Run(ctx)
	cancel()
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// newRolloutActor builds an actor that rolls out the linear demo policy
// against synthetic environments, feeds discovered programs into the
// shared cache, and refreshes its policy copy from published
// checkpoints.
func newRolloutActor(cfg *config.TrainerConfig, idx int, programs cache.Cache) (*actor.Actor, error) {
	model := policy.NewLinearModel(rand.New(rand.NewSource(cfg.Seed + int64(idx) + 1)))
	rng := rand.New(rand.NewSource(cfg.Seed*31 + int64(idx)))

	rollout := func(ctx context.Context) (messaging.SampleBatch, error) {
		samples := make([]messaging.TrainingSample, 0, batchSize)
		clipped := 0

		for i := 0; i < batchSize; i++ {
			features := make([]float64, policy.FeatureDim)
			for j := range features {
				features[j] = rng.NormFloat64()
			}
			action, logProb := model.SampleAction(features, rng)

			// Importance weight capped at 1, like clipped off-policy
			// correction; report the clipped fraction alongside.
			weight := math.Exp(logProb)
			if weight > 1 {
				weight = 1
				clipped++
			}

			envID := fmt.Sprintf("env-%d", rng.Intn(16))
			if logProb > math.Log(0.5) {
				program := fmt.Sprintf("(choose %d)", action)
				if err := programs.Put(envID, program); err != nil {
					log.Printf("[trainer] cache put failed: %v", err)
				}
			}

			samples = append(samples, messaging.TrainingSample{
				Trajectory: policy.Trajectory{EnvID: envID, Features: features, Action: action},
				Weight:     weight,
			})
		}

		return messaging.SampleBatch{
			Samples: samples,
			Meta:    messaging.BatchMetadata{"clip_frac": float64(clipped) / batchSize},
		}, nil
	}

	return actor.New(
		actor.WithID(fmt.Sprintf("actor-%d", idx)),
		actor.WithRollout(rollout),
		actor.WithModelLoader(model.Load),
	)
}

// newHeldOutEvaluator scores a fixed held-out trajectory set with every
// newly published checkpoint.
func newHeldOutEvaluator(cfg *config.TrainerConfig) (*evaluator.Evaluator, error) {
	rng := rand.New(rand.NewSource(cfg.Seed ^ 0x5eed))
	model := policy.NewLinearModel(rng)

	heldOut := make([]any, 32)
	for i := range heldOut {
		features := make([]float64, policy.FeatureDim)
		for j := range features {
			features[j] = rng.NormFloat64()
		}
		heldOut[i] = policy.Trajectory{
			EnvID:    fmt.Sprintf("heldout-%d", i),
			Features: features,
			Action:   i % policy.NumActions,
		}
	}

	return evaluator.New(evaluator.WithEvaluate(func(ctx context.Context, path string) error {
		if err := model.Load(path); err != nil {
			return err
		}
		logProbs, _, err := model.Score(heldOut)
		if err != nil {
			return err
		}
		var sum float64
		for _, lp := range logProbs {
			sum += lp
		}
		log.Printf("[evaluator] checkpoint %s: held-out avg. log-prob=%.6f", path, sum/float64(len(logProbs)))
		return nil
	}))
}
