package policy

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"async-program-rl/pkg/config"
	"async-program-rl/pkg/learner"
	"async-program-rl/pkg/messaging"
)

func testTrajectory(action int) Trajectory {
	return Trajectory{
		EnvID:    "env-1",
		Features: []float64{0.1, -0.2, 0.3, 0.4},
		Action:   action,
	}
}

func TestLinearModel(t *testing.T) {
	t.Run("test score returns log probs and entropies", func(t *testing.T) {
		m := NewLinearModel(rand.New(rand.NewSource(1)))

		logProbs, entropies, err := m.Score([]any{testTrajectory(0), testTrajectory(1)})
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if len(logProbs) != 2 || len(entropies) != 2 {
			t.Fatalf("got %d log-probs and %d entropies, want 2 each", len(logProbs), len(entropies))
		}
		for i, lp := range logProbs {
			if lp >= 0 {
				t.Errorf("log-prob %d = %v, want negative", i, lp)
			}
		}
		for i, e := range entropies {
			if e <= 0 {
				t.Errorf("entropy %d = %v, want positive", i, e)
			}
		}
	})

	t.Run("test score rejects foreign trajectory types", func(t *testing.T) {
		m := NewLinearModel(rand.New(rand.NewSource(1)))
		if _, _, err := m.Score([]any{"not-a-trajectory"}); err == nil {
			t.Error("expected error scoring a foreign payload, got nil")
		}
	})

	t.Run("test backward requires a scored batch", func(t *testing.T) {
		m := NewLinearModel(rand.New(rand.NewSource(1)))
		if err := m.Backward(1.0); err == nil {
			t.Error("expected error for backward before score, got nil")
		}
	})

	t.Run("test optimizer step moves its group only", func(t *testing.T) {
		m := NewLinearModel(rand.New(rand.NewSource(1)))
		primary := newSGD(m, groupPrimary, 0.1)
		secondary := newSGD(m, groupSecondary, 0.1)

		if _, _, err := m.Score([]any{testTrajectory(0)}); err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if err := m.Backward(2.0); err != nil {
			t.Fatalf("backward failed: %v", err)
		}

		before := m.weights
		secondary.Step()
		if m.weights.B == before.B {
			t.Error("secondary step did not move the bias group")
		}
		if m.weights.W != before.W {
			t.Error("secondary step moved the primary group")
		}

		before = m.weights
		primary.Step()
		if m.weights.W == before.W {
			t.Error("primary step did not move the weight group")
		}
	})

	t.Run("test clip grad norm caps the gradient", func(t *testing.T) {
		m := NewLinearModel(rand.New(rand.NewSource(1)))
		secondary := newSGD(m, groupSecondary, 0.1)

		m.grads.B = [NumActions]float64{30, -40} // norm 50
		norm := secondary.ClipGradNorm(5.0)
		if math.Abs(norm-50) > 1e-9 {
			t.Errorf("pre-clip norm = %v, want 50", norm)
		}

		var clipped float64
		for _, g := range m.grads.B {
			clipped += g * g
		}
		if got := math.Sqrt(clipped); math.Abs(got-5.0) > 1e-9 {
			t.Errorf("post-clip norm = %v, want 5.0", got)
		}
	})

	t.Run("test snapshot load round trip", func(t *testing.T) {
		m := NewLinearModel(rand.New(rand.NewSource(1)))
		state, err := m.Snapshot()
		if err != nil {
			t.Fatalf("snapshot failed: %v", err)
		}

		path := filepath.Join(t.TempDir(), "agent_state.iter1.bin")
		if err := os.WriteFile(path, state, 0o644); err != nil {
			t.Fatalf("failed to write artifact: %v", err)
		}

		other := NewLinearModel(rand.New(rand.NewSource(99)))
		if err := other.Load(path); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if other.weights != m.weights {
			t.Error("loaded weights differ from snapshot source")
		}
	})

	t.Run("test same seed gives same weights", func(t *testing.T) {
		m1 := NewLinearModel(rand.New(rand.NewSource(7)))
		m2 := NewLinearModel(rand.New(rand.NewSource(7)))
		if m1.weights != m2.weights {
			t.Error("identical seeds produced different initial weights")
		}
	})
}

func TestLinearModelWithLearner(t *testing.T) {
	// Drive the real model through the registry and the full loop.
	cfg := &config.TrainerConfig{
		Seed:                      11,
		WorkDir:                   t.TempDir(),
		Model:                     "linear",
		MaxTrainStep:              4,
		SaveEveryNIter:            2,
		EntropyRegWeight:          0.01,
		GradientAccumulationNIter: 2,
		PrimaryLearningRate:       1e-4,
		SecondaryLearningRate:     1e-2,
		NumActors:                 1,
	}

	l, err := learner.New(cfg)
	if err != nil {
		t.Fatalf("failed to create learner: %v", err)
	}
	for i := 0; i < 4; i++ {
		l.Queue().Push(messaging.SampleBatch{
			Samples: []messaging.TrainingSample{
				{Trajectory: testTrajectory(i % NumActions), Weight: 1.0},
			},
		})
	}

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("learner run failed: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(cfg.WorkDir, "agent_state.iter*.bin"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(matches) != 1 || filepath.Base(matches[0]) != "agent_state.iter4.bin" {
		t.Fatalf("artifacts on disk = %v, want only agent_state.iter4.bin", matches)
	}

	// The final artifact is loadable by an actor-side model copy.
	m := NewLinearModel(rand.New(rand.NewSource(0)))
	if err := m.Load(matches[0]); err != nil {
		t.Errorf("failed to load published checkpoint: %v", err)
	}
}
