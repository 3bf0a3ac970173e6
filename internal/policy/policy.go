// Package policy provides a small deterministic softmax policy so the
// trainer binary and tests have a concrete model behind the learner's
// opaque contracts. The real decision-program models live outside this
// repo.
package policy

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"

	"async-program-rl/pkg/config"
	"async-program-rl/pkg/learner"
)

// FeatureDim is the fixed input width of the linear policy.
const FeatureDim = 4

// NumActions is the number of program slots the policy chooses between.
const NumActions = 2

// Trajectory is the rollout payload the linear policy knows how to
// score.
type Trajectory struct {
	EnvID    string
	Features []float64
	Action   int
}

// Weights is the serializable trainable state. W is the primary
// (slow-tuned) group, B the secondary group.
type Weights struct {
	W [NumActions][FeatureDim]float64
	B [NumActions]float64
}

type gradients struct {
	W [NumActions][FeatureDim]float64
	B [NumActions]float64
}

type scored struct {
	features []float64
	action   int
	probs    []float64
}

// LinearModel is a two-group softmax policy implementing the learner
// model contract.
type LinearModel struct {
	weights Weights
	grads   gradients
	batch   []scored
	mu      sync.Mutex
}

// NewLinearModel initializes small random weights from rng.
func NewLinearModel(rng *rand.Rand) *LinearModel {
	m := &LinearModel{}
	for i := 0; i < NumActions; i++ {
		for j := 0; j < FeatureDim; j++ {
			m.weights.W[i][j] = (rng.Float64() - 0.5) * 0.02
		}
	}
	return m
}

func init() {
	learner.RegisterModel("linear", func(cfg *config.TrainerConfig, rng *rand.Rand) (*learner.Setup, error) {
		m := NewLinearModel(rng)
		return &learner.Setup{
			Model:   m,
			Primary: newSGD(m, groupPrimary, cfg.PrimaryLearningRate),
			NewSecondary: func() learner.Optimizer {
				return newSGD(m, groupSecondary, cfg.SecondaryLearningRate)
			},
		}, nil
	})
}

func (m *LinearModel) Score(trajectories []any) ([]float64, []float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logProbs := make([]float64, len(trajectories))
	entropies := make([]float64, len(trajectories))
	m.batch = m.batch[:0]

	for i, t := range trajectories {
		traj, ok := t.(Trajectory)
		if !ok {
			return nil, nil, fmt.Errorf("linear model cannot score trajectory of type %T", t)
		}
		if len(traj.Features) != FeatureDim {
			return nil, nil, fmt.Errorf("trajectory has %d features, want %d", len(traj.Features), FeatureDim)
		}
		if traj.Action < 0 || traj.Action >= NumActions {
			return nil, nil, fmt.Errorf("trajectory action %d out of range", traj.Action)
		}

		probs := m.probs(traj.Features)
		logProbs[i] = math.Log(probs[traj.Action] + 1e-8)

		var entropy float64
		for _, p := range probs {
			if p > 0 {
				entropy -= p * math.Log(p)
			}
		}
		entropies[i] = entropy

		m.batch = append(m.batch, scored{
			features: traj.Features,
			action:   traj.Action,
			probs:    probs,
		})
	}
	return logProbs, entropies, nil
}

// Backward accumulates the score-function gradient of the cached batch,
// scaled by the reported scalar loss. Gradients persist across calls
// until an optimizer zeroes its group.
func (m *LinearModel) Backward(loss float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.batch) == 0 {
		return errors.New("backward called before score")
	}
	n := float64(len(m.batch))
	for _, s := range m.batch {
		for a := 0; a < NumActions; a++ {
			indicator := 0.0
			if a == s.action {
				indicator = 1.0
			}
			dLogit := loss * (indicator - s.probs[a]) / n
			m.grads.B[a] += dLogit
			for j := 0; j < FeatureDim; j++ {
				m.grads.W[a][j] += dLogit * s.features[j]
			}
		}
	}
	m.batch = m.batch[:0]
	return nil
}

func (m *LinearModel) Snapshot() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m.weights); err != nil {
		return nil, fmt.Errorf("failed to encode model state: %w", err)
	}
	return buf.Bytes(), nil
}

// Load replaces the weights from a checkpoint artifact. Safe to call
// repeatedly with the same path.
func (m *LinearModel) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}
	var w Weights
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = w
	return nil
}

// SampleAction picks an action for features under the current weights,
// returning the action and its log-probability.
func (m *LinearModel) SampleAction(features []float64, rng *rand.Rand) (int, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	probs := m.probs(features)
	threshold := rng.Float64()
	var cumulative float64
	choice := NumActions - 1
	for i, p := range probs {
		cumulative += p
		if threshold <= cumulative {
			choice = i
			break
		}
	}
	return choice, math.Log(probs[choice] + 1e-8)
}

func (m *LinearModel) probs(features []float64) []float64 {
	logits := make([]float64, NumActions)
	for i := 0; i < NumActions; i++ {
		logits[i] = m.weights.B[i]
		for j := 0; j < FeatureDim && j < len(features); j++ {
			logits[i] += m.weights.W[i][j] * features[j]
		}
	}
	return softmax(logits)
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	values := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		values[i] = math.Exp(v - maxLogit)
		sum += values[i]
	}
	for i := range values {
		values[i] /= sum
	}
	return values
}
