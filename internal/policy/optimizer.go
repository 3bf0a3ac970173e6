package policy

import (
	"math"

	"async-program-rl/pkg/learner"
)

type group int

const (
	groupPrimary group = iota
	groupSecondary
)

// sgd applies plain gradient descent to one parameter group of a
// LinearModel. It satisfies the learner optimizer contract; a fresh
// instance carries no running state, so reconstructing one at the
// freeze boundary is a true reset.
type sgd struct {
	model *LinearModel
	group group
	lr    float64
}

func newSGD(m *LinearModel, g group, lr float64) learner.Optimizer {
	return &sgd{model: m, group: g, lr: lr}
}

func (o *sgd) ZeroGrad() {
	o.model.mu.Lock()
	defer o.model.mu.Unlock()

	switch o.group {
	case groupPrimary:
		o.model.grads.W = [NumActions][FeatureDim]float64{}
	case groupSecondary:
		o.model.grads.B = [NumActions]float64{}
	}
}

func (o *sgd) Step() {
	o.model.mu.Lock()
	defer o.model.mu.Unlock()

	switch o.group {
	case groupPrimary:
		for i := 0; i < NumActions; i++ {
			for j := 0; j < FeatureDim; j++ {
				o.model.weights.W[i][j] -= o.lr * o.model.grads.W[i][j]
			}
		}
	case groupSecondary:
		for i := 0; i < NumActions; i++ {
			o.model.weights.B[i] -= o.lr * o.model.grads.B[i]
		}
	}
}

func (o *sgd) ClipGradNorm(maxNorm float64) float64 {
	o.model.mu.Lock()
	defer o.model.mu.Unlock()

	var sumSq float64
	switch o.group {
	case groupPrimary:
		for i := 0; i < NumActions; i++ {
			for j := 0; j < FeatureDim; j++ {
				sumSq += o.model.grads.W[i][j] * o.model.grads.W[i][j]
			}
		}
	case groupSecondary:
		for i := 0; i < NumActions; i++ {
			sumSq += o.model.grads.B[i] * o.model.grads.B[i]
		}
	}
	norm := math.Sqrt(sumSq)
	if norm <= maxNorm || norm == 0 {
		return norm
	}

	scale := maxNorm / norm
	switch o.group {
	case groupPrimary:
		for i := 0; i < NumActions; i++ {
			for j := 0; j < FeatureDim; j++ {
				o.model.grads.W[i][j] *= scale
			}
		}
	case groupSecondary:
		for i := 0; i < NumActions; i++ {
			o.model.grads.B[i] *= scale
		}
	}
	return norm
}
