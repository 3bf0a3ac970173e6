package learner

// Model is the trainable policy the learner coordinates. Its
// architecture and parameter-group membership are configured outside
// this core; the learner only drives the loss/gradient cycle through
// this boundary.
type Model interface {
	// Score returns one log-probability per trajectory, in input order.
	// Entropies may be nil when the model does not compute them; a
	// learner configured with entropy regularization treats that as a
	// contract violation.
	Score(trajectories []any) (logProbs []float64, entropies []float64, err error)
	// Backward accumulates gradients for the given scalar loss into
	// both parameter groups. Gradients persist until the optimizers
	// zero them.
	Backward(loss float64) error
	// Snapshot serializes the full trainable state for checkpointing.
	Snapshot() ([]byte, error)
}

// Optimizer drives one parameter group of the model.
type Optimizer interface {
	// ZeroGrad clears the group's accumulated gradients.
	ZeroGrad()
	// Step applies the accumulated gradients.
	Step()
	// ClipGradNorm rescales the group's gradients to the max norm and
	// returns the pre-clip norm.
	ClipGradNorm(maxNorm float64) float64
}

// Setup bundles a model with its two optimizer groups: the primary
// (slow-tuned) group stays frozen until freeze_niter, the secondary
// group steps from the start. NewSecondary builds a fresh secondary
// optimizer with empty running moments; it is called once at INIT and
// once more at the freeze boundary.
type Setup struct {
	Model        Model
	Primary      Optimizer
	NewSecondary func() Optimizer
}
