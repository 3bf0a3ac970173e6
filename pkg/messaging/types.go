package messaging

// TrainingSample is one labeled trajectory produced by an actor. The
// trajectory payload is opaque to the coordination layer; only the model
// selected at startup knows how to score it. Samples are immutable after
// creation and consumed exactly once by the learner.
type TrainingSample struct {
	Trajectory any
	Weight     float64
}

// BatchMetadata is the numeric side channel delivered alongside a batch
// (e.g. the fraction of clipped samples). Boolean values encode as 0/1.
type BatchMetadata map[string]float64

// SampleBatch is one queue message: an ordered sequence of samples plus
// metadata. Batches are never reordered relative to each other; per-sample
// order within a batch must be preserved for weight alignment.
type SampleBatch struct {
	Samples []TrainingSample
	Meta    BatchMetadata
}
