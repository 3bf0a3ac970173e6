package learner

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"async-program-rl/pkg/config"
)

// Factory builds a model setup from the startup config and the run's
// seeded random source.
type Factory func(cfg *config.TrainerConfig, rng *rand.Rand) (*Setup, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// RegisterModel makes a model factory selectable via the `model` config
// key. Typically called from an init function of the implementing
// package.
func RegisterModel(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// BuildModel constructs the setup registered under name.
func BuildModel(name string, cfg *config.TrainerConfig, rng *rand.Rand) (*Setup, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		registryMu.RLock()
		known := make([]string, 0, len(registry))
		for k := range registry {
			known = append(known, k)
		}
		registryMu.RUnlock()
		sort.Strings(known)
		return nil, fmt.Errorf("unknown model %q (registered: %v)", name, known)
	}
	return f(cfg, rng)
}
