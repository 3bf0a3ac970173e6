package cache

import (
	"sort"
	"sync"
)

// Stat is a consistent-enough (not necessarily linearizable) snapshot of
// cache size, used only for reporting.
type Stat struct {
	NumEntries int `json:"num_entries"`
	NumEnvs    int `json:"num_envs"`
}

// Cache is the shared program cache contract the learner and actors
// depend on. Entries are monotonically non-decreasing during a run:
// programs are only ever added, never evicted. Concurrency control and
// cross-process synchronization are the implementation's concern.
type Cache interface {
	// Put records a discovered program for an environment. Adding a
	// program that is already present is a no-op.
	Put(envID string, program string) error
	// Stat returns a non-blocking snapshot of aggregate sizes.
	Stat() Stat
	// AllPrograms returns a full snapshot suitable for serialization,
	// mapping environment id to its sorted distinct programs.
	AllPrograms() map[string][]string
}

// MemoryCache is the in-process Cache used when all roles share one
// process. Safe for concurrent use.
type MemoryCache struct {
	programs map[string]map[string]struct{}
	entries  int
	mu       sync.RWMutex
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		programs: make(map[string]map[string]struct{}),
	}
}

func (c *MemoryCache) Put(envID string, program string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.programs[envID]
	if !ok {
		set = make(map[string]struct{})
		c.programs[envID] = set
	}
	if _, exists := set[program]; !exists {
		set[program] = struct{}{}
		c.entries++
	}
	return nil
}

func (c *MemoryCache) Stat() Stat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stat{
		NumEntries: c.entries,
		NumEnvs:    len(c.programs),
	}
}

func (c *MemoryCache) AllPrograms() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Copy out so callers can serialize without holding the lock.
	all := make(map[string][]string, len(c.programs))
	for envID, set := range c.programs {
		programs := make([]string, 0, len(set))
		for p := range set {
			programs = append(programs, p)
		}
		sort.Strings(programs)
		all[envID] = programs
	}
	return all
}
