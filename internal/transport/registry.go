package transport

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/weftsched/weft/internal/kernel"
	"github.com/weftsched/weft/internal/strategy"
)

// instance is one scheduler kernel exposed over the transport, plus the
// bookkeeping the HTTP layer needs to persist an iteration record at
// detach time: neither the kernel nor the strategy package know about
// runs, so the token sequence is captured here, one append per successful
// schedule-next.
type instance struct {
	mu     sync.Mutex
	kernel *kernel.Kernel
	runID  string
	cfg    strategy.Config

	steps  int
	tokens []uint64
}

// registry is the process-wide table of live scheduler instances, keyed by
// a fresh uuid per instance. An instance lives until the process exits;
// nothing currently reaps finished ones, mirroring the teacher's workload
// registry which is likewise unbounded for the lifetime of the process.
type registry struct {
	mu        sync.RWMutex
	instances map[string]*instance
}

func newRegistry() *registry {
	return &registry{instances: make(map[string]*instance)}
}

func (r *registry) create(cfg strategy.Config, runID string) (string, *instance, error) {
	k, err := kernel.New(cfg)
	if err != nil {
		return "", nil, fmt.Errorf("construct kernel: %w", err)
	}

	id := uuid.NewString()
	inst := &instance{kernel: k, runID: runID, cfg: cfg}

	r.mu.Lock()
	r.instances[id] = inst
	r.mu.Unlock()

	return id, inst, nil
}

func (r *registry) get(id string) (*instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}
