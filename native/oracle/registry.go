package oracle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry indexes oracles by address.
type Registry struct {
	mu      sync.RWMutex
	oracles map[common.Address]*TWAP
}

// NewRegistry returns an empty oracle registry.
func NewRegistry() *Registry {
	return &Registry{oracles: make(map[common.Address]*TWAP)}
}

// Add registers the oracle under its address.
func (r *Registry) Add(o *TWAP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracles[o.Address()] = o
}

// Oracle resolves an oracle by address.
func (r *Registry) Oracle(addr common.Address) (*TWAP, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.oracles[addr]
	return o, ok
}
