package amm

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry indexes pairs by their share token address.
type Registry struct {
	mu    sync.RWMutex
	pairs map[common.Address]*Pair
}

// NewRegistry returns an empty pair registry.
func NewRegistry() *Registry {
	return &Registry{pairs: make(map[common.Address]*Pair)}
}

// Add registers the pair under its address.
func (r *Registry) Add(pair *Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs[pair.Address()] = pair
}

// Pair resolves a share token address to its pair.
func (r *Registry) Pair(addr common.Address) (*Pair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pair, ok := r.pairs[addr]
	return pair, ok
}

// Addresses lists registered pair addresses in ascending order.
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.pairs))
	for addr := range r.pairs {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hex() < out[j].Hex()
	})
	return out
}
