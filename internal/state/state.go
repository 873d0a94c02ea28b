// Package state groups the per-state infrastructure. Each state authority
// runs its own ledger and voter record store; nothing below this package is
// shared between states.
package state

import (
	"sort"

	"voterchain/internal/ledger"
	"voterchain/internal/voter"
	"voterchain/pkg/platform/sentinel"
)

// Backend is one state authority's slice of the system.
type Backend struct {
	Name   string
	Ledger *ledger.Service
	Voters voter.Store
}

// Cluster holds every state backend hosted by this process. Lookup is by
// state name; membership is fixed at startup.
type Cluster struct {
	backends map[string]*Backend
}

func NewCluster(backends ...*Backend) *Cluster {
	m := make(map[string]*Backend, len(backends))
	for _, b := range backends {
		m[b.Name] = b
	}
	return &Cluster{backends: m}
}

// Backend returns the named state backend, or sentinel.ErrNotFound for a
// state this process does not host.
func (c *Cluster) Backend(name string) (*Backend, error) {
	b, ok := c.backends[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return b, nil
}

// Names returns the hosted state names in sorted order.
func (c *Cluster) Names() []string {
	names := make([]string, 0, len(c.backends))
	for name := range c.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
