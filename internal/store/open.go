package store

import (
	"fmt"
	"strings"
)

// MemoryScheme selects an in-process partition instead of a remote one.
const MemoryScheme = "memory://"

// Endpoint describes one configured partition.
type Endpoint struct {
	Index   int
	BaseURL string
	Auth    string
}

// Open builds a Set from endpoints. Remote endpoints share opts.
func Open(endpoints []Endpoint, opts ...ClientOption) (*Set, error) {
	stores := make(map[int]Store, len(endpoints))
	for _, ep := range endpoints {
		if _, dup := stores[ep.Index]; dup {
			return nil, fmt.Errorf("duplicate partition index %d", ep.Index)
		}
		if strings.HasPrefix(ep.BaseURL, MemoryScheme) {
			stores[ep.Index] = NewMemoryStore()
			continue
		}
		stores[ep.Index] = NewClient(ep.Index, ep.BaseURL, ep.Auth, opts...)
	}
	return NewSet(stores)
}
