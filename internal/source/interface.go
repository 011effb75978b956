package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hotdog-curator/internal/models"
)

// ErrUnknownSource is returned when no connector is registered under a name
var ErrUnknownSource = errors.New("unknown source")

// Connector fetches candidate content from one third-party source.
// Search must be safe to call repeatedly and must not deduplicate.
type Connector interface {
	// Name returns the unique source identifier stored on every candidate
	Name() string

	// Search returns at most limit candidates matching query
	Search(ctx context.Context, query string, limit int) ([]*models.CandidateItem, error)

	// TestConnection reports whether the source is reachable and authorized
	TestConnection(ctx context.Context) ConnectionStatus
}

// ConnectionStatus is the outcome of a connector health check
type ConnectionStatus struct {
	Source  string `json:"source" yaml:"source"`
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message" yaml:"message"`
}

// Registry holds connectors by source name
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
	order      []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds a connector, replacing any previous one with the same name
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[c.Name()]; !exists {
		r.order = append(r.order, c.Name())
	}
	r.connectors[c.Name()] = c
}

// Get returns the connector for a source
func (r *Registry) Get(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return c, nil
}

// Names returns registered source names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// TestAll checks every connector concurrently and returns the statuses sorted by name
func (r *Registry) TestAll(ctx context.Context) []ConnectionStatus {
	names := r.Names()
	results := make(chan ConnectionStatus, len(names))

	for _, name := range names {
		c, err := r.Get(name)
		if err != nil {
			results <- ConnectionStatus{Source: name, Message: err.Error()}
			continue
		}
		go func(c Connector) {
			status := c.TestConnection(ctx)
			status.Source = c.Name()
			results <- status
		}(c)
	}

	statuses := make([]ConnectionStatus, 0, len(names))
	for range names {
		statuses = append(statuses, <-results)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Source < statuses[j].Source })
	return statuses
}
