package batch

import (
	"sort"
	"sync"
	"time"

	"github.com/ocrflow/ocrflow-backend/pkg/errors"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// Registry is the in-memory index of known batches. Batches stay listed
// after finishing so clients can fetch final results, until cleanup evicts
// inactive terminal ones.
type Registry struct {
	mu      sync.RWMutex
	batches map[string]*Processor
	log     *logger.Logger
}

// NewRegistry creates an empty batch registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		batches: make(map[string]*Processor),
		log:     log.WithComponent("batch-registry"),
	}
}

// Put registers a new batch. Batch IDs are caller-supplied, so re-submission
// of a live ID is a conflict.
func (r *Registry) Put(p *Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.batches[p.BatchID()]; exists {
		return errors.Conflict("batch " + p.BatchID() + " already exists")
	}
	r.batches[p.BatchID()] = p
	return nil
}

// Get returns the batch with the given ID
func (r *Registry) Get(batchID string) (*Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.batches[batchID]
	if !ok {
		return nil, errors.NotFound("batch")
	}
	return p, nil
}

// Delete removes a batch from the registry
func (r *Registry) Delete(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.batches, batchID)
}

// List returns all known batches sorted by batch ID
func (r *Registry) List() []*Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Processor, 0, len(r.batches))
	for _, p := range r.batches {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID() < out[j].BatchID() })
	return out
}

// Cleanup evicts terminal batches whose last activity is older than maxAge
// and returns the number removed. Active batches are never evicted.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, p := range r.batches {
		if p.Status().Terminal() && p.LastActivity().Before(cutoff) {
			delete(r.batches, id)
			removed++
		}
	}
	if removed > 0 {
		r.log.Info().Int("removed", removed).Msg("cleaned up finished batches")
	}
	return removed
}
