package evidence

import (
	"context"
	"sync"
)

type memReport struct {
	citations []*Citation
	sources   map[string]bool
}

// MemoryRepository is an in-memory, thread-safe Repository implementation
// for tests and single-process deployments.
type MemoryRepository struct {
	mu      sync.RWMutex
	reports map[string]*memReport
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reports: make(map[string]*memReport)}
}

func (r *MemoryRepository) report(reportID string, create bool) *memReport {
	if rec := r.reports[reportID]; rec != nil || !create {
		return rec
	}
	rec := &memReport{sources: make(map[string]bool)}
	r.reports[reportID] = rec
	return rec
}

// Insert implements Repository.
func (r *MemoryRepository) Insert(_ context.Context, c *Citation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.report(c.ReportID, true)
	rec.citations = append(rec.citations, c)
	return nil
}

// ListByReport implements Repository. Citations are kept in insertion order,
// which is creation order.
func (r *MemoryRepository) ListByReport(_ context.Context, reportID string) ([]*Citation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := r.report(reportID, false)
	if rec == nil {
		return nil, nil
	}
	out := make([]*Citation, len(rec.citations))
	copy(out, rec.citations)
	return out, nil
}

// RegisterSource implements Repository.
func (r *MemoryRepository) RegisterSource(_ context.Context, reportID, sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report(reportID, true).sources[sourceID] = true
	return nil
}

// Sources implements Repository.
func (r *MemoryRepository) Sources(_ context.Context, reportID string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := r.report(reportID, false)
	if rec == nil {
		return map[string]bool{}, nil
	}
	out := make(map[string]bool, len(rec.sources))
	for k, v := range rec.sources {
		out[k] = v
	}
	return out, nil
}
