package ledger

import (
	"context"
	"sort"
	"sync"
)

// memChain holds one report's entries. Each chain has its own mutex so
// appends to different reports never block each other.
type memChain struct {
	mu      sync.Mutex
	entries []*Entry
}

// MemoryRepository is an in-memory, thread-safe Repository implementation.
// It is used by tests and by single-process deployments that do not require
// durable persistence across restarts.
type MemoryRepository struct {
	mu     sync.RWMutex
	chains map[string]*memChain
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{chains: make(map[string]*memChain)}
}

func (r *MemoryRepository) chain(reportID string, create bool) *memChain {
	r.mu.RLock()
	c := r.chains[reportID]
	r.mu.RUnlock()
	if c != nil || !create {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c = r.chains[reportID]; c == nil {
		c = &memChain{}
		r.chains[reportID] = c
	}
	return c
}

// ReadHead implements Repository.
func (r *MemoryRepository) ReadHead(_ context.Context, reportID string) (Head, error) {
	c := r.chain(reportID, false)
	if c == nil {
		return Head{Sequence: -1, Hash: GenesisHash}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return Head{Sequence: -1, Hash: GenesisHash}, nil
	}
	tip := c.entries[len(c.entries)-1]
	return Head{Sequence: tip.Sequence, Hash: tip.Hash}, nil
}

// ReadAll implements Repository. Entries are immutable after a successful
// append, so a shallow copy of the slice is a consistent snapshot.
func (r *MemoryRepository) ReadAll(_ context.Context, reportID string) ([]*Entry, error) {
	c := r.chain(reportID, false)
	if c == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

// TryAppend implements Repository. The head comparison and the append happen
// under the chain mutex, making the operation an atomic compare-and-swap.
func (r *MemoryRepository) TryAppend(_ context.Context, entry *Entry, expectedPreviousHash string) error {
	c := r.chain(entry.ReportID, true)
	c.mu.Lock()
	defer c.mu.Unlock()

	head := GenesisHash
	if n := len(c.entries); n > 0 {
		head = c.entries[n-1].Hash
	}
	if head != expectedPreviousHash {
		return ErrHeadMoved
	}
	c.entries = append(c.entries, entry)
	return nil
}

// Reports implements Repository.
func (r *MemoryRepository) Reports(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.chains))
	for id, c := range r.chains {
		c.mu.Lock()
		n := len(c.entries)
		c.mu.Unlock()
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
