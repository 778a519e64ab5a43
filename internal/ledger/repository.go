package ledger

import "context"

// Head identifies the current tip of a chain. An empty chain has
// Sequence == -1 and Hash == GenesisHash.
type Head struct {
	Sequence int
	Hash     string
}

// Repository is the persistence and concurrency-control boundary of the
// ledger. Implementations must make TryAppend a single atomic
// compare-and-swap on the chain head, and must give ReadAll at least
// snapshot-isolated reads so a verification never observes a half-written
// entry. Both MemoryRepository and PostgresRepository implement it.
type Repository interface {
	// ReadHead returns the current chain tip for reportID, or the genesis
	// sentinel head if the chain does not exist.
	ReadHead(ctx context.Context, reportID string) (Head, error)

	// ReadAll returns the chain's entries in ascending sequence order.
	// A missing chain yields an empty slice, not an error.
	ReadAll(ctx context.Context, reportID string) ([]*Entry, error)

	// TryAppend persists entry iff the chain head hash still equals
	// expectedPreviousHash at write time. On a lost race it returns
	// ErrHeadMoved and writes nothing.
	TryAppend(ctx context.Context, entry *Entry, expectedPreviousHash string) error

	// Reports lists every reportID that has at least one entry.
	Reports(ctx context.Context) ([]string, error)
}
