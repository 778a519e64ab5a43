package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// appendAttempts bounds the optimistic-concurrency retry loop in Append.
// Contention per report is expected to be low (one report is rarely appended
// to by two writers simultaneously), so a small budget suffices.
const appendAttempts = 3

// IntegrityViolation pinpoints the earliest broken entry found by Verify,
// so operators can triage without re-deriving the scan themselves. Sequence
// is the entry's position in the chain as walked.
type IntegrityViolation struct {
	EntryID  uuid.UUID `json:"entryId"`
	Sequence int       `json:"sequence"`
	Reason   string    `json:"reason"`
}

// VerifyResult is the outcome of a chain verification. A detected violation
// is a normal, successful result with ChainValid=false — detecting corruption
// is the job of Verify, not a failure of it.
type VerifyResult struct {
	ChainValid  bool                `json:"chainValid"`
	EntryCount  int                 `json:"entryCount"`
	GenesisHash string              `json:"genesisHash"`
	HeadHash    string              `json:"headHash"`
	Violation   *IntegrityViolation `json:"integrityViolation,omitempty"`
}

// Chain owns the append/verify/history operations over a Repository.
// All hash computation happens here; the repository only persists.
type Chain struct {
	repo   Repository
	logger *zap.Logger
}

// NewChain creates a Chain backed by the given repository.
func NewChain(repo Repository, logger *zap.Logger) *Chain {
	return &Chain{repo: repo, logger: logger}
}

// Append records a new lifecycle event for reportID. The existing chain must
// currently verify as valid; a broken chain refuses appends with
// ErrChainConflict and nothing is written — partial corruption is never
// compounded. Concurrent appends race on the head via the repository CAS and
// the loser retries against the fresh head up to appendAttempts times.
func (c *Chain) Append(ctx context.Context, reportID string, eventType EventType, actor string, metadata map[string]any) (*Entry, error) {
	if reportID == "" {
		return nil, &ErrValidation{Msg: "reportId is required"}
	}
	if !eventType.Valid() {
		return nil, &ErrValidation{Msg: fmt.Sprintf("unknown eventType %q", eventType)}
	}
	if actor == "" {
		return nil, &ErrValidation{Msg: "actor is required"}
	}

	for attempt := 1; attempt <= appendAttempts; attempt++ {
		entries, err := c.repo.ReadAll(ctx, reportID)
		if err != nil {
			return nil, fmt.Errorf("read chain: %w", err)
		}

		// Precondition: never extend a broken chain.
		if res := VerifyEntries(entries); !res.ChainValid {
			c.logger.Warn("append refused: chain is broken",
				zap.String("report_id", reportID),
				zap.Int("sequence", res.Violation.Sequence),
				zap.String("reason", res.Violation.Reason),
			)
			return nil, fmt.Errorf("%w: %s at sequence %d",
				ErrChainConflict, res.Violation.Reason, res.Violation.Sequence)
		}

		prevHash := GenesisHash
		if n := len(entries); n > 0 {
			prevHash = entries[n-1].Hash
		}

		entry := &Entry{
			ID:           uuid.New(),
			ReportID:     reportID,
			Sequence:     len(entries),
			EventType:    eventType,
			Actor:        actor,
			Metadata:     metadata,
			// Truncated to microseconds: timestamptz drops nanoseconds, and a
			// round-tripped timestamp must rehash to the stored value.
			Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
			PreviousHash: prevHash,
		}
		entry.Hash, err = computeHash(entry)
		if err != nil {
			// Non-canonicalizable metadata is a caller error, not a chain state.
			return nil, &ErrValidation{Msg: err.Error()}
		}

		switch err := c.repo.TryAppend(ctx, entry, prevHash); {
		case err == nil:
			c.logger.Debug("ledger entry appended",
				zap.String("report_id", reportID),
				zap.Int("sequence", entry.Sequence),
				zap.String("event_type", string(entry.EventType)),
			)
			return entry, nil
		case errors.Is(err, ErrHeadMoved):
			c.logger.Debug("append lost head race, retrying",
				zap.String("report_id", reportID),
				zap.Int("attempt", attempt),
			)
			continue
		default:
			return nil, fmt.Errorf("append entry: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: head kept moving after %d attempts",
		ErrChainConflict, appendAttempts)
}

// Verify walks the chain for reportID in sequence order, recomputing each
// entry's hash from its own fields and checking the link to its predecessor.
// The first failing entry is reported and the scan stops there. An empty or
// missing chain is trivially valid with genesis == head == the sentinel.
func (c *Chain) Verify(ctx context.Context, reportID string) (*VerifyResult, error) {
	entries, err := c.repo.ReadAll(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	return VerifyEntries(entries), nil
}

// History returns the chain's entries in ascending sequence order. It fails
// with ErrNotFound if the reportID has no chain at all; a chain that exists
// always has at least one entry.
func (c *Chain) History(ctx context.Context, reportID string) ([]*Entry, error) {
	entries, err := c.repo.ReadAll(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

// HasChain reports whether reportID has at least one ledger entry.
func (c *Chain) HasChain(ctx context.Context, reportID string) (bool, error) {
	head, err := c.repo.ReadHead(ctx, reportID)
	if err != nil {
		return false, err
	}
	return head.Sequence >= 0, nil
}

// Reports lists every reportID with a chain, for the startup integrity sweep.
func (c *Chain) Reports(ctx context.Context) ([]string, error) {
	return c.repo.Reports(ctx)
}

// VerifyEntries validates a chain snapshot. For each entry it checks, in
// order: the sequence is dense from 0, the previousHash links to the prior
// entry's stored hash (detects relinking/reordering), and the stored hash
// equals the recomputed one (detects mutation of the entry's own content).
// Callers that already hold a snapshot should use this directly instead of
// Verify, which re-reads the repository.
func VerifyEntries(entries []*Entry) *VerifyResult {
	res := &VerifyResult{
		ChainValid:  true,
		EntryCount:  len(entries),
		GenesisHash: GenesisHash,
		HeadHash:    GenesisHash,
	}
	if len(entries) > 0 {
		res.HeadHash = entries[len(entries)-1].Hash
	}

	prevHash := GenesisHash
	for i, e := range entries {
		if e.Sequence != i {
			return res.broken(e, i, fmt.Sprintf("sequence gap: expected %d, found %d", i, e.Sequence))
		}
		if e.PreviousHash != prevHash {
			return res.broken(e, i, "previous hash does not match prior entry")
		}
		expected, err := computeHash(e)
		if err != nil {
			return res.broken(e, i, fmt.Sprintf("entry is not hashable: %v", err))
		}
		if e.Hash != expected {
			return res.broken(e, i, "entry hash does not match its content")
		}
		prevHash = e.Hash
	}
	return res
}

// broken marks the result invalid. position is the entry's index in the
// chain, not its stored Sequence field: the stored value may itself be what
// was tampered with.
func (r *VerifyResult) broken(e *Entry, position int, reason string) *VerifyResult {
	r.ChainValid = false
	r.Violation = &IntegrityViolation{
		EntryID:  e.ID,
		Sequence: position,
		Reason:   reason,
	}
	return r
}
