package ledger

import "errors"

// ErrNotFound is returned when a reportId has no chain at all. A chain that
// exists is never empty: the first successful append creates it.
var ErrNotFound = errors.New("ledger chain not found")

// ErrChainConflict is returned by Append when the existing chain fails
// verification, or when the optimistic-concurrency retry budget is exhausted
// against a head that keeps moving. No entry is written in either case.
var ErrChainConflict = errors.New("cannot append to broken ledger chain")

// ErrHeadMoved is returned by Repository.TryAppend when the chain head no
// longer matches the expected previous hash at write time. The Chain retries
// on it; it never escapes to callers of Append.
var ErrHeadMoved = errors.New("ledger head moved")

// ErrValidation is returned when the caller supplies invalid input.
// Handlers convert this to HTTP 400 rather than 500.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }
