// Package ledger implements the per-report append-only, hash-chained audit
// trail. Every lifecycle event of a generated report becomes an immutable
// Entry whose hash covers all of its fields plus the hash of its predecessor,
// so any single-byte mutation anywhere in a chain is detectable by Verify.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/impactlens/trustledger/internal/canonical"
)

// GenesisHash is the well-known sentinel used as the previousHash of the
// first entry in every chain, and as the head hash of an empty chain. It is
// the trust anchor: all entry hashes chain from this constant.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// EventType identifies a report lifecycle event. The set is closed: every
// consumer switches exhaustively over these values and rejects anything else.
type EventType string

const (
	EventReportGenerated  EventType = "REPORT_GENERATED"
	EventCitationAttached EventType = "CITATION_ATTACHED"
	EventReportApproved   EventType = "REPORT_APPROVED"
	EventReportRejected   EventType = "REPORT_REJECTED"
	EventReportPublished  EventType = "REPORT_PUBLISHED"
)

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	switch t {
	case EventReportGenerated,
		EventCitationAttached,
		EventReportApproved,
		EventReportRejected,
		EventReportPublished:
		return true
	}
	return false
}

// Entry is a single immutable audit record in a report's chain.
// Timestamp is assigned by the ledger at append time, never by the caller,
// so events cannot be backdated.
type Entry struct {
	ID           uuid.UUID      `json:"id"`
	ReportID     string         `json:"reportId"`
	Sequence     int            `json:"sequence"`
	EventType    EventType      `json:"eventType"`
	Actor        string         `json:"actor"`
	Metadata     map[string]any `json:"metadata"`
	Timestamp    time.Time      `json:"timestamp"`
	PreviousHash string         `json:"previousHash"`
	Hash         string         `json:"hash"`
}

// computeHash derives the entry hash from every field except Hash itself.
// Metadata is canonicalized before hashing so structurally equal payloads
// always produce the same digest. The |-separated framing must never change:
// it is part of the cross-deployment hash compatibility contract.
func computeHash(e *Entry) (string, error) {
	meta, err := canonical.Marshal(e.Metadata)
	if err != nil {
		return "", fmt.Errorf("canonicalize metadata: %w", err)
	}
	preimage := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s",
		e.ReportID, e.Sequence, e.EventType, e.Actor,
		meta, e.Timestamp.UTC().Format(time.RFC3339Nano), e.PreviousHash,
	)
	return canonical.Digest([]byte(preimage)), nil
}
