// Package evidence stores citation snippets per report and verifies them by
// content address: each citation carries a snippetHash computed once at
// attach time, and verification recomputes the hash from the currently
// stored text and source so any tampering shows up as a mismatch.
package evidence

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a reportId has no evidence record.
var ErrNotFound = errors.New("report not found")

// ErrValidation is returned when the caller supplies invalid input.
// Handlers convert this to HTTP 400 rather than 500.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

// Citation is an immutable quoted snippet attached to a report. SnippetHash
// is computed exactly once at creation and never recomputed from stored
// state; all later integrity checks compare against it.
type Citation struct {
	ID             uuid.UUID `json:"id"`
	ReportID       string    `json:"reportId"`
	SnippetID      string    `json:"snippetId"`
	SourceID       string    `json:"sourceId"`
	Text           string    `json:"text"`
	RelevanceScore float64   `json:"relevanceScore"`
	SnippetHash    string    `json:"snippetHash"`
	CreatedAt      time.Time `json:"createdAt"`
}

// VerificationResult is the per-citation outcome of a verify batch.
// Valid=false with a hash-mismatch reason signals tampering; an unknown
// citation id is reported here rather than aborting the whole batch.
type VerificationResult struct {
	CitationID    string `json:"citationId"`
	Valid         bool   `json:"valid"`
	SnippetHash   string `json:"snippetHash,omitempty"`
	MatchesSource bool   `json:"matchesSource"`
	Reason        string `json:"reason,omitempty"`
}
