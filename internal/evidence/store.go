package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/impactlens/trustledger/internal/canonical"
	"go.uber.org/zap"
)

// Repository is the persistence boundary of the evidence store. Citations
// are insert-only; RegisterSource records, independently of the citation row,
// that a source is recognized for a report, so a tampered sourceId can be
// caught by comparing against this set. Both MemoryRepository and
// PostgresRepository implement it.
type Repository interface {
	Insert(ctx context.Context, c *Citation) error
	ListByReport(ctx context.Context, reportID string) ([]*Citation, error)
	RegisterSource(ctx context.Context, reportID, sourceID string) error
	Sources(ctx context.Context, reportID string) (map[string]bool, error)
}

// Store implements attach, list and verify over a Repository.
type Store struct {
	repo   Repository
	logger *zap.Logger
}

// NewStore creates a Store backed by the given repository.
func NewStore(repo Repository, logger *zap.Logger) *Store {
	return &Store{repo: repo, logger: logger}
}

// Attach computes the snippet's content hash, persists the citation and
// registers its source for the report. Duplicate text is legitimate
// (repeated quotes) and never fails; only empty text or a missing source
// reference is rejected.
func (s *Store) Attach(ctx context.Context, reportID, snippetID, sourceID, text string, relevanceScore float64) (*Citation, error) {
	if reportID == "" {
		return nil, &ErrValidation{Msg: "reportId is required"}
	}
	if canonical.Normalize(text) == "" {
		return nil, &ErrValidation{Msg: "snippet text must not be empty"}
	}
	if sourceID == "" {
		return nil, &ErrValidation{Msg: "sourceId is required"}
	}
	if relevanceScore < 0 || relevanceScore > 1 {
		return nil, &ErrValidation{Msg: "relevanceScore must be between 0 and 1"}
	}

	c := &Citation{
		ID:             uuid.New(),
		ReportID:       reportID,
		SnippetID:      snippetID,
		SourceID:       sourceID,
		Text:           text,
		RelevanceScore: relevanceScore,
		SnippetHash:    canonical.SnippetHash(text, sourceID),
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("insert citation: %w", err)
	}
	if err := s.repo.RegisterSource(ctx, reportID, sourceID); err != nil {
		return nil, fmt.Errorf("register source: %w", err)
	}

	s.logger.Debug("citation attached",
		zap.String("report_id", reportID),
		zap.String("source_id", sourceID),
		zap.String("snippet_hash", c.SnippetHash),
	)
	return c, nil
}

// ListForReport returns the report's citations ordered by creation.
// A report with no citations yields an empty slice, not an error.
func (s *Store) ListForReport(ctx context.Context, reportID string) ([]*Citation, error) {
	return s.repo.ListByReport(ctx, reportID)
}

// Verify recomputes each citation's snippet hash from its current stored
// text and source and compares against the hash recorded at attach time.
// Unknown citation ids are reported per-result. A report with no stored
// citations fails with ErrNotFound; callers that know the report from
// elsewhere (e.g. its ledger chain) decide how to answer.
func (s *Store) Verify(ctx context.Context, reportID string, citationIDs []string) ([]VerificationResult, error) {
	citations, err := s.repo.ListByReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("list citations: %w", err)
	}
	if len(citations) == 0 {
		return nil, ErrNotFound
	}

	sources, err := s.repo.Sources(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	byID := make(map[string]*Citation, len(citations))
	for _, c := range citations {
		byID[c.ID.String()] = c
	}

	results := make([]VerificationResult, 0, len(citationIDs))
	for _, id := range citationIDs {
		c, ok := byID[id]
		if !ok {
			results = append(results, VerificationResult{
				CitationID: id,
				Reason:     "citation not found",
			})
			continue
		}

		recomputed := canonical.SnippetHash(c.Text, c.SourceID)
		res := VerificationResult{
			CitationID:    id,
			Valid:         recomputed == c.SnippetHash,
			SnippetHash:   c.SnippetHash,
			MatchesSource: sources[c.SourceID],
		}
		if !res.Valid {
			res.Reason = "Hash mismatch detected"
			s.logger.Warn("citation hash mismatch",
				zap.String("report_id", reportID),
				zap.String("citation_id", id),
			)
		}
		results = append(results, res)
	}
	return results, nil
}
