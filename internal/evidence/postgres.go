package evidence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRepository persists citations and recognized sources to PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a PostgresRepository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{pool: pool, logger: logger}
}

// Insert implements Repository.
func (r *PostgresRepository) Insert(ctx context.Context, c *Citation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO citations
		   (id, report_id, snippet_id, source_id, snippet_text, relevance_score, snippet_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.ReportID, c.SnippetID, c.SourceID,
		c.Text, c.RelevanceScore, c.SnippetHash, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert citation: %w", err)
	}
	return nil
}

// ListByReport implements Repository.
func (r *PostgresRepository) ListByReport(ctx context.Context, reportID string) ([]*Citation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, report_id, snippet_id, source_id, snippet_text, relevance_score, snippet_hash, created_at
		 FROM citations WHERE report_id = $1 ORDER BY created_at ASC, id ASC`, reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("query citations: %w", err)
	}
	defer rows.Close()

	var citations []*Citation
	for rows.Next() {
		c := &Citation{}
		if err := rows.Scan(
			&c.ID, &c.ReportID, &c.SnippetID, &c.SourceID,
			&c.Text, &c.RelevanceScore, &c.SnippetHash, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan citation: %w", err)
		}
		citations = append(citations, c)
	}
	return citations, rows.Err()
}

// RegisterSource implements Repository. Re-registering a known source is a
// no-op.
func (r *PostgresRepository) RegisterSource(ctx context.Context, reportID, sourceID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO report_sources (report_id, source_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, reportID, sourceID,
	)
	if err != nil {
		return fmt.Errorf("register source: %w", err)
	}
	return nil
}

// Sources implements Repository.
func (r *PostgresRepository) Sources(ctx context.Context, reportID string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT source_id FROM report_sources WHERE report_id = $1`, reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("query report sources: %w", err)
	}
	defer rows.Close()

	sources := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source id: %w", err)
		}
		sources[id] = true
	}
	return sources, rows.Err()
}
