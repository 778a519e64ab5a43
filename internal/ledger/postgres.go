package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRepository persists chains to PostgreSQL. The compare-and-swap in
// TryAppend is a single conditional INSERT guarded by the current head hash;
// the UNIQUE (report_id, sequence) constraint is the backstop against two
// writers observing the same head in the same instant.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a PostgresRepository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{pool: pool, logger: logger}
}

// ReadHead implements Repository.
func (r *PostgresRepository) ReadHead(ctx context.Context, reportID string) (Head, error) {
	var head Head
	err := r.pool.QueryRow(ctx,
		`SELECT sequence, hash FROM ledger_entries
		 WHERE report_id = $1 ORDER BY sequence DESC LIMIT 1`, reportID,
	).Scan(&head.Sequence, &head.Hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return Head{Sequence: -1, Hash: GenesisHash}, nil
	}
	if err != nil {
		return Head{}, fmt.Errorf("read ledger head: %w", err)
	}
	return head, nil
}

// ReadAll implements Repository. A single SELECT gives a snapshot-consistent
// view of the chain under PostgreSQL's default read-committed isolation.
func (r *PostgresRepository) ReadAll(ctx context.Context, reportID string) ([]*Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, report_id, sequence, event_type, actor, metadata, event_time, previous_hash, hash
		 FROM ledger_entries WHERE report_id = $1 ORDER BY sequence ASC`, reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var metaRaw []byte
		if err := rows.Scan(
			&e.ID, &e.ReportID, &e.Sequence, &e.EventType,
			&e.Actor, &metaRaw, &e.Timestamp, &e.PreviousHash, &e.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TryAppend implements Repository. The INSERT only fires when the chain's
// current head hash still equals expectedPreviousHash; zero rows affected
// means the head moved underneath us.
func (r *PostgresRepository) TryAppend(ctx context.Context, entry *Entry, expectedPreviousHash string) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO ledger_entries
		   (id, report_id, sequence, event_type, actor, metadata, event_time, previous_hash, hash)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		 WHERE COALESCE(
		   (SELECT hash FROM ledger_entries WHERE report_id = $2 ORDER BY sequence DESC LIMIT 1),
		   $10
		 ) = $8`,
		entry.ID, entry.ReportID, entry.Sequence, entry.EventType,
		entry.Actor, meta, entry.Timestamp, entry.PreviousHash, entry.Hash,
		GenesisHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Unique violation on (report_id, sequence): a concurrent writer won.
			return ErrHeadMoved
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHeadMoved
	}

	r.logger.Debug("ledger entry persisted",
		zap.String("report_id", entry.ReportID),
		zap.Int("sequence", entry.Sequence),
	)
	return nil
}

// Reports implements Repository.
func (r *PostgresRepository) Reports(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT report_id FROM ledger_entries ORDER BY report_id`)
	if err != nil {
		return nil, fmt.Errorf("list ledger reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan report id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
