package billing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vnmchuo/whatspay/internal/state"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Archive mirrors usage entries into Postgres for reporting. The JSON state
// file stays authoritative; the archive is append-only and best effort.
//
// Expected schema:
//
//	CREATE TABLE usage_archive (
//	    id          UUID PRIMARY KEY,
//	    user_id     TEXT NOT NULL,
//	    kind        TEXT NOT NULL,
//	    cost_htr    DOUBLE PRECISION NOT NULL,
//	    input_tokens  INT NOT NULL,
//	    output_tokens INT NOT NULL,
//	    preview     TEXT,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
type Archive struct {
	db DB
}

func NewArchive(db DB) *Archive {
	return &Archive{db: db}
}

func (a *Archive) Insert(ctx context.Context, userID string, entry state.UsageEntry) error {
	query := `
		INSERT INTO usage_archive (id, user_id, kind, cost_htr, input_tokens, output_tokens, preview, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := a.db.Exec(ctx, query,
		entry.ID, userID, entry.Kind, entry.Cost,
		entry.InputTokens, entry.OutputTokens, entry.Preview, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to archive usage entry: %w", err)
	}
	return nil
}

func (a *Archive) Count(ctx context.Context) (int64, error) {
	var n int64
	err := a.db.QueryRow(ctx, `SELECT COUNT(*) FROM usage_archive`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived usage: %w", err)
	}
	return n, nil
}

// TotalSpent sums a user's archived spend in HTR.
func (a *Archive) TotalSpent(ctx context.Context, userID string) (float64, error) {
	var total float64
	err := a.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_htr), 0) FROM usage_archive WHERE user_id = $1`,
		userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to total archived usage: %w", err)
	}
	return total, nil
}
