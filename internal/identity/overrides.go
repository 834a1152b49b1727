package identity

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// OverridesRepo loads operator identity overrides from Postgres.
type OverridesRepo interface {
	// Load returns every active override row.
	Load(ctx context.Context) ([]Override, error)
}

type overridesRepo struct {
	conn sqlx.SqlConn
}

// NewOverridesRepo wraps a database connection.
func NewOverridesRepo(conn sqlx.SqlConn) OverridesRepo {
	return &overridesRepo{conn: conn}
}

type overrideRow struct {
	VariantID   string `db:"variant_id"`
	CanonicalID string `db:"canonical_id"`
	Rank        int    `db:"priority_rank"`
}

func (r *overridesRepo) Load(ctx context.Context) ([]Override, error) {
	query := `
SELECT variant_id, canonical_id, priority_rank
FROM public.identity_overrides
WHERE active
ORDER BY variant_id`

	var rows []overrideRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("overridesRepo.Load query: %w", err)
	}

	overrides := make([]Override, 0, len(rows))
	for _, row := range rows {
		overrides = append(overrides, Override{
			VariantID:   row.VariantID,
			CanonicalID: row.CanonicalID,
			Rank:        row.Rank,
		})
	}
	return overrides, nil
}
