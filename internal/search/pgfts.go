package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS searches document titles with PostgreSQL full-text search. It backs
// the service when Meilisearch is not configured or unhealthy.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const titleVector = "to_tsvector('simple', d.title)"

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	scopeColumn, scope := "d.owner_id", q.OwnerID
	if q.OrganizationID != "" {
		scopeColumn, scope = "d.organization_id", q.OrganizationID
	}
	where := fmt.Sprintf("%s @@ plainto_tsquery('simple', $1) AND %s = $2", titleVector, scopeColumn)

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM documents d WHERE `+where, q.Text, scope).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT d.id, d.title,
			ts_headline('simple', d.title, plainto_tsquery('simple', $1), 'StartSel=<mark>,StopSel=</mark>'),
			d.owner_id, d.organization_id, d.updated_at
		FROM documents d
		WHERE %s
		ORDER BY ts_rank(%s, plainto_tsquery('simple', $1)) DESC, d.updated_at DESC
		LIMIT $3 OFFSET $4`, where, titleVector),
		q.Text, scope, normalizeLimit(q.Limit), max(q.Offset, 0),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Highlight, &r.OwnerID, &r.OrganizationID, &r.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every document for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, title, owner_id, organization_id, updated_at FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	documents := make([]DocumentRecord, 0)
	for rows.Next() {
		var (
			d         DocumentRecord
			updatedAt time.Time
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.OwnerID, &d.OrganizationID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.UpdatedAt = updatedAt.UnixMilli()
		documents = append(documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return documents, nil
}
