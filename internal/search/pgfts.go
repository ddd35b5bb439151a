package search

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a
// fallback when Meilisearch is not available.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a ranked query over the initiatives' generated tsvector
// column, with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "i.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.ProgramID > 0 {
		where += " AND i.program_id = $2"
		args = append(args, q.ProgramID)
	}

	query := fmt.Sprintf(`
		SELECT i.id, i.program_id, i.name,
			ts_headline('english', coalesce(i.description, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			i.image_url,
			COUNT(*) OVER() AS total
		FROM initiatives i
		WHERE %s
		ORDER BY ts_rank(i.fts, plainto_tsquery('english', $1)) DESC, i.id
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	total := 0
	for rows.Next() {
		var r Result
		var id int64
		if err := rows.Scan(&id, &r.ProgramID, &r.Name, &r.Snippet, &r.ImageURL, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.ID = strconv.FormatInt(id, 10)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every initiative from Postgres for reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]InitiativeRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, program_id, name, description, image_url
		FROM initiatives
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("load initiatives: %w", err)
	}
	defer rows.Close()

	records := make([]InitiativeRecord, 0)
	for rows.Next() {
		var record InitiativeRecord
		var id int64
		if err := rows.Scan(&id, &record.ProgramID, &record.Name, &record.Description, &record.ImageURL); err != nil {
			return nil, fmt.Errorf("scan initiative record: %w", err)
		}
		record.ID = strconv.FormatInt(id, 10)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate initiative records: %w", err)
	}
	return records, nil
}
