package store

import (
	"context"
	"fmt"

	"threatfeed/types"

	sq "github.com/Masterminds/squirrel"
)

// UpsertSources inserts configured sources, refreshing URL, type, category and active flag by name
func (s *Store) UpsertSources(ctx context.Context, sources []types.Source) error {
	now := formatTime(s.now())
	for _, src := range sources {
		b := s.sql.Insert(tableSources).
			Columns("name", "url", "type", "default_category", "active", "created_at", "updated_at").
			Values(src.Name, src.URL, string(src.Type), src.DefaultCategory, boolToInt(src.Active), now, now).
			Suffix(`ON CONFLICT(name) DO UPDATE SET
				url = excluded.url,
				type = excluded.type,
				default_category = excluded.default_category,
				active = excluded.active,
				updated_at = excluded.updated_at`)
		if _, err := s.exec(ctx, b); err != nil {
			return fmt.Errorf("failed to upsert source %s: %w", src.Name, err)
		}
	}
	return nil
}

// ListSources returns sources ordered by id, optionally only the active ones
func (s *Store) ListSources(ctx context.Context, activeOnly bool) ([]types.Source, error) {
	b := s.sql.Select("id", "name", "url", "type", "default_category", "active", "created_at", "updated_at").
		From(tableSources).
		OrderBy("id")
	if activeOnly {
		b = b.Where(sq.Eq{"active": 1})
	}

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []types.Source
	for rows.Next() {
		var (
			src              types.Source
			typ              string
			active           int
			created, updated string
		)
		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &typ, &src.DefaultCategory, &active, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		src.Type = types.SourceType(typ)
		src.Active = active == 1
		if src.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if src.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
