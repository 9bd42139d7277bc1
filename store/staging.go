package store

import (
	"context"
	"fmt"
	"time"

	"threatfeed/types"

	sq "github.com/Masterminds/squirrel"
)

var stagingColumns = []string{
	"id", "run_id", "title", "description", "source", "url", "category", "published_at",
	"published_fallback", "has_valid_description", "is_processed", "cached_content_url", "image_url", "created_at",
}

// ClearStagingExcept deletes every staging row that does not belong to runID
func (s *Store) ClearStagingExcept(ctx context.Context, runID string) (int64, error) {
	res, err := s.exec(ctx, s.sql.Delete(tableStaging).Where(sq.NotEq{"run_id": runID}))
	if err != nil {
		return 0, fmt.Errorf("failed to clear staging: %w", err)
	}
	return res.RowsAffected()
}

// InsertStaging bulk-inserts staging rows. Rows whose id is already staged are ignored.
// It returns the number of rows actually written.
func (s *Store) InsertStaging(ctx context.Context, articles []types.StagingArticle) (int64, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	now := s.now()
	b := s.sql.Insert(tableStaging).Columns(stagingColumns...)
	for _, a := range articles {
		created := a.CreatedAt
		if created.IsZero() {
			created = now
		}
		b = b.Values(
			a.ID, a.RunID, a.Title, a.Description, a.Source, a.URL, a.Category, formatTime(a.PublishedAt),
			boolToInt(a.PublishedFallback), boolToInt(a.HasValidDescription), boolToInt(a.IsProcessed),
			a.CachedContentURL, a.ImageURL, formatTime(created),
		)
	}
	b = b.Suffix("ON CONFLICT(id) DO NOTHING")

	res, err := s.exec(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("failed to insert staging batch: %w", err)
	}
	return res.RowsAffected()
}

// UnprocessedStaging returns up to limit unprocessed rows, oldest first.
// An empty runID selects rows from any run.
func (s *Store) UnprocessedStaging(ctx context.Context, runID string, limit int) ([]types.StagingArticle, error) {
	b := s.sql.Select(stagingColumns...).
		From(tableStaging).
		Where(sq.Eq{"is_processed": 0}).
		OrderBy("created_at ASC", "id ASC")
	if runID != "" {
		b = b.Where(sq.Eq{"run_id": runID})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.selectStaging(ctx, b)
}

// ListStaging returns every staging row, oldest first
func (s *Store) ListStaging(ctx context.Context) ([]types.StagingArticle, error) {
	return s.selectStaging(ctx, s.sql.Select(stagingColumns...).From(tableStaging).OrderBy("created_at ASC", "id ASC"))
}

// StagingCounts reports how many staging rows are pending and processed
func (s *Store) StagingCounts(ctx context.Context) (pending, processed int64, err error) {
	query, args, err := s.sql.
		Select("COALESCE(SUM(CASE WHEN is_processed = 0 THEN 1 ELSE 0 END), 0)", "COALESCE(SUM(is_processed), 0)").
		From(tableStaging).
		ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&pending, &processed); err != nil {
		return 0, 0, fmt.Errorf("failed to count staging: %w", err)
	}
	return pending, processed, nil
}

// MarkProcessed flags a staging row as evaluated by promotion
func (s *Store) MarkProcessed(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.sql.Update(tableStaging).Set("is_processed", 1).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to mark staging row %s processed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("staging row %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeProcessedStaging deletes processed staging rows created before cutoff
func (s *Store) PurgeProcessedStaging(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, s.sql.Delete(tableStaging).Where(sq.And{
		sq.Eq{"is_processed": 1},
		sq.Lt{"created_at": formatTime(cutoff)},
	}))
	if err != nil {
		return 0, fmt.Errorf("failed to purge staging: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) selectStaging(ctx context.Context, b sq.SelectBuilder) ([]types.StagingArticle, error) {
	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to select staging rows: %w", err)
	}
	defer rows.Close()

	var out []types.StagingArticle
	for rows.Next() {
		var (
			a                          types.StagingArticle
			published, created         string
			fallback, valid, processed int
		)
		if err := rows.Scan(
			&a.ID, &a.RunID, &a.Title, &a.Description, &a.Source, &a.URL, &a.Category, &published,
			&fallback, &valid, &processed, &a.CachedContentURL, &a.ImageURL, &created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan staging row: %w", err)
		}
		a.PublishedFallback = fallback == 1
		a.HasValidDescription = valid == 1
		a.IsProcessed = processed == 1
		if a.PublishedAt, err = parseTime(published); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
