package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"threatfeed/types"

	sq "github.com/Masterminds/squirrel"
)

// DefaultListLimit caps ListArticles when no limit is given
const DefaultListLimit = 50

// ArticleFilter narrows ListArticles
type ArticleFilter struct {
	Category string
	Source   string
	Limit    int
}

var articleColumns = []string{
	"id", "title", "description", "source", "url", "category", "published_at",
	"cached_content_url", "cached_image_url", "cache_updated_at", "created_at", "updated_at",
}

// InsertArticle writes a production article. A (title, source) or URL collision yields ErrDuplicate.
func (s *Store) InsertArticle(ctx context.Context, a types.Article) error {
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	var cacheUpdated interface{}
	if a.CacheUpdatedAt != nil {
		cacheUpdated = formatTime(*a.CacheUpdatedAt)
	}

	b := s.sql.Insert(tableProduction).
		Columns(articleColumns...).
		Values(
			a.ID, a.Title, a.Description, a.Source, a.URL, a.Category, formatTime(a.PublishedAt),
			a.CachedContentURL, a.CachedImageURL, cacheUpdated, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
		)
	if _, err := s.exec(ctx, b); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("article %q from %s: %w", a.Title, a.Source, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// ExistsByTitleSource reports whether a production article has this exact title and source
func (s *Store) ExistsByTitleSource(ctx context.Context, title, source string) (bool, error) {
	return s.exists(ctx, tableProduction, sq.Eq{"title": title, "source": source})
}

// ExistsByURL reports whether a production article has this URL. Empty URLs never match.
func (s *Store) ExistsByURL(ctx context.Context, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	return s.exists(ctx, tableProduction, sq.Eq{"url": url})
}

// RecentTitles returns up to limit titles from source, newest first
func (s *Store) RecentTitles(ctx context.Context, source string, limit int) ([]string, error) {
	b := s.sql.Select("title").
		From(tableProduction).
		Where(sq.Eq{"source": source}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// UpdateArticleCache records where an article's cached blob lives
func (s *Store) UpdateArticleCache(ctx context.Context, id, cachedURL string, at time.Time) error {
	res, err := s.exec(ctx, s.sql.Update(tableProduction).
		Set("cached_content_url", cachedURL).
		Set("cache_updated_at", formatTime(at)).
		Set("updated_at", formatTime(s.now())).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to update cache for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListArticles returns production articles, newest published first
func (s *Store) ListArticles(ctx context.Context, f ArticleFilter) ([]types.Article, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	b := s.sql.Select(articleColumns...).
		From(tableProduction).
		OrderBy("published_at DESC", "created_at DESC").
		Limit(uint64(limit))
	if f.Category != "" {
		b = b.Where(sq.Eq{"category": f.Category})
	}
	if f.Source != "" {
		b = b.Where(sq.Eq{"source": f.Source})
	}

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var out []types.Article
	for rows.Next() {
		var (
			a                           types.Article
			published, created, updated string
			cacheUpdated                sql.NullString
		)
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Description, &a.Source, &a.URL, &a.Category, &published,
			&a.CachedContentURL, &a.CachedImageURL, &cacheUpdated, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		if a.PublishedAt, err = parseTime(published); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if a.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		if cacheUpdated.Valid {
			t, err := parseTime(cacheUpdated.String)
			if err != nil {
				return nil, err
			}
			a.CacheUpdatedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
