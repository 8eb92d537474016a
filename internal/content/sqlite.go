package content

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLoader reads published posts from the site database.
type SQLiteLoader struct {
	db *sql.DB
}

// OpenSQLite opens the site database read-only.
func OpenSQLite(path string) (*SQLiteLoader, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open content database: %w", err)
	}
	return &SQLiteLoader{db: db}, nil
}

// Close releases the database handle.
func (l *SQLiteLoader) Close() error {
	return l.db.Close()
}

// ListContentRecords implements Loader. Only published posts are returned,
// newest first.
func (l *SQLiteLoader) ListContentRecords(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, slug, title, content, excerpt, tags, category,
		       template, author, cover_image, created_at, updated_at
		FROM posts
		WHERE status = 'published'
		ORDER BY created_at DESC, slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var excerpt, tags, category, template, author, cover sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&rec.ID, &rec.Slug, &rec.Title, &rec.Body,
			&excerpt, &tags, &category, &template, &author, &cover,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		rec.Excerpt = excerpt.String
		rec.Category = category.String
		rec.Template = template.String
		rec.Author = author.String
		rec.CoverImage = cover.String
		rec.Tags = splitTags(tags.String)
		rec.CreatedAt = parseTime(createdAt)
		rec.UpdatedAt = parseTime(updatedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return records, nil
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// parseTime accepts the timestamp formats SQLite commonly stores.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
