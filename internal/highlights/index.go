package highlights

import (
	"context"
	"database/sql"
	"time"
)

// Index records saved highlights. A nil Index on the Sink falls back to
// listing the destination folder.
type Index interface {
	Record(ctx context.Context, d *Destination) error
	Get(ctx context.Context, name string) (*Destination, error)
	List(ctx context.Context, limit int) ([]*Destination, error)
	Delete(ctx context.Context, name string) error
}

type SQLiteIndex struct {
	db *sql.DB
}

func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// Record upserts by name: a clip saved twice under the same name keeps one
// row pointing at the latest copy.
func (r *SQLiteIndex) Record(ctx context.Context, d *Destination) error {
	var source sql.NullString
	var start, end sql.NullInt64
	if d.Segment.Valid() {
		source = nullString(d.Segment.SourceVideo)
		start = sql.NullInt64{Int64: int64(d.Segment.StartMs), Valid: true}
		end = sql.NullInt64{Int64: int64(d.Segment.EndMs), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO highlights (id, name, path, source_path, bytes, keyword, excerpt, run_id,
			source_video, start_ms, end_ms, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			source_path = excluded.source_path,
			bytes = excluded.bytes,
			keyword = excluded.keyword,
			excerpt = excluded.excerpt,
			run_id = excluded.run_id,
			source_video = excluded.source_video,
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			saved_at = excluded.saved_at
	`, d.ID, d.Name, d.Path, d.SourcePath, d.Bytes,
		nullString(d.Keyword), nullString(d.Excerpt), nullString(d.RunID),
		source, start, end,
		d.SavedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (r *SQLiteIndex) Get(ctx context.Context, name string) (*Destination, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, path, source_path, bytes, keyword, excerpt, run_id,
			source_video, start_ms, end_ms, saved_at
		FROM highlights WHERE name = ?
	`, name)
	d, err := scanDestination(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// List returns entries newest first. limit <= 0 means no limit.
func (r *SQLiteIndex) List(ctx context.Context, limit int) ([]*Destination, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, path, source_path, bytes, keyword, excerpt, run_id,
			source_video, start_ms, end_ms, saved_at
		FROM highlights ORDER BY saved_at DESC, name ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteIndex) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM highlights WHERE name = ?", name)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDestination(s scanner) (*Destination, error) {
	var d Destination
	var keyword, excerpt, runID, source sql.NullString
	var start, end sql.NullInt64
	var savedAt string

	if err := s.Scan(&d.ID, &d.Name, &d.Path, &d.SourcePath, &d.Bytes, &keyword, &excerpt, &runID,
		&source, &start, &end, &savedAt); err != nil {
		return nil, err
	}
	if source.Valid && start.Valid && end.Valid {
		d.Segment = &Segment{SourceVideo: source.String, StartMs: int(start.Int64), EndMs: int(end.Int64)}
	}
	d.Keyword = keyword.String
	d.Excerpt = excerpt.String
	d.RunID = runID.String
	d.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
	return &d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
