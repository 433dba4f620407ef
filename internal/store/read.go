package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Query returns the paths of files carrying the tag key=value, ordered by
// path. Returns an empty slice (not nil) when nothing matches.
func (s *Store) Query(ctx context.Context, key, value string) ([]string, error) {
	paths, err := s.SelectPaths(ctx, `
		SELECT DISTINCT f.path
		FROM files f
		JOIN tags t ON t.file_id = f.id
		WHERE t.key = ? AND t.value = ?
		ORDER BY f.path COLLATE BINARY ASC
	`, key, value)
	if err != nil {
		return nil, fmt.Errorf("query tag: %w", err)
	}
	return paths, nil
}

// SelectPaths runs a query whose single result column is a path.
// Used by the query engine with SQL compiled from a predicate tree.
func (s *Store) SelectPaths(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select paths: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paths: %w", err)
	}
	return paths, nil
}

// File returns the record at path, or a NOT_FOUND fault.
func (s *Store) File(ctx context.Context, path string) (File, error) {
	var (
		f                         File
		volumeID, inode, checksum sql.NullString
		modifiedTime              sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, volume_id, inode, checksum, modified_time
		FROM files
		WHERE path = ?
	`, path).Scan(&f.ID, &f.Path, &volumeID, &inode, &checksum, &modifiedTime)
	if err == sql.ErrNoRows {
		return File{}, notFound(path)
	}
	if err != nil {
		return File{}, fmt.Errorf("read file: %w", err)
	}

	f.VolumeID = volumeID.String
	f.Inode = inode.String
	f.Checksum = checksum.String
	f.ModifiedTime = modifiedTime.Int64
	return f, nil
}

// Tags returns the tags of the file at path in insertion order.
// An unknown path has no tags.
func (s *Store) Tags(ctx context.Context, path string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.file_id, t.key, t.value
		FROM tags t
		JOIN files f ON f.id = t.file_id
		WHERE f.path = ?
		ORDER BY t.id ASC
	`, path)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.FileID, &t.Key, &t.Value); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// Embeddings returns the embeddings of the file at path ordered by type.
func (s *Store) Embeddings(ctx context.Context, path string) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.file_id, e.embedding_type, e.blob
		FROM embeddings e
		JOIN files f ON f.id = e.file_id
		WHERE f.path = ?
		ORDER BY e.embedding_type COLLATE BINARY ASC
	`, path)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	embeddings := []Embedding{}
	for rows.Next() {
		var e Embedding
		if err := rows.Scan(&e.FileID, &e.Type, &e.Blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		embeddings = append(embeddings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

// Events returns the most recent limit events in ascending id order.
// A limit <= 0 returns the whole log.
func (s *Store) Events(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return s.readEvents(ctx, `
			SELECT id, event_type, path, extra, timestamp
			FROM events
			ORDER BY id ASC
		`)
	}
	return s.readEvents(ctx, `
		SELECT id, event_type, path, extra, timestamp FROM (
			SELECT id, event_type, path, extra, timestamp
			FROM events
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, limit)
}

// EventsForPath returns every event recorded for path in ascending id order.
func (s *Store) EventsForPath(ctx context.Context, path string) ([]Event, error) {
	return s.readEvents(ctx, `
		SELECT id, event_type, path, extra, timestamp
		FROM events
		WHERE path = ?
		ORDER BY id ASC
	`, path)
}

func (s *Store) readEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Path, &e.Extra, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// WALApplied reports whether the WAL entry id is in the applied ledger.
func (s *Store) WALApplied(ctx context.Context, entryID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wal_applied WHERE entry_id = ?
	`, entryID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check wal ledger: %w", err)
	}
	return count > 0, nil
}

// Stats returns row counts for the files, tags, embeddings and events tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM embeddings),
			(SELECT COUNT(*) FROM events)
	`).Scan(&st.Files, &st.Tags, &st.Embeddings, &st.Events)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
