package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/metad/internal/fault"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UpsertFileIfAbsent returns the id of the file at path, creating the record
// if the path is unknown. Calling it twice with the same path returns the
// same id.
func (s *Store) UpsertFileIfAbsent(ctx context.Context, path string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("upsert file: begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := upsertFile(ctx, tx, path)
	if err != nil {
		return 0, fmt.Errorf("upsert file: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("upsert file: commit: %w", err)
	}
	return id, nil
}

// AddTag appends a (key, value) tag to the file at path, creating the file
// record if needed. Duplicate tags are kept.
func (s *Store) AddTag(ctx context.Context, path, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add tag: begin tx: %w", err)
	}
	defer tx.Rollback()

	fileID, err := upsertFile(ctx, tx, path)
	if err != nil {
		return fmt.Errorf("add tag: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tags (file_id, key, value)
		VALUES (?, ?, ?)
	`, fileID, key, value)
	if err != nil {
		return fmt.Errorf("add tag: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add tag: commit: %w", err)
	}
	return nil
}

// RemoveTag deletes the tags with the given key from the file at path, or
// every tag on the file when key is empty. Returns the number of rows
// removed. Fails with a NOT_FOUND fault if path is unknown.
func (s *Store) RemoveTag(ctx context.Context, path, key string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("remove tag: begin tx: %w", err)
	}
	defer tx.Rollback()

	fileID, found, err := lookupFile(ctx, tx, path)
	if err != nil {
		return 0, fmt.Errorf("remove tag: %w", err)
	}
	if !found {
		return 0, notFound(path)
	}

	var result sql.Result
	if key == "" {
		result, err = tx.ExecContext(ctx, `DELETE FROM tags WHERE file_id = ?`, fileID)
	} else {
		result, err = tx.ExecContext(ctx, `DELETE FROM tags WHERE file_id = ? AND key = ?`, fileID, key)
	}
	if err != nil {
		return 0, fmt.Errorf("remove tag: delete: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove tag: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("remove tag: commit: %w", err)
	}
	return removed, nil
}

// AddEmbedding stores blob as the embedding of the given type for the file
// at path, creating the file record if needed. A second embedding of the
// same type replaces the first.
func (s *Store) AddEmbedding(ctx context.Context, path, embeddingType string, blob []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add embedding: begin tx: %w", err)
	}
	defer tx.Rollback()

	fileID, err := upsertFile(ctx, tx, path)
	if err != nil {
		return fmt.Errorf("add embedding: %w", err)
	}

	if blob == nil {
		blob = []byte{}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO embeddings (file_id, embedding_type, blob)
		VALUES (?, ?, ?)
		ON CONFLICT(file_id, embedding_type) DO UPDATE SET blob = excluded.blob
	`, fileID, embeddingType, blob)
	if err != nil {
		return fmt.Errorf("add embedding: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add embedding: commit: %w", err)
	}
	return nil
}

// DeleteFile removes the file record at path together with its tags and
// embeddings. Deleting an unknown path is a no-op; deleted reports whether
// a record existed.
func (s *Store) DeleteFile(ctx context.Context, path string) (deleted bool, err error) {
	deleted, err = deleteFile(ctx, s.db, path)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	return deleted, nil
}

// RecordEvent appends a row to the event log.
func (s *Store) RecordEvent(ctx context.Context, eventType, path, extra string) error {
	if err := s.recordEvent(ctx, s.db, eventType, path, extra); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// SetFileAttributes updates the non-zero attributes of the file at path,
// creating the record if needed.
func (s *Store) SetFileAttributes(ctx context.Context, path string, attrs Attributes) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set attributes: begin tx: %w", err)
	}
	defer tx.Rollback()

	fileID, err := upsertFile(ctx, tx, path)
	if err != nil {
		return fmt.Errorf("set attributes: %w", err)
	}
	if err := setAttributes(ctx, tx, fileID, attrs); err != nil {
		return fmt.Errorf("set attributes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set attributes: commit: %w", err)
	}
	return nil
}

// RenameFile moves the record at from to the path to, keeping its tags
// and embeddings. Semantics follow rename(2):
//   - an existing record at to is replaced
//   - from missing and to present is a no-op (rename already applied)
//   - both missing creates an empty record at to
func (s *Store) RenameFile(ctx context.Context, from, to string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rename file: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := renameFile(ctx, tx, from, to); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rename file: commit: %w", err)
	}
	return nil
}

// ApplyLifecycle performs lc's mutation and records its event in one
// transaction.
//
// CREATE, WRITE and MODIFY upsert the file and stamp its attributes
// (modified time defaults to now). DELETE removes the file if present.
// RENAME moves it to lc.Target. Any other event type only makes sure the
// referenced file exists.
func (s *Store) ApplyLifecycle(ctx context.Context, lc Lifecycle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply %s: begin tx: %w", lc.Op, err)
	}
	defer tx.Rollback()

	if err := s.applyLifecycle(ctx, tx, lc); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply %s: commit: %w", lc.Op, err)
	}
	return nil
}

// ApplyWALEntry applies lc exactly once per entryID. The ledger insert,
// the mutation, and the event share one transaction, so an entry is either
// fully applied and recorded or not at all.
//
// Returns applied=false without writing anything if entryID was applied
// before (e.g. its commit acknowledgement was lost and it was re-fetched).
func (s *Store) ApplyWALEntry(ctx context.Context, entryID string, lc Lifecycle) (applied bool, err error) {
	if entryID == "" {
		return false, fault.New(fault.InvalidArgument, "WAL entry id is required")
	}
	if !lc.Op.Known() {
		return false, fault.Newf(fault.UnsupportedCommand, "unsupported WAL op %q", lc.Op)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("apply wal entry: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Claim the entry id first; the unique key makes the claim atomic.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO wal_applied (entry_id, op, path, applied_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entry_id) DO NOTHING
	`, entryID, string(lc.Op), lc.Path, s.timestamp())
	if err != nil {
		return false, fmt.Errorf("apply wal entry: claim: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply wal entry: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := s.applyLifecycle(ctx, tx, lc); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("apply wal entry: commit: %w", err)
	}
	return true, nil
}

func (s *Store) applyLifecycle(ctx context.Context, tx *sql.Tx, lc Lifecycle) error {
	if lc.Path == "" {
		return fault.Newf(fault.InvalidArgument, "%s requires a path", lc.Op)
	}

	switch lc.Op {
	case OpCreate, OpWrite, OpModify:
		fileID, err := upsertFile(ctx, tx, lc.Path)
		if err != nil {
			return fmt.Errorf("apply %s: %w", lc.Op, err)
		}
		attrs := lc.Attrs
		if attrs.ModifiedTime == 0 {
			attrs.ModifiedTime = s.timestamp()
		}
		if err := setAttributes(ctx, tx, fileID, attrs); err != nil {
			return fmt.Errorf("apply %s: %w", lc.Op, err)
		}

	case OpDelete:
		if _, err := deleteFile(ctx, tx, lc.Path); err != nil {
			return fmt.Errorf("apply %s: %w", lc.Op, err)
		}

	case OpRename:
		if lc.Target == "" {
			return fault.New(fault.InvalidArgument, "RENAME requires a target path").WithPath(lc.Path)
		}
		if err := renameFile(ctx, tx, lc.Path, lc.Target); err != nil {
			return fmt.Errorf("apply %s: %w", lc.Op, err)
		}

	default:
		fileID, err := upsertFile(ctx, tx, lc.Path)
		if err != nil {
			return fmt.Errorf("apply %s: %w", lc.Op, err)
		}
		if !lc.Attrs.IsZero() {
			if err := setAttributes(ctx, tx, fileID, lc.Attrs); err != nil {
				return fmt.Errorf("apply %s: %w", lc.Op, err)
			}
		}
	}

	if err := s.recordEvent(ctx, tx, string(lc.Op), lc.Path, lc.Extra); err != nil {
		return fmt.Errorf("apply %s: %w", lc.Op, err)
	}
	return nil
}

func upsertFile(ctx context.Context, q execer, path string) (int64, error) {
	if path == "" {
		return 0, fault.New(fault.InvalidArgument, "path is required")
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO files (path) VALUES (?)
		ON CONFLICT(path) DO NOTHING
	`, path)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}

	var id int64
	if err := q.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("select file id: %w", err)
	}
	return id, nil
}

func lookupFile(ctx context.Context, q execer, path string) (id int64, found bool, err error) {
	err = q.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup file: %w", err)
	}
	return id, true, nil
}

func deleteFile(ctx context.Context, q execer, path string) (bool, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func renameFile(ctx context.Context, q execer, from, to string) error {
	if to == "" {
		return fault.New(fault.InvalidArgument, "rename target is required")
	}
	if from == to {
		_, err := upsertFile(ctx, q, to)
		return err
	}

	srcID, srcFound, err := lookupFile(ctx, q, from)
	if err != nil {
		return err
	}
	_, dstFound, err := lookupFile(ctx, q, to)
	if err != nil {
		return err
	}

	switch {
	case !srcFound && dstFound:
		return nil
	case !srcFound:
		_, err := upsertFile(ctx, q, to)
		return err
	}

	if dstFound {
		if _, err := deleteFile(ctx, q, to); err != nil {
			return fmt.Errorf("replace target: %w", err)
		}
	}
	if _, err := q.ExecContext(ctx, `UPDATE files SET path = ? WHERE id = ?`, to, srcID); err != nil {
		return fmt.Errorf("move record: %w", err)
	}
	return nil
}

func setAttributes(ctx context.Context, q execer, fileID int64, attrs Attributes) error {
	_, err := q.ExecContext(ctx, `
		UPDATE files SET
			volume_id     = COALESCE(?, volume_id),
			inode         = COALESCE(?, inode),
			checksum      = COALESCE(?, checksum),
			modified_time = COALESCE(?, modified_time)
		WHERE id = ?
	`,
		nullString(attrs.VolumeID),
		nullString(attrs.Inode),
		nullString(attrs.Checksum),
		nullInt(attrs.ModifiedTime),
		fileID,
	)
	if err != nil {
		return fmt.Errorf("update attributes: %w", err)
	}
	return nil
}

func (s *Store) recordEvent(ctx context.Context, q execer, eventType, path, extra string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO events (event_type, path, extra, timestamp)
		VALUES (?, ?, ?, ?)
	`, eventType, path, extra, s.timestamp())
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
