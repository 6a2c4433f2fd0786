package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// PutLFSObject records a stored LFS object. Objects are
// content-addressed, so re-recording the same oid is a no-op.
func (s *SQLiteStore) PutLFSObject(obj *LFSObject) error {
	_, err := s.writer.Exec(`
		INSERT OR IGNORE INTO lfs_objects (namespace_id, oid, size, created_at)
		VALUES (?, ?, ?, ?)
	`, obj.NamespaceID, obj.OID, obj.Size, ToMicros(obj.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert lfs object: %w", err)
	}
	return nil
}

// GetLFSObject retrieves an LFS object record by namespace and oid.
func (s *SQLiteStore) GetLFSObject(namespaceID, oid string) (*LFSObject, error) {
	query := `
		SELECT namespace_id, oid, size, created_at
		FROM lfs_objects
		WHERE namespace_id = ? AND oid = ?
	`

	var obj LFSObject
	var createdAt int64
	err := s.reader.QueryRow(query, namespaceID, oid).Scan(
		&obj.NamespaceID, &obj.OID, &obj.Size, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan lfs object: %w", err)
	}

	obj.CreatedAt = FromMicros(createdAt)
	return &obj, nil
}
