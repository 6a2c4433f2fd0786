package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const folderColumns = `id, namespace_id, parent_id, name, created_at`

// CreateFolder creates a folder. The (namespace, parent, name)
// uniqueness constraint surfaces as ErrConflict.
func (s *SQLiteStore) CreateFolder(folder *Folder) error {
	_, err := s.writer.Exec(`
		INSERT INTO folders (id, namespace_id, parent_id, name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		folder.ID,
		folder.NamespaceID,
		ToNullString(folder.ParentID),
		folder.Name,
		ToMicros(folder.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func scanFolderRow(scan func(dest ...any) error) (*Folder, error) {
	var folder Folder
	var parentID sql.NullString
	var createdAt int64

	err := scan(&folder.ID, &folder.NamespaceID, &parentID, &folder.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan folder: %w", err)
	}

	folder.ParentID = FromNullString(parentID)
	folder.CreatedAt = FromMicros(createdAt)
	return &folder, nil
}

// GetFolderByID retrieves a folder by ID.
func (s *SQLiteStore) GetFolderByID(id string) (*Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders WHERE id = ?`
	return scanFolderRow(s.reader.QueryRow(query, id).Scan)
}

// GetFolderChild retrieves the folder with the given name under
// parentID (nil for the namespace root). Used to walk slash paths.
func (s *SQLiteStore) GetFolderChild(namespaceID string, parentID *string, name string) (*Folder, error) {
	if parentID == nil {
		query := `SELECT ` + folderColumns + ` FROM folders WHERE namespace_id = ? AND parent_id IS NULL AND name = ?`
		return scanFolderRow(s.reader.QueryRow(query, namespaceID, name).Scan)
	}
	query := `SELECT ` + folderColumns + ` FROM folders WHERE namespace_id = ? AND parent_id = ? AND name = ?`
	return scanFolderRow(s.reader.QueryRow(query, namespaceID, *parentID, name).Scan)
}

// ListFolders lists folders in a namespace ordered by name.
func (s *SQLiteStore) ListFolders(namespaceID string, limit, offset int) ([]Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders WHERE namespace_id = ? ORDER BY name LIMIT ? OFFSET ?`

	rows, err := s.reader.Query(query, namespaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		folder, err := scanFolderRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		folders = append(folders, *folder)
	}
	return folders, rows.Err()
}

// CountFolders returns the number of folders in a namespace.
func (s *SQLiteStore) CountFolders(namespaceID string) (int, error) {
	var count int
	if err := s.reader.QueryRow("SELECT COUNT(*) FROM folders WHERE namespace_id = ?", namespaceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count folders: %w", err)
	}
	return count, nil
}

// UpdateFolder updates a folder's name and parent. Cycle checks happen
// in the handler before this is called.
func (s *SQLiteStore) UpdateFolder(folder *Folder) error {
	result, err := s.writer.Exec(`
		UPDATE folders
		SET name = ?, parent_id = ?
		WHERE id = ?
	`, folder.Name, ToNullString(folder.ParentID), folder.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update folder: %w", err)
	}
	return mustAffect(result)
}

// DeleteFolder deletes a folder. Child folders cascade; repos in the
// folder fall back to the namespace root via ON DELETE SET NULL.
func (s *SQLiteStore) DeleteFolder(id string) error {
	result, err := s.writer.Exec("DELETE FROM folders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return mustAffect(result)
}
