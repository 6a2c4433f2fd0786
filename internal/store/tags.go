package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const tagColumns = `id, namespace_id, name, color, created_at`

// CreateTag creates a tag.
func (s *SQLiteStore) CreateTag(tag *Tag) error {
	_, err := s.writer.Exec(`
		INSERT INTO tags (id, namespace_id, name, color, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, tag.ID, tag.NamespaceID, tag.Name, ToNullString(tag.Color), ToMicros(tag.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

func scanTagRow(scan func(dest ...any) error) (*Tag, error) {
	var tag Tag
	var color sql.NullString
	var createdAt int64

	err := scan(&tag.ID, &tag.NamespaceID, &tag.Name, &color, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan tag: %w", err)
	}

	tag.Color = FromNullString(color)
	tag.CreatedAt = FromMicros(createdAt)
	return &tag, nil
}

// GetTagByID retrieves a tag by ID.
func (s *SQLiteStore) GetTagByID(id string) (*Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE id = ?`
	return scanTagRow(s.reader.QueryRow(query, id).Scan)
}

// GetTagByName retrieves a tag by namespace and name.
func (s *SQLiteStore) GetTagByName(namespaceID, name string) (*Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE namespace_id = ? AND name = ?`
	return scanTagRow(s.reader.QueryRow(query, namespaceID, name).Scan)
}

func collectTags(rows *sql.Rows) ([]Tag, error) {
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		tag, err := scanTagRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		tags = append(tags, *tag)
	}
	return tags, rows.Err()
}

// ListTags lists tags in a namespace ordered by name.
func (s *SQLiteStore) ListTags(namespaceID string, limit, offset int) ([]Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE namespace_id = ? ORDER BY name LIMIT ? OFFSET ?`
	rows, err := s.reader.Query(query, namespaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	return collectTags(rows)
}

// CountTags returns the number of tags in a namespace.
func (s *SQLiteStore) CountTags(namespaceID string) (int, error) {
	var count int
	if err := s.reader.QueryRow("SELECT COUNT(*) FROM tags WHERE namespace_id = ?", namespaceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tags: %w", err)
	}
	return count, nil
}

// UpdateTag updates a tag's name and color.
func (s *SQLiteStore) UpdateTag(tag *Tag) error {
	result, err := s.writer.Exec(`
		UPDATE tags
		SET name = ?, color = ?
		WHERE id = ?
	`, tag.Name, ToNullString(tag.Color), tag.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update tag: %w", err)
	}
	return mustAffect(result)
}

// DeleteTag deletes a tag and its repo attachments.
func (s *SQLiteStore) DeleteTag(id string) error {
	result, err := s.writer.Exec("DELETE FROM tags WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return mustAffect(result)
}

// AddRepoTag attaches a tag to a repo. Attaching twice is a no-op.
func (s *SQLiteStore) AddRepoTag(repoID, tagID string) error {
	_, err := s.writer.Exec("INSERT OR IGNORE INTO repo_tags (repo_id, tag_id) VALUES (?, ?)", repoID, tagID)
	if err != nil {
		return fmt.Errorf("add repo tag: %w", err)
	}
	return nil
}

// RemoveRepoTag detaches a tag from a repo.
func (s *SQLiteStore) RemoveRepoTag(repoID, tagID string) error {
	result, err := s.writer.Exec("DELETE FROM repo_tags WHERE repo_id = ? AND tag_id = ?", repoID, tagID)
	if err != nil {
		return fmt.Errorf("remove repo tag: %w", err)
	}
	return mustAffect(result)
}

// ListRepoTags lists tags attached to a repo.
func (s *SQLiteStore) ListRepoTags(repoID string) ([]Tag, error) {
	query := `
		SELECT t.id, t.namespace_id, t.name, t.color, t.created_at
		FROM tags t
		JOIN repo_tags rt ON rt.tag_id = t.id
		WHERE rt.repo_id = ?
		ORDER BY t.name
	`
	rows, err := s.reader.Query(query, repoID)
	if err != nil {
		return nil, fmt.Errorf("query repo tags: %w", err)
	}
	return collectTags(rows)
}
