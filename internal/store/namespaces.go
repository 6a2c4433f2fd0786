package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateNamespace creates a shared namespace. Personal namespaces are
// created together with their owner in CreateUserWithNamespace.
func (s *SQLiteStore) CreateNamespace(ns *Namespace) error {
	query := `
		INSERT INTO namespaces (id, name, kind, owner_user_id, repo_limit, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.writer.Exec(query,
		ns.ID,
		ns.Name,
		ns.Kind,
		ToNullString(ns.OwnerUserID),
		ToNullInt64(ns.RepoLimit),
		ToMicros(ns.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert namespace: %w", err)
	}
	return nil
}

func scanNamespaceRow(scan func(dest ...any) error) (*Namespace, error) {
	var ns Namespace
	var owner sql.NullString
	var repoLimit sql.NullInt64
	var createdAt int64

	err := scan(&ns.ID, &ns.Name, &ns.Kind, &owner, &repoLimit, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan namespace: %w", err)
	}

	ns.OwnerUserID = FromNullString(owner)
	ns.RepoLimit = FromNullInt64(repoLimit)
	ns.CreatedAt = FromMicros(createdAt)
	return &ns, nil
}

// GetNamespace retrieves a namespace by ID.
func (s *SQLiteStore) GetNamespace(id string) (*Namespace, error) {
	query := `
		SELECT id, name, kind, owner_user_id, repo_limit, created_at
		FROM namespaces
		WHERE id = ?
	`
	return scanNamespaceRow(s.reader.QueryRow(query, id).Scan)
}

// GetNamespaceByName retrieves a namespace by name, case-insensitive.
func (s *SQLiteStore) GetNamespaceByName(name string) (*Namespace, error) {
	query := `
		SELECT id, name, kind, owner_user_id, repo_limit, created_at
		FROM namespaces
		WHERE name = ? COLLATE NOCASE
	`
	return scanNamespaceRow(s.reader.QueryRow(query, name).Scan)
}

func collectNamespaces(rows *sql.Rows) ([]Namespace, error) {
	defer rows.Close()

	var namespaces []Namespace
	for rows.Next() {
		ns, err := scanNamespaceRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		namespaces = append(namespaces, *ns)
	}
	return namespaces, rows.Err()
}

// ListNamespaces lists all namespaces ordered by name.
func (s *SQLiteStore) ListNamespaces(limit, offset int) ([]Namespace, error) {
	query := `
		SELECT id, name, kind, owner_user_id, repo_limit, created_at
		FROM namespaces
		ORDER BY name
		LIMIT ? OFFSET ?
	`

	rows, err := s.reader.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query namespaces: %w", err)
	}
	return collectNamespaces(rows)
}

// CountNamespaces returns the total number of namespaces.
func (s *SQLiteStore) CountNamespaces() (int, error) {
	var count int
	if err := s.reader.QueryRow("SELECT COUNT(*) FROM namespaces").Scan(&count); err != nil {
		return 0, fmt.Errorf("count namespaces: %w", err)
	}
	return count, nil
}

// ListAccessibleNamespaces lists namespaces the user owns or holds a
// grant on, with the total match count for pagination.
func (s *SQLiteStore) ListAccessibleNamespaces(userID string, limit, offset int) ([]Namespace, int, error) {
	where := `
		FROM namespaces n
		WHERE n.owner_user_id = ?
		   OR EXISTS (
			SELECT 1 FROM namespace_grants g
			WHERE g.namespace_id = n.id AND g.user_id = ?
		   )
		   OR EXISTS (
			SELECT 1 FROM repo_grants rg
			JOIN repos r ON r.id = rg.repo_id
			WHERE r.namespace_id = n.id AND rg.user_id = ?
		   )
	`

	var total int
	if err := s.reader.QueryRow("SELECT COUNT(*) "+where, userID, userID, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accessible namespaces: %w", err)
	}

	rows, err := s.reader.Query(
		"SELECT n.id, n.name, n.kind, n.owner_user_id, n.repo_limit, n.created_at "+where+" ORDER BY n.name LIMIT ? OFFSET ?",
		userID, userID, userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query accessible namespaces: %w", err)
	}

	namespaces, err := collectNamespaces(rows)
	if err != nil {
		return nil, 0, err
	}
	return namespaces, total, nil
}

// DeleteNamespace deletes a namespace. Repos, folders, tags, grants,
// and LFS rows cascade.
func (s *SQLiteStore) DeleteNamespace(id string) error {
	result, err := s.writer.Exec("DELETE FROM namespaces WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete namespace: %w", err)
	}
	return mustAffect(result)
}
