package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const repoColumns = `id, namespace_id, name, description, folder_id, size_bytes, version, created_at, updated_at`

// CreateRepo inserts a repo row, enforcing the namespace repo_limit
// and name uniqueness inside one immediate transaction.
func (s *SQLiteStore) CreateRepo(repo *Repo) error {
	return s.withTx(func(tx *sql.Tx) error {
		var repoLimit sql.NullInt64
		err := tx.QueryRow("SELECT repo_limit FROM namespaces WHERE id = ?", repo.NamespaceID).Scan(&repoLimit)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read repo_limit: %w", err)
		}

		if repoLimit.Valid {
			var count int64
			if err := tx.QueryRow("SELECT COUNT(*) FROM repos WHERE namespace_id = ?", repo.NamespaceID).Scan(&count); err != nil {
				return fmt.Errorf("count repos: %w", err)
			}
			if count >= repoLimit.Int64 {
				return ErrRepoLimitExceeded
			}
		}

		_, err = tx.Exec(`
			INSERT INTO repos (id, namespace_id, name, description, folder_id, size_bytes, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			repo.ID,
			repo.NamespaceID,
			repo.Name,
			ToNullString(repo.Description),
			ToNullString(repo.FolderID),
			repo.SizeBytes,
			repo.Version,
			ToMicros(repo.CreatedAt),
			ToMicros(repo.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert repo: %w", err)
		}
		return nil
	})
}

func scanRepoRow(scan func(dest ...any) error) (*Repo, error) {
	var repo Repo
	var description, folderID sql.NullString
	var createdAt, updatedAt int64

	err := scan(
		&repo.ID,
		&repo.NamespaceID,
		&repo.Name,
		&description,
		&folderID,
		&repo.SizeBytes,
		&repo.Version,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan repo: %w", err)
	}

	repo.Description = FromNullString(description)
	repo.FolderID = FromNullString(folderID)
	repo.CreatedAt = FromMicros(createdAt)
	repo.UpdatedAt = FromMicros(updatedAt)
	return &repo, nil
}

// GetRepoByID retrieves a repository by ID.
func (s *SQLiteStore) GetRepoByID(id string) (*Repo, error) {
	query := `SELECT ` + repoColumns + ` FROM repos WHERE id = ?`
	return scanRepoRow(s.reader.QueryRow(query, id).Scan)
}

// GetRepoByName retrieves a repository by namespace and name,
// case-insensitive on the name.
func (s *SQLiteStore) GetRepoByName(namespaceID, name string) (*Repo, error) {
	query := `SELECT ` + repoColumns + ` FROM repos WHERE namespace_id = ? AND name = ? COLLATE NOCASE`
	return scanRepoRow(s.reader.QueryRow(query, namespaceID, name).Scan)
}

func collectRepos(rows *sql.Rows) ([]Repo, error) {
	defer rows.Close()

	var repos []Repo
	for rows.Next() {
		repo, err := scanRepoRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *repo)
	}
	return repos, rows.Err()
}

// ListRepos lists repos in a namespace ordered by name.
func (s *SQLiteStore) ListRepos(namespaceID string, limit, offset int) ([]Repo, error) {
	query := `SELECT ` + repoColumns + ` FROM repos WHERE namespace_id = ? ORDER BY name LIMIT ? OFFSET ?`
	rows, err := s.reader.Query(query, namespaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query repos: %w", err)
	}
	return collectRepos(rows)
}

// CountRepos returns the number of repos in a namespace.
func (s *SQLiteStore) CountRepos(namespaceID string) (int, error) {
	var count int
	if err := s.reader.QueryRow("SELECT COUNT(*) FROM repos WHERE namespace_id = ?", namespaceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count repos: %w", err)
	}
	return count, nil
}

// ListAccessibleRepos lists repos the user can read: owned namespaces,
// namespace grants carrying repo:read, and direct repo grants carrying
// repo:read. Returns the total match count for pagination.
func (s *SQLiteStore) ListAccessibleRepos(userID string, limit, offset int) ([]Repo, int, error) {
	where := `
		FROM repos r
		JOIN namespaces n ON n.id = r.namespace_id
		WHERE n.owner_user_id = ?
		   OR EXISTS (
			SELECT 1 FROM namespace_grants g
			WHERE g.namespace_id = r.namespace_id AND g.user_id = ? AND (g.scopes & ?) != 0
		   )
		   OR EXISTS (
			SELECT 1 FROM repo_grants rg
			WHERE rg.repo_id = r.id AND rg.user_id = ? AND (rg.scopes & ?) != 0
		   )
	`
	readBit := int64(ScopeRepoRead)

	var total int
	if err := s.reader.QueryRow("SELECT COUNT(*) "+where,
		userID, userID, readBit, userID, readBit).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accessible repos: %w", err)
	}

	rows, err := s.reader.Query(
		`SELECT r.id, r.namespace_id, r.name, r.description, r.folder_id,
			r.size_bytes, r.version, r.created_at, r.updated_at `+where+
			` ORDER BY n.name, r.name LIMIT ? OFFSET ?`,
		userID, userID, readBit, userID, readBit, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query accessible repos: %w", err)
	}

	repos, err := collectRepos(rows)
	if err != nil {
		return nil, 0, err
	}
	return repos, total, nil
}

// ListAllRepoRefs returns the on-disk location of every repo row, used
// by the startup sweeper.
func (s *SQLiteStore) ListAllRepoRefs() ([]RepoRef, error) {
	rows, err := s.reader.Query("SELECT namespace_id, id FROM repos")
	if err != nil {
		return nil, fmt.Errorf("query repo refs: %w", err)
	}
	defer rows.Close()

	var refs []RepoRef
	for rows.Next() {
		var ref RepoRef
		if err := rows.Scan(&ref.NamespaceID, &ref.RepoID); err != nil {
			return nil, fmt.Errorf("scan repo ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// UpdateRepo updates a repo's mutable fields and bumps its version.
// When expectedVersion is set, the update only applies if the stored
// version matches, otherwise ErrVersionMismatch.
func (s *SQLiteStore) UpdateRepo(repo *Repo, expectedVersion *int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRow("SELECT version FROM repos WHERE id = ?", repo.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read repo version: %w", err)
		}

		if expectedVersion != nil && current != *expectedVersion {
			return ErrVersionMismatch
		}

		now := time.Now().UTC()
		result, err := tx.Exec(`
			UPDATE repos
			SET name = ?, description = ?, version = version + 1, updated_at = ?
			WHERE id = ?
		`, repo.Name, ToNullString(repo.Description), ToMicros(now), repo.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("update repo: %w", err)
		}
		if err := mustAffect(result); err != nil {
			return err
		}

		repo.Version = current + 1
		repo.UpdatedAt = FromMicros(ToMicros(now))
		return nil
	})
}

// SetRepoFolder assigns or clears a repo's folder. The caller is
// responsible for checking the folder's namespace matches.
func (s *SQLiteStore) SetRepoFolder(repoID string, folderID *string) error {
	result, err := s.writer.Exec(`
		UPDATE repos
		SET folder_id = ?, version = version + 1, updated_at = ?
		WHERE id = ?
	`, ToNullString(folderID), ToMicros(time.Now()), repoID)
	if err != nil {
		return fmt.Errorf("set repo folder: %w", err)
	}
	return mustAffect(result)
}

// RecordRepoPush updates the push bookkeeping after a successful
// receive-pack.
func (s *SQLiteStore) RecordRepoPush(id string, sizeBytes int64) error {
	result, err := s.writer.Exec(`
		UPDATE repos
		SET size_bytes = ?, updated_at = ?
		WHERE id = ?
	`, sizeBytes, ToMicros(time.Now()), id)
	if err != nil {
		return fmt.Errorf("record repo push: %w", err)
	}
	return mustAffect(result)
}

// DeleteRepo deletes a repository row.
func (s *SQLiteStore) DeleteRepo(id string) error {
	result, err := s.writer.Exec("DELETE FROM repos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete repo: %w", err)
	}
	return mustAffect(result)
}
