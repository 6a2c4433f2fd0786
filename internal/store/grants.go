package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// UpsertNamespaceGrant creates or replaces a user's namespace grant.
func (s *SQLiteStore) UpsertNamespaceGrant(grant *NamespaceGrant) error {
	_, err := s.writer.Exec(`
		INSERT INTO namespace_grants (user_id, namespace_id, scopes, granted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, namespace_id) DO UPDATE SET
			scopes = excluded.scopes,
			granted_at = excluded.granted_at
	`, grant.UserID, grant.NamespaceID, int64(grant.Scopes), ToMicros(grant.GrantedAt))
	if err != nil {
		return fmt.Errorf("upsert namespace grant: %w", err)
	}
	return nil
}

// GetNamespaceGrant retrieves a user's namespace grant.
func (s *SQLiteStore) GetNamespaceGrant(userID, namespaceID string) (*NamespaceGrant, error) {
	query := `
		SELECT user_id, namespace_id, scopes, granted_at
		FROM namespace_grants
		WHERE user_id = ? AND namespace_id = ?
	`

	var grant NamespaceGrant
	var scopes, grantedAt int64
	err := s.reader.QueryRow(query, userID, namespaceID).Scan(
		&grant.UserID, &grant.NamespaceID, &scopes, &grantedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan namespace grant: %w", err)
	}

	grant.Scopes = Scope(scopes)
	grant.GrantedAt = FromMicros(grantedAt)
	return &grant, nil
}

// ListUserNamespaceGrants lists all namespace grants for a user.
func (s *SQLiteStore) ListUserNamespaceGrants(userID string) ([]NamespaceGrant, error) {
	query := `
		SELECT user_id, namespace_id, scopes, granted_at
		FROM namespace_grants
		WHERE user_id = ?
		ORDER BY namespace_id
	`

	rows, err := s.reader.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("query namespace grants: %w", err)
	}
	defer rows.Close()

	var grants []NamespaceGrant
	for rows.Next() {
		var grant NamespaceGrant
		var scopes, grantedAt int64
		if err := rows.Scan(&grant.UserID, &grant.NamespaceID, &scopes, &grantedAt); err != nil {
			return nil, fmt.Errorf("scan namespace grant: %w", err)
		}
		grant.Scopes = Scope(scopes)
		grant.GrantedAt = FromMicros(grantedAt)
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// DeleteNamespaceGrant removes a user's namespace grant.
func (s *SQLiteStore) DeleteNamespaceGrant(userID, namespaceID string) error {
	result, err := s.writer.Exec(
		"DELETE FROM namespace_grants WHERE user_id = ? AND namespace_id = ?",
		userID, namespaceID,
	)
	if err != nil {
		return fmt.Errorf("delete namespace grant: %w", err)
	}
	return mustAffect(result)
}

// UpsertRepoGrant creates or replaces a user's repo grant.
func (s *SQLiteStore) UpsertRepoGrant(grant *RepoGrant) error {
	_, err := s.writer.Exec(`
		INSERT INTO repo_grants (user_id, repo_id, scopes, granted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, repo_id) DO UPDATE SET
			scopes = excluded.scopes,
			granted_at = excluded.granted_at
	`, grant.UserID, grant.RepoID, int64(grant.Scopes), ToMicros(grant.GrantedAt))
	if err != nil {
		return fmt.Errorf("upsert repo grant: %w", err)
	}
	return nil
}

// GetRepoGrant retrieves a user's repo grant.
func (s *SQLiteStore) GetRepoGrant(userID, repoID string) (*RepoGrant, error) {
	query := `
		SELECT user_id, repo_id, scopes, granted_at
		FROM repo_grants
		WHERE user_id = ? AND repo_id = ?
	`

	var grant RepoGrant
	var scopes, grantedAt int64
	err := s.reader.QueryRow(query, userID, repoID).Scan(
		&grant.UserID, &grant.RepoID, &scopes, &grantedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan repo grant: %w", err)
	}

	grant.Scopes = Scope(scopes)
	grant.GrantedAt = FromMicros(grantedAt)
	return &grant, nil
}

// ListRepoGrants lists all grants on a repo.
func (s *SQLiteStore) ListRepoGrants(repoID string) ([]RepoGrant, error) {
	query := `
		SELECT user_id, repo_id, scopes, granted_at
		FROM repo_grants
		WHERE repo_id = ?
		ORDER BY user_id
	`

	rows, err := s.reader.Query(query, repoID)
	if err != nil {
		return nil, fmt.Errorf("query repo grants: %w", err)
	}
	defer rows.Close()

	var grants []RepoGrant
	for rows.Next() {
		var grant RepoGrant
		var scopes, grantedAt int64
		if err := rows.Scan(&grant.UserID, &grant.RepoID, &scopes, &grantedAt); err != nil {
			return nil, fmt.Errorf("scan repo grant: %w", err)
		}
		grant.Scopes = Scope(scopes)
		grant.GrantedAt = FromMicros(grantedAt)
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// DeleteRepoGrant removes a user's repo grant.
func (s *SQLiteStore) DeleteRepoGrant(userID, repoID string) error {
	result, err := s.writer.Exec(
		"DELETE FROM repo_grants WHERE user_id = ? AND repo_id = ?",
		userID, repoID,
	)
	if err != nil {
		return fmt.Errorf("delete repo grant: %w", err)
	}
	return mustAffect(result)
}
