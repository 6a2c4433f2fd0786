package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateUserWithNamespace inserts a user and its personal namespace in
// one transaction. ns must reference the user as owner and the user
// must reference ns as primary; the circular foreign keys are deferred
// until commit.
func (s *SQLiteStore) CreateUserWithNamespace(user *User, ns *Namespace) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO users (id, primary_namespace_id, is_admin, created_at)
			VALUES (?, ?, ?, ?)
		`, user.ID, user.PrimaryNamespaceID, user.IsAdmin, ToMicros(user.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO namespaces (id, name, kind, owner_user_id, repo_limit, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ns.ID, ns.Name, ns.Kind, ToNullString(ns.OwnerUserID), ToNullInt64(ns.RepoLimit), ToMicros(ns.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert personal namespace: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var user User
	var createdAt int64

	err := row.Scan(&user.ID, &user.PrimaryNamespaceID, &user.IsAdmin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.CreatedAt = FromMicros(createdAt)
	return &user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(id string) (*User, error) {
	query := `
		SELECT id, primary_namespace_id, is_admin, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.reader.QueryRow(query, id))
}

// GetUserByName retrieves a user by the name of its personal
// namespace, which doubles as the username.
func (s *SQLiteStore) GetUserByName(name string) (*User, error) {
	query := `
		SELECT u.id, u.primary_namespace_id, u.is_admin, u.created_at
		FROM users u
		JOIN namespaces n ON n.id = u.primary_namespace_id
		WHERE n.name = ? COLLATE NOCASE
	`
	return s.scanUser(s.reader.QueryRow(query, name))
}

// ListUsers lists users ordered by creation time.
func (s *SQLiteStore) ListUsers(limit, offset int) ([]User, error) {
	query := `
		SELECT id, primary_namespace_id, is_admin, created_at
		FROM users
		ORDER BY created_at, id
		LIMIT ? OFFSET ?
	`

	rows, err := s.reader.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		var createdAt int64

		if err := rows.Scan(&user.ID, &user.PrimaryNamespaceID, &user.IsAdmin, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}

		user.CreatedAt = FromMicros(createdAt)
		users = append(users, user)
	}

	return users, rows.Err()
}

// CountUsers returns the total number of users.
func (s *SQLiteStore) CountUsers() (int, error) {
	var count int
	if err := s.reader.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// DeleteUser deletes a user. The personal namespace cascades via
// owner_user_id, which in turn cascades repos, folders, tags, and
// grants.
func (s *SQLiteStore) DeleteUser(id string) error {
	result, err := s.writer.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return mustAffect(result)
}
