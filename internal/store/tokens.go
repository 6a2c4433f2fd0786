package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cutmanhq/cutman/internal/core"
)

// GenerateToken creates a token row and returns the wire token, which
// is shown exactly once. A nil userID creates the admin-root token.
// Retries on the unlikely lookup-prefix collision.
func (s *SQLiteStore) GenerateToken(userID *string, description *string) (string, *Token, error) {
	const maxAttempts = 5

	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, token, err := s.generateTokenAttempt(userID, description)
		if err != nil {
			if errors.Is(err, ErrTokenLookupCollision) {
				continue
			}
			return "", nil, err
		}
		return raw, token, nil
	}

	return "", nil, fmt.Errorf("generate token: %w", ErrTokenLookupCollision)
}

func (s *SQLiteStore) generateTokenAttempt(userID *string, description *string) (string, *Token, error) {
	id := core.NewID()
	lookup := id[:core.LookupLen]

	secret, err := core.GenerateSecret(core.TokenSecretSize)
	if err != nil {
		return "", nil, fmt.Errorf("generate token secret: %w", err)
	}

	raw := core.BuildToken(lookup, secret)

	hash, err := core.HashToken(raw)
	if err != nil {
		return "", nil, fmt.Errorf("hash token: %w", err)
	}

	token := &Token{
		ID:          id,
		TokenLookup: lookup,
		SecretHash:  hash,
		UserID:      userID,
		Description: description,
		CreatedAt:   time.Now(),
	}

	_, err = s.writer.Exec(`
		INSERT INTO tokens (id, token_lookup, secret_hash, user_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, token.ID, token.TokenLookup, token.SecretHash,
		ToNullString(token.UserID), ToNullString(token.Description), ToMicros(token.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return "", nil, ErrTokenLookupCollision
		}
		return "", nil, fmt.Errorf("insert token: %w", err)
	}

	return raw, token, nil
}

func scanTokenRow(scan func(dest ...any) error) (*Token, error) {
	var token Token
	var userID, description sql.NullString
	var createdAt int64
	var lastUsedAt, revokedAt sql.NullInt64

	err := scan(
		&token.ID,
		&token.TokenLookup,
		&token.SecretHash,
		&userID,
		&description,
		&createdAt,
		&lastUsedAt,
		&revokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan token: %w", err)
	}

	token.UserID = FromNullString(userID)
	token.Description = FromNullString(description)
	token.CreatedAt = FromMicros(createdAt)
	token.LastUsedAt = FromNullMicros(lastUsedAt)
	token.RevokedAt = FromNullMicros(revokedAt)
	return &token, nil
}

const tokenColumns = `id, token_lookup, secret_hash, user_id, description, created_at, last_used_at, revoked_at`

// GetTokenByLookup retrieves a token by its lookup prefix.
func (s *SQLiteStore) GetTokenByLookup(lookup string) (*Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE token_lookup = ?`
	return scanTokenRow(s.reader.QueryRow(query, lookup).Scan)
}

// GetTokenByID retrieves a token by ID.
func (s *SQLiteStore) GetTokenByID(id string) (*Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = ?`
	return scanTokenRow(s.reader.QueryRow(query, id).Scan)
}

func collectTokens(rows *sql.Rows) ([]Token, error) {
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		token, err := scanTokenRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *token)
	}
	return tokens, rows.Err()
}

// ListTokens lists all tokens, newest first.
func (s *SQLiteStore) ListTokens(limit, offset int) ([]Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := s.reader.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	return collectTokens(rows)
}

// CountTokens returns the total number of token rows.
func (s *SQLiteStore) CountTokens() (int, error) {
	var count int
	if err := s.reader.QueryRow("SELECT COUNT(*) FROM tokens").Scan(&count); err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return count, nil
}

// ListUserTokens lists all tokens belonging to a user.
func (s *SQLiteStore) ListUserTokens(userID string) ([]Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := s.reader.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("query user tokens: %w", err)
	}
	return collectTokens(rows)
}

// RevokeToken marks a token revoked. The row stays for audit.
func (s *SQLiteStore) RevokeToken(id string) error {
	result, err := s.writer.Exec(
		"UPDATE tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL",
		ToMicros(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return mustAffect(result)
}

// TouchToken updates last_used_at asynchronously. Authentication does
// not depend on it.
func (s *SQLiteStore) TouchToken(id string) {
	go func() {
		_, _ = s.writer.Exec("UPDATE tokens SET last_used_at = ? WHERE id = ?", ToMicros(time.Now()), id)
	}()
}

// HasAdminToken reports whether an unrevoked admin-root token exists.
func (s *SQLiteStore) HasAdminToken() (bool, error) {
	var count int
	err := s.reader.QueryRow("SELECT COUNT(*) FROM tokens WHERE user_id IS NULL AND revoked_at IS NULL").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check admin token: %w", err)
	}
	return count > 0, nil
}
