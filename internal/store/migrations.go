package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migrations are forward-only. Each entry runs once, inside its own
// transaction, and is recorded in schema_migrations. Never edit an
// applied migration; append a new one.
var migrations = []string{
	// 1: initial schema
	`
	CREATE TABLE users (
		id TEXT PRIMARY KEY,
		primary_namespace_id TEXT NOT NULL
			REFERENCES namespaces(id) DEFERRABLE INITIALLY DEFERRED,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE namespaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('personal', 'shared')),
		owner_user_id TEXT
			REFERENCES users(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
		repo_limit INTEGER,
		created_at INTEGER NOT NULL,

		CHECK ((kind = 'shared') = (owner_user_id IS NULL))
	);
	CREATE UNIQUE INDEX idx_namespaces_name ON namespaces(name COLLATE NOCASE);

	CREATE TABLE tokens (
		id TEXT PRIMARY KEY,
		token_lookup TEXT NOT NULL UNIQUE,
		secret_hash TEXT NOT NULL,
		user_id TEXT REFERENCES users(id) ON DELETE CASCADE,
		description TEXT,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER,
		revoked_at INTEGER
	);
	CREATE INDEX idx_tokens_user ON tokens(user_id);

	CREATE TABLE folders (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		parent_id TEXT REFERENCES folders(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL,

		UNIQUE (namespace_id, parent_id, name)
	);
	-- SQLite treats NULLs as distinct in unique constraints, so root
	-- level names need their own index.
	CREATE UNIQUE INDEX idx_folders_root_name
		ON folders(namespace_id, name) WHERE parent_id IS NULL;
	CREATE INDEX idx_folders_parent ON folders(parent_id);

	CREATE TABLE repos (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT,
		folder_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,

		UNIQUE (namespace_id, name)
	);
	CREATE INDEX idx_repos_namespace ON repos(namespace_id);
	CREATE INDEX idx_repos_folder ON repos(folder_id);

	CREATE TABLE tags (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		color TEXT,
		created_at INTEGER NOT NULL,

		UNIQUE (namespace_id, name)
	);

	CREATE TABLE repo_tags (
		repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
		tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (repo_id, tag_id)
	);

	CREATE TABLE namespace_grants (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		scopes INTEGER NOT NULL,
		granted_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, namespace_id)
	);

	CREATE TABLE repo_grants (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
		scopes INTEGER NOT NULL,
		granted_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, repo_id)
	);

	CREATE TABLE lfs_objects (
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		oid TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (namespace_id, oid)
	);
	`,
}

// Migrate applies pending migrations in order.
func (s *SQLiteStore) Migrate() error {
	if _, err := s.writer.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	err := s.writer.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		err := s.withTx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(migrations[i]); err != nil {
				return fmt.Errorf("apply migration %d: %w", version, err)
			}
			if _, err := tx.Exec(
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				version, ToMicros(time.Now()),
			); err != nil {
				return fmt.Errorf("record migration %d: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
