package store

import (
	"database/sql"
	"time"
)

// Namespace kinds.
const (
	NamespaceKindPersonal = "personal"
	NamespaceKindShared   = "shared"
)

type User struct {
	ID                 string    `json:"id"`
	PrimaryNamespaceID string    `json:"primary_namespace_id"`
	IsAdmin            bool      `json:"is_admin"`
	CreatedAt          time.Time `json:"created_at"`
}

type Namespace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	OwnerUserID *string   `json:"owner_user_id,omitempty"`
	RepoLimit   *int      `json:"repo_limit,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Token rows keep only the argon2id hash of the wire secret. A NULL
// user_id marks the admin-root token. Revocation sets revoked_at and
// keeps the row for audit.
type Token struct {
	ID          string     `json:"id"`
	TokenLookup string     `json:"-"`
	SecretHash  string     `json:"-"`
	UserID      *string    `json:"user_id,omitempty"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// IsAdmin reports whether this is the admin-root token.
func (t *Token) IsAdmin() bool {
	return t.UserID == nil
}

type Repo struct {
	ID          string    `json:"id"`
	NamespaceID string    `json:"namespace_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	FolderID    *string   `json:"folder_id,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Folder struct {
	ID          string    `json:"id"`
	NamespaceID string    `json:"namespace_id"`
	ParentID    *string   `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Tag struct {
	ID          string    `json:"id"`
	NamespaceID string    `json:"namespace_id"`
	Name        string    `json:"name"`
	Color       *string   `json:"color,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type NamespaceGrant struct {
	UserID      string    `json:"user_id"`
	NamespaceID string    `json:"namespace_id"`
	Scopes      Scope     `json:"-"`
	GrantedAt   time.Time `json:"granted_at"`
}

type RepoGrant struct {
	UserID    string    `json:"user_id"`
	RepoID    string    `json:"repo_id"`
	Scopes    Scope     `json:"-"`
	GrantedAt time.Time `json:"granted_at"`
}

type LFSObject struct {
	NamespaceID string    `json:"namespace_id"`
	OID         string    `json:"oid"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// RepoRef identifies a repo's on-disk location.
type RepoRef struct {
	NamespaceID string
	RepoID      string
}

// Timestamps are persisted as integer microseconds UTC.

func ToMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func ToNullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ToMicros(*t), Valid: true}
}

func FromNullMicros(ni sql.NullInt64) *time.Time {
	if !ni.Valid {
		return nil
	}
	t := FromMicros(ni.Int64)
	return &t
}

func ToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func FromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func ToNullInt64(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func FromNullInt64(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}
