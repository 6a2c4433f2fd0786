package core

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

// Entity ids are 128 random bits rendered as 26 characters of
// lowercase unpadded base32. They are opaque and URL-safe; nothing may
// parse structure out of them beyond the token lookup prefix.
var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a fresh opaque id.
func NewID() string {
	u := uuid.New()
	return strings.ToLower(idEncoding.EncodeToString(u[:]))
}
