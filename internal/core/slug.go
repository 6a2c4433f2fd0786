package core

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Name grammars. Namespaces, folders, and tags share the strict slug
// form; repo names additionally allow periods and run longer.
//
//	slug: [a-z0-9][a-z0-9_-]{0,62}
//	repo: [a-z0-9][a-z0-9._-]{0,99}
const (
	MaxSlugLen     = 63
	MaxRepoNameLen = 100
	MaxFolderDepth = 32
)

var ErrInvalidSlug = errors.New("invalid name")

func isSlugChar(c byte, allowPeriod bool) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	case c == '.' && allowPeriod:
		return true
	}
	return false
}

func validateName(name string, maxLen int, allowPeriod bool) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidSlug)
	}
	if len(name) > maxLen {
		return fmt.Errorf("%w: name cannot exceed %d characters", ErrInvalidSlug, maxLen)
	}
	for i := 0; i < len(name); i++ {
		if !isSlugChar(name[i], allowPeriod) {
			return fmt.Errorf("%w: name contains invalid character %q", ErrInvalidSlug, name[i])
		}
	}
	first := name[0]
	if first == '-' || first == '_' || first == '.' {
		return fmt.Errorf("%w: name cannot start with %q", ErrInvalidSlug, first)
	}
	return nil
}

// ValidateSlug checks a namespace, folder, or tag name.
func ValidateSlug(name string) error {
	return validateName(name, MaxSlugLen, false)
}

// ValidateRepoName checks a repository name. Periods are allowed so
// names like "my.project" work, but not in leading position.
func ValidateRepoName(name string) error {
	return validateName(name, MaxRepoNameLen, true)
}

// CanonicalizeName NFC-normalizes and lowercases a single name segment
// before lookup, so URL matching is case-insensitive.
func CanonicalizeName(name string) string {
	return strings.ToLower(norm.NFC.String(name))
}

// CanonicalFolderPath canonicalizes a slash-separated folder path and
// returns its segments. Empty segments, "." and "..", and anything
// outside the slug grammar are rejected, as are paths deeper than
// MaxFolderDepth.
func CanonicalFolderPath(path string) ([]string, error) {
	path = strings.ToLower(norm.NFC.String(path))
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty folder path", ErrInvalidSlug)
	}
	segments := strings.Split(path, "/")
	if len(segments) > MaxFolderDepth {
		return nil, fmt.Errorf("%w: folder path exceeds depth %d", ErrInvalidSlug, MaxFolderDepth)
	}
	for _, seg := range segments {
		if seg == "." || seg == ".." {
			return nil, fmt.Errorf("%w: folder path segment %q", ErrInvalidSlug, seg)
		}
		if err := ValidateSlug(seg); err != nil {
			return nil, err
		}
	}
	return segments, nil
}
