package core

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSlug(t *testing.T) {
	valid := []string{"a", "abc", "my-project", "my_project", "a1b2", strings.Repeat("a", 63)}
	for _, name := range valid {
		if err := ValidateSlug(name); err != nil {
			t.Errorf("ValidateSlug(%q) error = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		"UPPER",
		"-leading",
		"_leading",
		"has.period",
		"has/slash",
		"has space",
		"null\x00byte",
		strings.Repeat("a", 64),
	}
	for _, name := range invalid {
		if err := ValidateSlug(name); !errors.Is(err, ErrInvalidSlug) {
			t.Errorf("ValidateSlug(%q) error = %v, want ErrInvalidSlug", name, err)
		}
	}
}

func TestValidateRepoName(t *testing.T) {
	valid := []string{"repo", "my.project", "v2.0-rc1", strings.Repeat("a", 100)}
	for _, name := range valid {
		if err := ValidateRepoName(name); err != nil {
			t.Errorf("ValidateRepoName(%q) error = %v, want nil", name, err)
		}
	}

	invalid := []string{"", ".hidden", "Repo", strings.Repeat("a", 101)}
	for _, name := range invalid {
		if err := ValidateRepoName(name); !errors.Is(err, ErrInvalidSlug) {
			t.Errorf("ValidateRepoName(%q) error = %v, want ErrInvalidSlug", name, err)
		}
	}
}

func TestCanonicalFolderPath(t *testing.T) {
	t.Run("simple path", func(t *testing.T) {
		segs, err := CanonicalFolderPath("projects/web/frontend")
		if err != nil {
			t.Fatalf("CanonicalFolderPath() error = %v", err)
		}
		if len(segs) != 3 || segs[0] != "projects" || segs[2] != "frontend" {
			t.Errorf("CanonicalFolderPath() = %v", segs)
		}
	})

	t.Run("lowercases and trims slashes", func(t *testing.T) {
		segs, err := CanonicalFolderPath("/Projects/Web/")
		if err != nil {
			t.Fatalf("CanonicalFolderPath() error = %v", err)
		}
		if len(segs) != 2 || segs[0] != "projects" || segs[1] != "web" {
			t.Errorf("CanonicalFolderPath() = %v", segs)
		}
	})

	t.Run("rejects traversal and empties", func(t *testing.T) {
		for _, p := range []string{"", "a//b", "a/../b", "a/./b", "a/..", "bad name/x"} {
			if _, err := CanonicalFolderPath(p); !errors.Is(err, ErrInvalidSlug) {
				t.Errorf("CanonicalFolderPath(%q) error = %v, want ErrInvalidSlug", p, err)
			}
		}
	})

	t.Run("rejects excessive depth", func(t *testing.T) {
		p := strings.TrimSuffix(strings.Repeat("a/", MaxFolderDepth+1), "/")
		if _, err := CanonicalFolderPath(p); !errors.Is(err, ErrInvalidSlug) {
			t.Errorf("CanonicalFolderPath(deep) error = %v, want ErrInvalidSlug", err)
		}
	})
}

func TestNewID(t *testing.T) {
	id1 := NewID()
	id2 := NewID()

	if len(id1) != 26 {
		t.Errorf("NewID() length = %d, want 26", len(id1))
	}
	if id1 == id2 {
		t.Error("NewID() should produce distinct ids")
	}
	if id1 != strings.ToLower(id1) {
		t.Errorf("NewID() should be lowercase, got %s", id1)
	}
}
