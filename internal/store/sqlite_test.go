// Store tests run against a private in-memory database per test.
// They cover the transactional invariants: namespace name uniqueness,
// repo_limit enforcement, cascading deletes, token revocation, and
// conditional repo updates.
package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutmanhq/cutman/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate())
	return s
}

func createTestUser(t *testing.T, s *SQLiteStore, name string) (*User, *Namespace) {
	t.Helper()

	now := time.Now()
	user := &User{ID: core.NewID(), CreatedAt: now}
	ns := &Namespace{
		ID:          core.NewID(),
		Name:        name,
		Kind:        NamespaceKindPersonal,
		OwnerUserID: &user.ID,
		CreatedAt:   now,
	}
	user.PrimaryNamespaceID = ns.ID

	require.NoError(t, s.CreateUserWithNamespace(user, ns))
	return user, ns
}

func createTestNamespace(t *testing.T, s *SQLiteStore, name string, repoLimit *int) *Namespace {
	t.Helper()

	ns := &Namespace{
		ID:        core.NewID(),
		Name:      name,
		Kind:      NamespaceKindShared,
		RepoLimit: repoLimit,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateNamespace(ns))
	return ns
}

func createTestRepo(t *testing.T, s *SQLiteStore, nsID, name string) *Repo {
	t.Helper()

	now := time.Now()
	repo := &Repo{
		ID:          core.NewID(),
		NamespaceID: nsID,
		Name:        name,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateRepo(repo))
	return repo
}

func TestCreateUserWithNamespace(t *testing.T) {
	s := newTestStore(t)

	user, ns := createTestUser(t, s, "alice")

	got, err := s.GetUser(user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ns.ID, got.PrimaryNamespaceID)
	assert.False(t, got.IsAdmin)

	gotNS, err := s.GetNamespace(ns.ID)
	require.NoError(t, err)
	require.NotNil(t, gotNS)
	assert.Equal(t, NamespaceKindPersonal, gotNS.Kind)
	require.NotNil(t, gotNS.OwnerUserID)
	assert.Equal(t, user.ID, *gotNS.OwnerUserID)

	byName, err := s.GetUserByName("alice")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, user.ID, byName.ID)
}

func TestNamespaceNameUniqueness(t *testing.T) {
	s := newTestStore(t)

	createTestNamespace(t, s, "team", nil)

	t.Run("exact duplicate", func(t *testing.T) {
		err := s.CreateNamespace(&Namespace{
			ID: core.NewID(), Name: "team", Kind: NamespaceKindShared, CreatedAt: time.Now(),
		})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("case-insensitive duplicate", func(t *testing.T) {
		err := s.CreateNamespace(&Namespace{
			ID: core.NewID(), Name: "TEAM", Kind: NamespaceKindShared, CreatedAt: time.Now(),
		})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("case-insensitive lookup", func(t *testing.T) {
		ns, err := s.GetNamespaceByName("TeAm")
		require.NoError(t, err)
		require.NotNil(t, ns)
		assert.Equal(t, "team", ns.Name)
	})
}

func TestRepoLimit(t *testing.T) {
	s := newTestStore(t)

	limit := 2
	ns := createTestNamespace(t, s, "limited", &limit)

	createTestRepo(t, s, ns.ID, "one")
	createTestRepo(t, s, ns.ID, "two")

	now := time.Now()
	err := s.CreateRepo(&Repo{
		ID: core.NewID(), NamespaceID: ns.ID, Name: "three",
		Version: 1, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, ErrRepoLimitExceeded)

	count, err := s.CountRepos(ns.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRepoNameUniqueness(t *testing.T) {
	s := newTestStore(t)

	ns := createTestNamespace(t, s, "team", nil)
	createTestRepo(t, s, ns.ID, "project")

	now := time.Now()
	err := s.CreateRepo(&Repo{
		ID: core.NewID(), NamespaceID: ns.ID, Name: "project",
		Version: 1, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, ErrConflict)

	other := createTestNamespace(t, s, "other", nil)
	createTestRepo(t, s, other.ID, "project")
}

func TestUpdateRepoVersioning(t *testing.T) {
	s := newTestStore(t)

	ns := createTestNamespace(t, s, "team", nil)
	repo := createTestRepo(t, s, ns.ID, "project")

	t.Run("unconditional update bumps version", func(t *testing.T) {
		repo.Name = "renamed"
		require.NoError(t, s.UpdateRepo(repo, nil))

		got, err := s.GetRepoByID(repo.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		stale := int64(1)
		err := s.UpdateRepo(repo, &stale)
		assert.ErrorIs(t, err, ErrVersionMismatch)
	})

	t.Run("matching version applies", func(t *testing.T) {
		current := int64(2)
		repo.Name = "renamed-again"
		require.NoError(t, s.UpdateRepo(repo, &current))
	})
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)

	user, ns := createTestUser(t, s, "bob")
	repo := createTestRepo(t, s, ns.ID, "project")

	folder := &Folder{ID: core.NewID(), NamespaceID: ns.ID, Name: "work", CreatedAt: time.Now()}
	require.NoError(t, s.CreateFolder(folder))

	tag := &Tag{ID: core.NewID(), NamespaceID: ns.ID, Name: "active", CreatedAt: time.Now()}
	require.NoError(t, s.CreateTag(tag))

	require.NoError(t, s.DeleteUser(user.ID))

	gotNS, err := s.GetNamespace(ns.ID)
	require.NoError(t, err)
	assert.Nil(t, gotNS)

	gotRepo, err := s.GetRepoByID(repo.ID)
	require.NoError(t, err)
	assert.Nil(t, gotRepo)

	gotFolder, err := s.GetFolderByID(folder.ID)
	require.NoError(t, err)
	assert.Nil(t, gotFolder)

	gotTag, err := s.GetTagByID(tag.ID)
	require.NoError(t, err)
	assert.Nil(t, gotTag)
}

func TestDeleteNamespaceCascades(t *testing.T) {
	s := newTestStore(t)

	ns := createTestNamespace(t, s, "team", nil)
	repo := createTestRepo(t, s, ns.ID, "project")

	require.NoError(t, s.DeleteNamespace(ns.ID))

	got, err := s.GetRepoByID(repo.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, s.DeleteNamespace(ns.ID), ErrNotFound)
}

func TestGenerateAndRevokeToken(t *testing.T) {
	s := newTestStore(t)

	user, _ := createTestUser(t, s, "carol")

	raw, token, err := s.GenerateToken(&user.ID, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "ct_"))
	assert.NotContains(t, token.SecretHash, raw)

	lookup, _, err := core.ParseToken(raw)
	require.NoError(t, err)

	got, err := s.GetTokenByLookup(lookup)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NoError(t, core.VerifyToken(raw, got.SecretHash))
	assert.Nil(t, got.RevokedAt)
	assert.False(t, got.IsAdmin())

	require.NoError(t, s.RevokeToken(token.ID))

	got, err = s.GetTokenByLookup(lookup)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.RevokedAt)

	// Revoking twice reports not found; the row is already revoked.
	assert.ErrorIs(t, s.RevokeToken(token.ID), ErrNotFound)
}

func TestAdminToken(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.HasAdminToken()
	require.NoError(t, err)
	assert.False(t, ok)

	_, token, err := s.GenerateToken(nil, nil)
	require.NoError(t, err)
	assert.True(t, token.IsAdmin())

	ok, err = s.HasAdminToken()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFolderUniquenessAndHierarchy(t *testing.T) {
	s := newTestStore(t)

	ns := createTestNamespace(t, s, "team", nil)

	root := &Folder{ID: core.NewID(), NamespaceID: ns.ID, Name: "projects", CreatedAt: time.Now()}
	require.NoError(t, s.CreateFolder(root))

	t.Run("duplicate root name", func(t *testing.T) {
		err := s.CreateFolder(&Folder{
			ID: core.NewID(), NamespaceID: ns.ID, Name: "projects", CreatedAt: time.Now(),
		})
		assert.ErrorIs(t, err, ErrConflict)
	})

	child := &Folder{ID: core.NewID(), NamespaceID: ns.ID, ParentID: &root.ID, Name: "web", CreatedAt: time.Now()}
	require.NoError(t, s.CreateFolder(child))

	t.Run("same name under different parents", func(t *testing.T) {
		err := s.CreateFolder(&Folder{
			ID: core.NewID(), NamespaceID: ns.ID, ParentID: &child.ID, Name: "web", CreatedAt: time.Now(),
		})
		assert.NoError(t, err)
	})

	t.Run("child lookup by path segment", func(t *testing.T) {
		got, err := s.GetFolderChild(ns.ID, nil, "projects")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, root.ID, got.ID)

		got, err = s.GetFolderChild(ns.ID, &root.ID, "web")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, child.ID, got.ID)
	})

	t.Run("deleting folder detaches repos", func(t *testing.T) {
		repo := createTestRepo(t, s, ns.ID, "site")
		require.NoError(t, s.SetRepoFolder(repo.ID, &child.ID))

		require.NoError(t, s.DeleteFolder(child.ID))

		got, err := s.GetRepoByID(repo.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Nil(t, got.FolderID)
	})
}

func TestTags(t *testing.T) {
	s := newTestStore(t)

	ns := createTestNamespace(t, s, "team", nil)
	repo := createTestRepo(t, s, ns.ID, "project")

	color := "#ff8800"
	tag := &Tag{ID: core.NewID(), NamespaceID: ns.ID, Name: "active", Color: &color, CreatedAt: time.Now()}
	require.NoError(t, s.CreateTag(tag))

	err := s.CreateTag(&Tag{ID: core.NewID(), NamespaceID: ns.ID, Name: "active", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, s.AddRepoTag(repo.ID, tag.ID))
	require.NoError(t, s.AddRepoTag(repo.ID, tag.ID))

	tags, err := s.ListRepoTags(repo.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "active", tags[0].Name)

	require.NoError(t, s.RemoveRepoTag(repo.ID, tag.ID))
	assert.ErrorIs(t, s.RemoveRepoTag(repo.ID, tag.ID), ErrNotFound)
}

func TestGrantsAndAccessibleRepos(t *testing.T) {
	s := newTestStore(t)

	owner, ownerNS := createTestUser(t, s, "owner")
	guest, _ := createTestUser(t, s, "guest")
	repo := createTestRepo(t, s, ownerNS.ID, "project")

	t.Run("owner sees own repo", func(t *testing.T) {
		repos, total, err := s.ListAccessibleRepos(owner.ID, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, repos, 1)
		assert.Equal(t, repo.ID, repos[0].ID)
	})

	t.Run("guest sees nothing", func(t *testing.T) {
		_, total, err := s.ListAccessibleRepos(guest.ID, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("namespace grant with repo:read exposes repos", func(t *testing.T) {
		require.NoError(t, s.UpsertNamespaceGrant(&NamespaceGrant{
			UserID: guest.ID, NamespaceID: ownerNS.ID,
			Scopes: ScopeRepoRead, GrantedAt: time.Now(),
		}))

		repos, total, err := s.ListAccessibleRepos(guest.ID, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, repos, 1)
	})

	t.Run("write-only grant does not expose repos", func(t *testing.T) {
		require.NoError(t, s.UpsertNamespaceGrant(&NamespaceGrant{
			UserID: guest.ID, NamespaceID: ownerNS.ID,
			Scopes: ScopeNamespaceWrite, GrantedAt: time.Now(),
		}))

		_, total, err := s.ListAccessibleRepos(guest.ID, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("repo grant exposes single repo", func(t *testing.T) {
		require.NoError(t, s.DeleteNamespaceGrant(guest.ID, ownerNS.ID))
		require.NoError(t, s.UpsertRepoGrant(&RepoGrant{
			UserID: guest.ID, RepoID: repo.ID,
			Scopes: ScopeRepoRead, GrantedAt: time.Now(),
		}))

		repos, total, err := s.ListAccessibleRepos(guest.ID, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, repos, 1)
		assert.Equal(t, repo.ID, repos[0].ID)
	})
}

func TestScopeParsing(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		mask, err := ParseScopes([]string{"repo:read", "namespace:write"})
		require.NoError(t, err)
		assert.True(t, mask.Has(ScopeRepoRead))
		assert.True(t, mask.Has(ScopeNamespaceWrite))
		assert.False(t, mask.Has(ScopeRepoWrite))
		assert.Equal(t, []string{"namespace:write", "repo:read"}, mask.Strings())
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, err := ParseScopes([]string{"repo:read", "galaxy:admin"})
		assert.Error(t, err)
	})

	t.Run("no implication between scopes", func(t *testing.T) {
		assert.False(t, ScopeRepoAdmin.Has(ScopeRepoRead))
		assert.False(t, ScopeRepoWrite.Has(ScopeRepoRead))
		assert.True(t, ScopeAll.Has(ScopeRepoAdmin|ScopeNamespaceRead))
	})
}

func TestLFSObjects(t *testing.T) {
	s := newTestStore(t)

	ns := createTestNamespace(t, s, "team", nil)
	oid := strings.Repeat("ab", 32)

	obj := &LFSObject{NamespaceID: ns.ID, OID: oid, Size: 1024, CreatedAt: time.Now()}
	require.NoError(t, s.PutLFSObject(obj))
	require.NoError(t, s.PutLFSObject(obj))

	got, err := s.GetLFSObject(ns.ID, oid)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1024), got.Size)

	missing, err := s.GetLFSObject(ns.ID, strings.Repeat("cd", 32))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTimestampMicros(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	assert.Equal(t, now, FromMicros(ToMicros(now)))
}
