/*
Package server tests.

End-to-end tests over httptest against an in-memory store and a temp
data directory. They exercise the envelope contract, authentication,
the permission model, and the main resource lifecycles. Store-level
constraint behavior lives in internal/store tests; Git pack transport
needs a real git client and is covered only at the advertisement and
bookkeeping level here.
*/
package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutmanhq/cutman/internal/config"
	"github.com/cutmanhq/cutman/internal/lfs"
	"github.com/cutmanhq/cutman/internal/repostore"
	"github.com/cutmanhq/cutman/internal/store"
)

type testEnv struct {
	store      store.Store
	handler    http.Handler
	adminToken string
	cfg        config.Config
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	for _, m := range mutate {
		m(&cfg)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	repos := repostore.New(cfg.DataDir, log)
	lfsStorage := lfs.NewLocalStorage(cfg.DataDir + "/lfs")

	adminToken, _, err := st.GenerateToken(nil, nil)
	require.NoError(t, err)

	srv := New(st, repos, lfsStorage, cfg, log)
	return &testEnv{
		store:      st,
		handler:    srv.Handler(),
		adminToken: adminToken,
		cfg:        cfg,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps {"data": ...} into out.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Data, "expected a data envelope, got: %s", rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var envelope struct {
		Error *ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error, "expected an error envelope, got: %s", rec.Body.String())
	return *envelope.Error
}

// createUser provisions a user through the admin API and returns the
// user payload plus a fresh token.
func (e *testEnv) createUser(t *testing.T, name string) (userResponse, string) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/admin/users", e.adminToken, map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created userResponse
	decodeData(t, rec, &created)

	rec = e.do(t, http.MethodPost, "/api/v1/admin/users/"+created.User.ID+"/tokens", e.adminToken, map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var minted tokenCreatedResponse
	decodeData(t, rec, &minted)

	return created, minted.Token
}

func TestHealthOpen(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnvelopeExclusivity(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/me", e.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "data")
	assert.NotContains(t, body, "error")

	rec = e.do(t, http.MethodGet, "/api/v1/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "error")
	assert.NotContains(t, body, "data")
}

func TestAuthentication(t *testing.T) {
	e := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/v1/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, KindUnauthenticated, decodeError(t, rec).Kind)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/v1/me", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revoked token", func(t *testing.T) {
		_, token := e.createUser(t, "revokee")

		rec := e.do(t, http.MethodGet, "/api/v1/me", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var me meResponse
		decodeData(t, rec, &me)
		require.NoError(t, e.store.RevokeToken(me.Token.ID))

		rec = e.do(t, http.MethodGet, "/api/v1/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, KindUnauthenticated, decodeError(t, rec).Kind)
	})

	t.Run("admin introspection", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/v1/me", e.adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var me meResponse
		decodeData(t, rec, &me)
		assert.True(t, me.Admin)
		assert.Nil(t, me.User)
	})
}

func TestAdminCreateNamespace(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/namespaces", e.adminToken, map[string]any{"name": "platform"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ns store.Namespace
	decodeData(t, rec, &ns)
	assert.Equal(t, "platform", ns.Name)
	assert.Equal(t, store.NamespaceKindShared, ns.Kind)

	// Duplicate, case-insensitively.
	rec = e.do(t, http.MethodPost, "/api/v1/admin/namespaces", e.adminToken, map[string]any{"name": "PLATFORM"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Non-admin cannot reach the admin tree.
	_, token := e.createUser(t, "pleb")
	rec = e.do(t, http.MethodPost, "/api/v1/admin/namespaces", token, map[string]any{"name": "other"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNameValidation(t *testing.T) {
	e := newTestEnv(t)

	for _, name := range []string{"", "-leading", strings.Repeat("a", 64), "a b", "a/../b", "a\x00b"} {
		rec := e.do(t, http.MethodPost, "/api/v1/admin/namespaces", e.adminToken, map[string]any{"name": name})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "name %q", name)
	}

	// Uppercase canonicalizes rather than failing.
	rec := e.do(t, http.MethodPost, "/api/v1/admin/namespaces", e.adminToken, map[string]any{"name": "MixedCase"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var ns store.Namespace
	decodeData(t, rec, &ns)
	assert.Equal(t, "mixedcase", ns.Name)
}

func TestRepoLifecycle(t *testing.T) {
	e := newTestEnv(t)
	user, token := e.createUser(t, "bert")

	rec := e.do(t, http.MethodPost, "/api/v1/repos", token, map[string]any{
		"namespace": "bert",
		"name":      "dotfiles",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var repo store.Repo
	decodeData(t, rec, &repo)
	assert.Equal(t, user.Namespace.ID, repo.NamespaceID)
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))

	t.Run("get by namespace and name", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/v1/repos/bert%2Fdotfiles", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got store.Repo
		decodeData(t, rec, &got)
		assert.Equal(t, repo.ID, got.ID)
	})

	t.Run("conditional update", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/repos/"+repo.ID,
			strings.NewReader(`{"description":"my dotfiles"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("If-Match", `"1"`)
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// The same precondition again is now stale.
		req = httptest.NewRequest(http.MethodPatch, "/api/v1/repos/"+repo.ID,
			strings.NewReader(`{"description":"again"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("If-Match", `"1"`)
		rec = httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("duplicate name", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/repos", token, map[string]any{
			"namespace": "bert",
			"name":      "DOTFILES",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := e.do(t, http.MethodDelete, "/api/v1/repos/"+repo.ID, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = e.do(t, http.MethodGet, "/api/v1/repos/"+repo.ID, token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestScopeEnforcement(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/namespaces", e.adminToken, map[string]any{"name": "shared"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var ns store.Namespace
	decodeData(t, rec, &ns)

	rec = e.do(t, http.MethodPost, "/api/v1/repos", e.adminToken, map[string]any{
		"namespace": "shared", "name": "service",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var repo store.Repo
	decodeData(t, rec, &repo)

	user, token := e.createUser(t, "guest")

	t.Run("no grant denied", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/v1/repos/shared%2Fservice", token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	grant := func(scopes ...string) {
		rec := e.do(t, http.MethodPost, "/api/v1/admin/users/"+user.User.ID+"/namespace-grants", e.adminToken,
			map[string]any{"namespace_id": ns.ID, "allow": scopes})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	t.Run("read-only grant cannot write", func(t *testing.T) {
		grant("repo:read")

		rec := e.do(t, http.MethodGet, "/api/v1/repos/"+repo.ID, token, nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = e.do(t, http.MethodPost, "/api/v1/repos", token, map[string]any{
			"namespace": "shared", "name": "sneaky",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = e.do(t, http.MethodDelete, "/api/v1/repos/"+repo.ID, token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("full grant allows create", func(t *testing.T) {
		grant("namespace:read", "namespace:write", "repo:read", "repo:write", "repo:admin")

		rec := e.do(t, http.MethodPost, "/api/v1/repos", token, map[string]any{
			"namespace": "shared", "name": "allowed",
		})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("grant revocation bites", func(t *testing.T) {
		rec := e.do(t, http.MethodDelete,
			"/api/v1/admin/users/"+user.User.ID+"/namespace-grants/"+ns.ID, e.adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodGet, "/api/v1/repos/"+repo.ID, token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRepoGrants(t *testing.T) {
	e := newTestEnv(t)
	owner, ownerToken := e.createUser(t, "owner")
	guest, guestToken := e.createUser(t, "visitor")
	_ = owner

	rec := e.do(t, http.MethodPost, "/api/v1/repos", ownerToken, map[string]any{
		"namespace": "owner", "name": "project",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var repo store.Repo
	decodeData(t, rec, &repo)

	rec = e.do(t, http.MethodGet, "/api/v1/repos/"+repo.ID, guestToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/repos/"+repo.ID+"/grants", ownerToken, map[string]any{
		"user_id": guest.User.ID, "allow": []string{"repo:read"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/v1/repos/"+repo.ID, guestToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Direct repo grants do not leak namespace rights.
	rec = e.do(t, http.MethodPost, "/api/v1/folders", guestToken, map[string]any{
		"namespace": "owner", "name": "sneaky",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFolderHierarchy(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.createUser(t, "casey")

	mkFolder := func(name string, parentID *string) store.Folder {
		body := map[string]any{"namespace": "casey", "name": name}
		if parentID != nil {
			body["parent_id"] = *parentID
		}
		rec := e.do(t, http.MethodPost, "/api/v1/folders", token, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var folder store.Folder
		decodeData(t, rec, &folder)
		return folder
	}

	projects := mkFolder("projects", nil)
	web := mkFolder("web", &projects.ID)
	frontend := mkFolder("frontend", &web.ID)

	t.Run("resolve by path", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/v1/folders/projects%2Fweb%2Ffrontend?namespace=casey", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got store.Folder
		decodeData(t, rec, &got)
		assert.Equal(t, frontend.ID, got.ID)
	})

	t.Run("duplicate sibling", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/folders", token, map[string]any{
			"namespace": "casey", "name": "web", "parent_id": projects.ID,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("self parent", func(t *testing.T) {
		rec := e.do(t, http.MethodPatch, "/api/v1/folders/"+projects.ID, token, map[string]any{
			"parent_id": projects.ID,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("cycle", func(t *testing.T) {
		rec := e.do(t, http.MethodPatch, "/api/v1/folders/"+projects.ID, token, map[string]any{
			"parent_id": frontend.ID,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("move to root", func(t *testing.T) {
		rec := e.do(t, http.MethodPatch, "/api/v1/folders/"+frontend.ID, token, map[string]any{
			"parent_id": nil,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got store.Folder
		decodeData(t, rec, &got)
		assert.Nil(t, got.ParentID)
	})
}

func TestRepoFolderAndTags(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.createUser(t, "dana")

	rec := e.do(t, http.MethodPost, "/api/v1/repos", token, map[string]any{
		"namespace": "dana", "name": "app",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var repo store.Repo
	decodeData(t, rec, &repo)

	rec = e.do(t, http.MethodPost, "/api/v1/folders", token, map[string]any{
		"namespace": "dana", "name": "archive",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var folder store.Folder
	decodeData(t, rec, &folder)

	rec = e.do(t, http.MethodPost, "/api/v1/repos/"+repo.ID+"/folders", token, map[string]any{
		"folder_id": folder.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/v1/tags", token, map[string]any{
		"namespace": "dana", "name": "wip", "color": "#ff8800",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tag store.Tag
	decodeData(t, rec, &tag)

	rec = e.do(t, http.MethodPost, "/api/v1/repos/"+repo.ID+"/tags", token, map[string]any{
		"tag_id": tag.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("cross-namespace tag rejected", func(t *testing.T) {
		_, otherToken := e.createUser(t, "erin")
		rec := e.do(t, http.MethodPost, "/api/v1/tags", otherToken, map[string]any{
			"namespace": "erin", "name": "foreign",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		var foreign store.Tag
		decodeData(t, rec, &foreign)

		rec = e.do(t, http.MethodPost, "/api/v1/repos/"+repo.ID+"/tags", token, map[string]any{
			"tag_id": foreign.ID,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("detach", func(t *testing.T) {
		rec := e.do(t, http.MethodDelete, "/api/v1/repos/"+repo.ID+"/tags/"+tag.ID, token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodDelete, "/api/v1/repos/"+repo.ID+"/tags/"+tag.ID, token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSelfServiceTokens(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		e := newTestEnv(t)
		_, token := e.createUser(t, "frank")

		rec := e.do(t, http.MethodPost, "/api/v1/tokens", token, map[string]any{})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("enabled by config", func(t *testing.T) {
		e := newTestEnv(t, func(cfg *config.Config) { cfg.Auth.AllowUserTokens = true })
		_, token := e.createUser(t, "frank")

		rec := e.do(t, http.MethodPost, "/api/v1/tokens", token, map[string]any{"description": "laptop"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var minted tokenCreatedResponse
		decodeData(t, rec, &minted)
		assert.True(t, strings.HasPrefix(minted.Token, "ct_"))

		// The new token works, and its owner can revoke it.
		rec = e.do(t, http.MethodGet, "/api/v1/me", minted.Token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodDelete, "/api/v1/tokens/"+minted.TokenInfo.ID, token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodGet, "/api/v1/me", minted.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cannot revoke someone else's token", func(t *testing.T) {
		e := newTestEnv(t)
		_, aliceToken := e.createUser(t, "alice")

		rec := e.do(t, http.MethodGet, "/api/v1/me", aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var me meResponse
		decodeData(t, rec, &me)

		_, bobToken := e.createUser(t, "bob")
		rec = e.do(t, http.MethodDelete, "/api/v1/tokens/"+me.Token.ID, bobToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGitAuthChallenge(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.createUser(t, "gitta")

	rec := e.do(t, http.MethodPost, "/api/v1/repos", token, map[string]any{
		"namespace": "gitta", "name": "site",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("missing credentials get a basic challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/git/gitta/site.git/info/refs?service=git-upload-pack", nil)
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, `Basic realm="cutman"`, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("basic x-token credentials authenticate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/git/gitta/unknown.git/info/refs?service=git-upload-pack", nil)
		req.SetBasicAuth("x-token", token)
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		// Authenticated, but the repo does not exist and is never
		// auto-created.
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unsupported service", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/git/gitta/site.git/info/refs?service=git-bogus", nil)
		req.SetBasicAuth("x-token", token)
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLFSRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.createUser(t, "hank")

	rec := e.do(t, http.MethodPost, "/api/v1/repos", token, map[string]any{
		"namespace": "hank", "name": "assets",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	content := []byte("large file contents")
	sum := sha256.Sum256(content)
	oid := hex.EncodeToString(sum[:])

	lfsDo := func(method, path string, body io.Reader) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, body)
		req.SetBasicAuth("x-token", token)
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("batch upload offers actions", func(t *testing.T) {
		body := fmt.Sprintf(`{"operation":"upload","objects":[{"oid":"%s","size":%d}]}`, oid, len(content))
		rec := lfsDo(http.MethodPost, "/git-lfs/hank/assets/objects/batch", strings.NewReader(body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp lfs.BatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Objects, 1)
		assert.Contains(t, resp.Objects[0].Actions, "upload")
		assert.Contains(t, resp.Objects[0].Actions, "verify")
	})

	t.Run("upload verify download", func(t *testing.T) {
		rec := lfsDo(http.MethodPut, "/git-lfs/hank/assets/objects/"+oid, bytes.NewReader(content))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := fmt.Sprintf(`{"oid":"%s","size":%d}`, oid, len(content))
		rec = lfsDo(http.MethodPost, "/git-lfs/hank/assets/objects/"+oid+"/verify", strings.NewReader(body))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = lfsDo(http.MethodGet, "/git-lfs/hank/assets/objects/"+oid, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, content, rec.Body.Bytes())
	})

	t.Run("hash mismatch rejected", func(t *testing.T) {
		bogus := strings.Repeat("ab", 32)
		rec := lfsDo(http.MethodPut, "/git-lfs/hank/assets/objects/"+bogus, bytes.NewReader(content))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("size limit", func(t *testing.T) {
		limited := newTestEnv(t, func(cfg *config.Config) { cfg.LFS.MaxObjectBytes = 4 })
		_, tok := limited.createUser(t, "iris")
		rec := limited.do(t, http.MethodPost, "/api/v1/repos", tok, map[string]any{
			"namespace": "iris", "name": "big",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		req := httptest.NewRequest(http.MethodPut, "/git-lfs/iris/big/objects/"+oid, bytes.NewReader(content))
		req.SetBasicAuth("x-token", tok)
		rr := httptest.NewRecorder()
		limited.handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})
}

func TestPaginationDefaults(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 3; i++ {
		e.createUser(t, fmt.Sprintf("user%d", i))
	}

	rec := e.do(t, http.MethodGet, "/api/v1/admin/users?per_page=2&page=2", e.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items   []store.User `json:"items"`
		Page    int          `json:"page"`
		PerPage int          `json:"per_page"`
		Total   int          `json:"total"`
	}
	decodeData(t, rec, &page)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PerPage)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 1)

	// per_page clamps to the maximum.
	rec = e.do(t, http.MethodGet, "/api/v1/admin/users?per_page=9999", e.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &page)
	assert.Equal(t, maxPerPage, page.PerPage)
}

func TestUnknownRouteEnvelope(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v2/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, KindNotFound, decodeError(t, rec).Kind)
}
