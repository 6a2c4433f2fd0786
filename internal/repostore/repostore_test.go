package repostore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutmanhq/cutman/internal/store"
)

func newTestRepoStore(t *testing.T) *RepoStore {
	t.Helper()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	return New(t.TempDir(), log)
}

func TestCreateAndRemove(t *testing.T) {
	rs := newTestRepoStore(t)

	require.NoError(t, rs.Create("ns1", "repo1"))
	assert.True(t, rs.Exists("ns1", "repo1"))

	// A bare repo has HEAD at its top level.
	_, err := os.Stat(filepath.Join(rs.Path("ns1", "repo1"), "HEAD"))
	assert.NoError(t, err)

	size, err := rs.Size("ns1", "repo1")
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))

	require.NoError(t, rs.Remove("ns1", "repo1"))
	assert.False(t, rs.Exists("ns1", "repo1"))

	// Removing again is fine.
	assert.NoError(t, rs.Remove("ns1", "repo1"))
}

func TestPathUsesIDsOnly(t *testing.T) {
	rs := newTestRepoStore(t)

	path := rs.Path("nsid", "repoid")
	assert.Equal(t, filepath.Join(rs.dataDir, "repos", "nsid", "repoid.git"), path)
}

func TestSweepMovesOrphans(t *testing.T) {
	rs := newTestRepoStore(t)

	require.NoError(t, rs.Create("ns1", "kept"))
	require.NoError(t, rs.Create("ns1", "orphan"))

	known := []store.RepoRef{{NamespaceID: "ns1", RepoID: "kept"}}
	require.NoError(t, rs.Sweep(known))

	assert.True(t, rs.Exists("ns1", "kept"))
	assert.False(t, rs.Exists("ns1", "orphan"))

	_, err := os.Stat(filepath.Join(rs.dataDir, "trash", "ns1", "orphan.git"))
	assert.NoError(t, err)
}

func TestSweepNoReposDir(t *testing.T) {
	rs := newTestRepoStore(t)
	assert.NoError(t, rs.Sweep(nil))
}

func TestLockRepoSerializes(t *testing.T) {
	rs := newTestRepoStore(t)

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := rs.LockRepo("repo1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}
