// Package repostore owns the on-disk bare repository tree under
// <data-dir>/repos. Paths are built from namespace and repo ids only,
// never from user-supplied names, so traversal outside the tree is
// structurally impossible.
package repostore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/sirupsen/logrus"

	"github.com/cutmanhq/cutman/internal/store"
)

type RepoStore struct {
	dataDir string
	locks   *lockTable
	log     *logrus.Logger
}

func New(dataDir string, log *logrus.Logger) *RepoStore {
	return &RepoStore{
		dataDir: dataDir,
		locks:   newLockTable(),
		log:     log,
	}
}

// Path returns the bare repository directory for a repo.
func (rs *RepoStore) Path(namespaceID, repoID string) string {
	return filepath.Join(rs.dataDir, "repos", namespaceID, repoID+".git")
}

// Create initializes a bare repository. Hooks are disabled by pointing
// core.hooksPath at an empty directory so server-side repos never run
// client-installed scripts.
func (rs *RepoStore) Create(namespaceID, repoID string) error {
	path := rs.Path(namespaceID, repoID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create namespace directory: %w", err)
	}

	repo, err := git.PlainInit(path, true)
	if err != nil {
		return fmt.Errorf("init bare repo: %w", err)
	}

	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("read repo config: %w", err)
	}
	cfg.Raw.Section("core").SetOption("sharedRepository", "group")
	cfg.Raw.Section("core").SetOption("hooksPath", filepath.Join(path, "hooks-disabled"))
	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("write repo config: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(path, "hooks-disabled"), 0o755); err != nil {
		return fmt.Errorf("create hooks directory: %w", err)
	}

	return nil
}

// Remove deletes a repository directory. A missing directory is not an
// error; the row is authoritative and deletion is best-effort.
func (rs *RepoStore) Remove(namespaceID, repoID string) error {
	path := rs.Path(namespaceID, repoID)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove repo directory: %w", err)
	}
	return nil
}

// Exists reports whether the repository directory is present.
func (rs *RepoStore) Exists(namespaceID, repoID string) bool {
	info, err := os.Stat(rs.Path(namespaceID, repoID))
	return err == nil && info.IsDir()
}

// Size walks the repository directory and sums file sizes. It is a
// cheap estimate recomputed after each push.
func (rs *RepoStore) Size(namespaceID, repoID string) (int64, error) {
	var total int64
	err := filepath.WalkDir(rs.Path(namespaceID, repoID), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk repo directory: %w", err)
	}
	return total, nil
}

// LockRepo acquires the per-repo writer lock, serializing receive-pack
// and destructive admin operations on the same repo. The returned
// function releases it.
func (rs *RepoStore) LockRepo(repoID string) func() {
	return rs.locks.lock(repoID)
}

// Sweep moves repository directories with no matching database row
// into <data-dir>/trash. It runs once at startup to reconcile crashes
// between row deletion and directory removal.
func (rs *RepoStore) Sweep(known []store.RepoRef) error {
	reposDir := filepath.Join(rs.dataDir, "repos")
	trashDir := filepath.Join(rs.dataDir, "trash")

	keep := make(map[string]struct{}, len(known))
	for _, ref := range known {
		keep[filepath.Join(ref.NamespaceID, ref.RepoID+".git")] = struct{}{}
	}

	nsEntries, err := os.ReadDir(reposDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read repos directory: %w", err)
	}

	for _, nsEntry := range nsEntries {
		if !nsEntry.IsDir() {
			continue
		}
		repoEntries, err := os.ReadDir(filepath.Join(reposDir, nsEntry.Name()))
		if err != nil {
			return fmt.Errorf("read namespace directory: %w", err)
		}
		for _, repoEntry := range repoEntries {
			rel := filepath.Join(nsEntry.Name(), repoEntry.Name())
			if _, ok := keep[rel]; ok {
				continue
			}

			if err := os.MkdirAll(filepath.Join(trashDir, nsEntry.Name()), 0o755); err != nil {
				return fmt.Errorf("create trash directory: %w", err)
			}
			src := filepath.Join(reposDir, rel)
			dst := filepath.Join(trashDir, rel)
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("move orphan to trash: %w", err)
			}
			rs.log.WithField("path", rel).Warn("moved orphan repo directory to trash")
		}
	}

	return nil
}
