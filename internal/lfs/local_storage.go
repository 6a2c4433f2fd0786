package lfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

var oidPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// LocalStorage keeps LFS objects on the local filesystem under
// basePath (normally <data-dir>/lfs).
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// objectPath fans objects out over a 2-level prefix so a namespace
// with many objects does not end up with one huge directory.
func (s *LocalStorage) objectPath(namespaceID, oid string) string {
	return filepath.Join(s.basePath, namespaceID, oid[:2], oid[2:4], oid)
}

func (s *LocalStorage) tmpPath(namespaceID string) string {
	return filepath.Join(s.basePath, namespaceID, "tmp")
}

func ValidateOID(oid string) error {
	if !oidPattern.MatchString(oid) {
		return ErrInvalidOID
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, namespaceID, oid string) (bool, error) {
	if err := ValidateOID(oid); err != nil {
		return false, err
	}

	_, err := os.Stat(s.objectPath(namespaceID, oid))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

func (s *LocalStorage) Get(ctx context.Context, namespaceID, oid string) (io.ReadCloser, int64, error) {
	if err := ValidateOID(oid); err != nil {
		return nil, 0, err
	}

	path := s.objectPath(namespaceID, oid)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, ErrObjectNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("stat object: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open object: %w", err)
	}

	return file, info.Size(), nil
}

// Put streams content to a temp file while hashing, then renames into
// place once the SHA-256 matches the oid and the size matches the
// declaration. Concurrent uploads of the same oid race on the rename;
// the bytes are identical by construction, so last write wins safely.
func (s *LocalStorage) Put(ctx context.Context, namespaceID, oid string, content io.Reader, size int64) error {
	if err := ValidateOID(oid); err != nil {
		return err
	}

	tmpDir := s.tmpPath(namespaceID)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("create tmp directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	writer := io.MultiWriter(tmpFile, hasher)

	written, err := io.Copy(writer, content)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("write content: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if written != size {
		return ErrSizeMismatch
	}

	if hex.EncodeToString(hasher.Sum(nil)) != oid {
		return ErrHashMismatch
	}

	finalPath := s.objectPath(namespaceID, oid)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("move to final path: %w", err)
	}

	return nil
}

func (s *LocalStorage) Delete(ctx context.Context, namespaceID, oid string) error {
	if err := ValidateOID(oid); err != nil {
		return err
	}

	if err := os.Remove(s.objectPath(namespaceID, oid)); err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (s *LocalStorage) Size(ctx context.Context, namespaceID, oid string) (int64, error) {
	if err := ValidateOID(oid); err != nil {
		return 0, err
	}

	info, err := os.Stat(s.objectPath(namespaceID, oid))
	if os.IsNotExist(err) {
		return 0, ErrObjectNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("stat object: %w", err)
	}
	return info.Size(), nil
}
