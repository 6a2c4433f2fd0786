package lfs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oidFor(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func TestPutGetRoundTrip(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	content := []byte("large file content")
	oid := oidFor(content)

	require.NoError(t, s.Put(ctx, "ns1", oid, bytes.NewReader(content), int64(len(content))))

	ok, err := s.Exists(ctx, "ns1", oid)
	require.NoError(t, err)
	assert.True(t, ok)

	r, size, err := s.Get(ctx, "ns1", oid)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, int64(len(content)), size)
}

func TestPutRejectsMismatches(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	content := []byte("content")
	oid := oidFor(content)

	t.Run("wrong hash", func(t *testing.T) {
		wrongOID := oidFor([]byte("other"))
		err := s.Put(ctx, "ns1", wrongOID, bytes.NewReader(content), int64(len(content)))
		assert.ErrorIs(t, err, ErrHashMismatch)

		ok, _ := s.Exists(ctx, "ns1", wrongOID)
		assert.False(t, ok)
	})

	t.Run("wrong size", func(t *testing.T) {
		err := s.Put(ctx, "ns1", oid, bytes.NewReader(content), int64(len(content))+1)
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})
}

func TestPutIdempotent(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	content := []byte("same bytes")
	oid := oidFor(content)

	require.NoError(t, s.Put(ctx, "ns1", oid, bytes.NewReader(content), int64(len(content))))
	require.NoError(t, s.Put(ctx, "ns1", oid, bytes.NewReader(content), int64(len(content))))

	size, err := s.Size(ctx, "ns1", oid)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)
}

func TestNamespaceIsolation(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	content := []byte("shared bytes")
	oid := oidFor(content)

	require.NoError(t, s.Put(ctx, "ns1", oid, bytes.NewReader(content), int64(len(content))))

	ok, err := s.Exists(ctx, "ns2", oid)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Get(ctx, "ns2", oid)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestValidateOID(t *testing.T) {
	valid := oidFor([]byte("x"))
	assert.NoError(t, ValidateOID(valid))

	invalid := []string{
		"",
		"short",
		strings.Repeat("g", 64),
		strings.Repeat("A", 64),
		"../" + strings.Repeat("a", 61),
	}
	for _, oid := range invalid {
		assert.ErrorIs(t, ValidateOID(oid), ErrInvalidOID, oid)
	}
}
