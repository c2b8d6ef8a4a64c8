package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS_ImplementsStorage(t *testing.T) {
	var _ Storage = (*LocalFS)(nil)
	var _ Storage = (*S3Storage)(nil)
}

func TestLocalFS_WriteRead(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "runs/a.csv", []byte("v1")))
	require.NoError(t, fs.Write(ctx, "runs/a.csv", []byte("v2")))

	got, err := fs.Read(ctx, "runs/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	_, err = fs.Read(ctx, "runs/missing.csv")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalFS_ListSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "fixed_a.csv", []byte("a")))
	require.NoError(t, fs.Write(ctx, "dynamic_b.csv", []byte("b")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-fixed_c.csv-123"), []byte("c"), 0o644))

	paths, err := fs.List(ctx, "")
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{"dynamic_b.csv", "fixed_a.csv"}, paths)

	paths, err = fs.List(ctx, "fixed_")
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed_a.csv"}, paths)
}

func TestLocalFS_DeleteExists(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	ok, err := fs.Exists(ctx, "x.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fs.Write(ctx, "x.csv", []byte("x")))
	ok, _ = fs.Exists(ctx, "x.csv")
	assert.True(t, ok)

	require.NoError(t, fs.Delete(ctx, "x.csv"))
	require.NoError(t, fs.Delete(ctx, "x.csv"), "deleting twice is not an error")
	ok, _ = fs.Exists(ctx, "x.csv")
	assert.False(t, ok)
}

func TestS3Storage_Key(t *testing.T) {
	s, err := NewS3(S3Config{Bucket: "bt", Prefix: "/results/", Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, "results/a.csv", s.key("a.csv"))
	assert.Equal(t, "s3://bt/results/a.csv", s.Location("a.csv"))

	_, err = NewS3(S3Config{})
	assert.Error(t, err)
}
