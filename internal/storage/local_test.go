package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(filepath.Join(t.TempDir(), "frames"))
	require.NoError(t, err)
	return s
}

func TestNewLocalStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "tmp")

	s, err := NewLocalStorage(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.TempDir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	def, err := NewLocalStorage("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.TempDir(), "videogen"), def.TempDir())
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	path, err := s.SaveTemp(ctx, "frame", bytes.NewReader([]byte("png bytes")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "frame_"))

	r, err := s.LoadTemp(ctx, path)
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	_ = r.Close()
	assert.Equal(t, "png bytes", string(content))

	require.NoError(t, s.CleanupTemp(ctx, []string{path, filepath.Join(s.TempDir(), "never-existed")}))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorage_LoadMissing(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.LoadTemp(context.Background(), filepath.Join(s.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLocalStorage_ContextCancelled(t *testing.T) {
	s := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SaveTemp(ctx, "x", bytes.NewReader(nil))
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = s.LoadTemp(ctx, "/some/path")
	assert.True(t, errors.Is(err, context.Canceled))

	err = s.CleanupTemp(ctx, []string{"/some/path"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLocalStorage_PublishNotConfigured(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Publish(context.Background(), "k", "image/png", bytes.NewReader([]byte("data")))
	assert.ErrorIs(t, err, ErrPublishNotConfigured)
}
