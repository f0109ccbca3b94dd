package kv

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetRemove(t *testing.T) {
	s := NewMemoryStore()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	require.NoError(t, s.Set("a", "1"))
	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, s.Set("a", "2"))
	v, _ = s.Get("a")
	assert.Equal(t, "2", v)

	require.NoError(t, s.Remove("a"))
	require.NoError(t, s.Remove("a"))
	_, ok = s.Get("a")
	assert.False(t, ok)
}

func TestMemoryStore_KeysSorted(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Set("veo3_token", "x")
	_ = s.Set("sora2_history", "[]")
	_ = s.Set("veo3_history", "[]")

	assert.Equal(t, []string{"sora2_history", "veo3_history", "veo3_token"}, s.Keys())
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Set("k", "v")
				_, _ = s.Get("k")
				_ = s.Keys()
			}
		}()
	}
	wg.Wait()
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set("veo3_token", `{"value":"abc","ts":1}`))
	require.NoError(t, s.Set("other", "x"))
	require.NoError(t, s.Remove("other"))

	reopened, err := OpenFileStore(dir, nil)
	require.NoError(t, err)
	v, ok := reopened.Get("veo3_token")
	assert.True(t, ok)
	assert.Equal(t, `{"value":"abc","ts":1}`, v)
	_, ok = reopened.Get("other")
	assert.False(t, ok)
}

func TestFileStore_UnparsableFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("{not json"), 0600))

	s, err := OpenFileStore(dir, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Keys())

	require.NoError(t, s.Set("k", "v"))
	reopened, err := OpenFileStore(dir, nil)
	require.NoError(t, err)
	v, _ := reopened.Get("k")
	assert.Equal(t, "v", v)
}

func TestFileStore_DeterministicBytes(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set("b", "2"))
	require.NoError(t, s.Set("a", "1"))
	first, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	require.NoError(t, s.Set("a", "1"))
	second, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestOpenFileStore_RequiresDir(t *testing.T) {
	_, err := OpenFileStore("", nil)
	assert.Error(t, err)
}
