package media

import (
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

type fakeHost struct {
	key, contentType string
	body             []byte
	err              error
}

func (h *fakeHost) Publish(_ context.Context, key, contentType string, data io.Reader) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	h.key, h.contentType = key, contentType
	h.body, _ = io.ReadAll(data)
	return "https://cdn.example.com/" + key, nil
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestPrepare_InlinesWithoutHost(t *testing.T) {
	p := NewPreparer(NewCompressor(&fakeEncoder{}, CompressOptions{}, nil), nil, nil)
	path := writeFile(t, "frame.png", pngHeader)

	got, err := p.Prepare(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, EncodeDataURL("image/png", pngHeader), got)
}

func TestPrepare_PublishesCompressed(t *testing.T) {
	enc := &fakeEncoder{sizes: map[int]int{92: 10}}
	host := &fakeHost{}
	p := NewPreparer(NewCompressor(enc, CompressOptions{ThresholdBytes: 16}, nil), host, nil)
	path := writeFile(t, "frame.png", append(pngHeader, make([]byte, 64)...))

	got, err := p.Prepare(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(host.key, ".webp"))
	assert.Equal(t, MIMEWebP, host.contentType)
	assert.Len(t, host.body, 10)
	assert.Equal(t, "https://cdn.example.com/"+host.key, got)
}

func TestPrepare_PublishFailureInlines(t *testing.T) {
	p := NewPreparer(NewCompressor(&fakeEncoder{}, CompressOptions{}, nil), &fakeHost{err: errors.New("denied")}, nil)
	path := writeFile(t, "frame.png", pngHeader)

	got, err := p.Prepare(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "data:image/png;base64,"))
}

func TestPrepare_PassesURLsThrough(t *testing.T) {
	p := NewPreparer(NewCompressor(&fakeEncoder{}, CompressOptions{}, nil), nil, nil)
	for _, s := range []string{"", "https://example.com/a.png", "data:image/png;base64,AAAA"} {
		got, err := p.Prepare(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestPrepare_Errors(t *testing.T) {
	p := NewPreparer(NewCompressor(&fakeEncoder{}, CompressOptions{}, nil), nil, nil)

	_, err := p.Prepare(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	_, err = p.Prepare(context.Background(), writeFile(t, "notes.txt", []byte("hello")))
	assert.ErrorContains(t, err, "not an image")
}
