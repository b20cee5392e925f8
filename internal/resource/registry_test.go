package resource

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("webm-bytes"), 0644))
	return p
}

func TestCreateAndRevoke(t *testing.T) {
	r := NewLocalRegistry()
	p := writeFile(t, "talk.webm")

	url, err := r.CreateResourceURL(p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, URLPrefix))
	assert.Equal(t, 1, r.Outstanding())

	e, ok := r.Resolve(url)
	require.True(t, ok)
	assert.Equal(t, p, e.Path)
	assert.Equal(t, int64(len("webm-bytes")), e.Size)

	id, ok := IDFromURL(url)
	require.True(t, ok)
	_, ok = r.ResolveID(id)
	assert.True(t, ok)

	require.NoError(t, r.RevokeResourceURL(url))
	assert.Equal(t, 0, r.Outstanding())

	_, ok = r.Resolve(url)
	assert.False(t, ok)
}

func TestDoubleRevoke(t *testing.T) {
	r := NewLocalRegistry()
	url, err := r.CreateResourceURL(writeFile(t, "a.webm"))
	require.NoError(t, err)

	require.NoError(t, r.RevokeResourceURL(url))
	err = r.RevokeResourceURL(url)
	assert.True(t, errors.Is(err, ErrUnknownURL), "got %v", err)

	created, revoked := r.Counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, revoked)
}

func TestSamePathTwiceGivesDistinctURLs(t *testing.T) {
	r := NewLocalRegistry()
	p := writeFile(t, "a.webm")

	u1, err := r.CreateResourceURL(p)
	require.NoError(t, err)
	u2, err := r.CreateResourceURL(p)
	require.NoError(t, err)

	assert.NotEqual(t, u1, u2)
	assert.Equal(t, 2, r.Outstanding())
}

func TestCreateRejectsMissingAndDirectories(t *testing.T) {
	r := NewLocalRegistry()

	_, err := r.CreateResourceURL(filepath.Join(t.TempDir(), "missing.webm"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)

	_, err = r.CreateResourceURL(t.TempDir())
	assert.True(t, errors.Is(err, ErrNotFile), "got %v", err)

	assert.Equal(t, 0, r.Outstanding())
}

func TestResolveIDRejectsTraversal(t *testing.T) {
	r := NewLocalRegistry()
	_, ok := r.ResolveID("../etc/passwd")
	assert.False(t, ok)
}
