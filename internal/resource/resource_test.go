package resource

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPrecedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("override"), 0o644))

	bundle := fstest.MapFS{
		"config.yml":        {Data: []byte("bundled")},
		"lang/messages.toml": {Data: []byte("hello = 'hi'")},
	}
	l := New(dir, bundle)

	data, err := l.Read("config.yml")
	require.NoError(t, err)
	assert.Equal(t, "override", string(data))

	data, err = l.Read("/lang/messages.toml")
	require.NoError(t, err)
	assert.Equal(t, "hello = 'hi'", string(data))

	data, err = l.ReadBundled("config.yml")
	require.NoError(t, err)
	assert.Equal(t, "bundled", string(data))
}

func TestLookupNotFound(t *testing.T) {
	l := New(t.TempDir(), fstest.MapFS{"dir/file": {Data: []byte("x")}})

	_, err := l.Open("missing.yml")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Open("dir")
	assert.ErrorIs(t, err, ErrNotFound, "directories are not resources")

	assert.False(t, l.Exists("missing.yml"))
	assert.True(t, l.Exists("dir/file"))

	var zero Lookup
	_, err = zero.Open("anything")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupRejectsEscapes(t *testing.T) {
	l := New(t.TempDir(), nil)

	_, err := l.Open("")
	assert.ErrorIs(t, err, ErrInvalidName)

	// Cleaning keeps names inside the root.
	_, err = l.Open("../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}
