package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func explode() error { panic("fuse lit") }

func TestProtect(t *testing.T) {
	sentinel := errors.New("plain")
	assert.NoError(t, protect(func() error { return nil }))
	assert.Same(t, sentinel, protect(func() error { return sentinel }))

	err := protect(explode)
	require.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "fuse lit")
	assert.Contains(t, err.Error(), "goroutine")
	assert.Contains(t, err.Error(), "plugin.explode", "stack names the panicking function")
}
