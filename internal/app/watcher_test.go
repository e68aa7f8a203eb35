package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/plugin/api"
)

func TestArchiveWatcher(t *testing.T) {
	modules, bots := t.TempDir(), t.TempDir()
	w, err := newArchiveWatcher(zap.NewNop(), 20*time.Millisecond, map[api.Kind]string{
		api.KindModule: modules,
		api.KindBot:    bots,
	})
	require.NoError(t, err)

	changes := make(chan archiveChange, 8)
	w.notify = func(c archiveChange) { changes <- c }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(modules, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bots, "echo.ZIP"), []byte("x"), 0o644))

	select {
	case c := <-changes:
		assert.Equal(t, api.KindBot, c.Kind)
		assert.Equal(t, "echo.ZIP", filepath.Base(c.Path))
		assert.NotZero(t, c.Op&opCreate)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestNewArchiveWatcherMissingDir(t *testing.T) {
	_, err := newArchiveWatcher(zap.NewNop(), 0, map[api.Kind]string{
		api.KindModule: filepath.Join(t.TempDir(), "absent"),
	})
	assert.Error(t, err)
}

func TestChangeOpString(t *testing.T) {
	assert.Equal(t, "none", changeOp(0).String())
	assert.Equal(t, "create|write", (opCreate | opWrite).String())
	assert.Equal(t, "remove", opRemove.String())
}
