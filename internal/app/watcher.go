package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/plugin"
	"github.com/dshills/cutlet/internal/plugin/api"
)

// changeOp is a set of file operations seen on an archive.
type changeOp uint8

const (
	opCreate changeOp = 1 << iota
	opWrite
	opRemove
	opRename
)

func (op changeOp) String() string {
	var parts []string
	for _, o := range []struct {
		bit  changeOp
		name string
	}{
		{opCreate, "create"},
		{opWrite, "write"},
		{opRemove, "remove"},
		{opRename, "rename"},
	} {
		if op&o.bit != 0 {
			parts = append(parts, o.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// archiveChange is a coalesced change to one archive.
type archiveChange struct {
	Kind api.Kind
	Path string
	Op   changeOp
}

// archiveWatcher reports archives that appear, change or disappear while
// the host runs. Changes take effect only after a restart.
type archiveWatcher struct {
	fsw    *fsnotify.Watcher
	logger *zap.Logger
	delay  time.Duration
	kinds  map[string]api.Kind

	// notify, when set, receives every change after it is logged.
	notify func(archiveChange)
}

func newArchiveWatcher(logger *zap.Logger, delay time.Duration, dirs map[api.Kind]string) (*archiveWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	w := &archiveWatcher{
		fsw:    fsw,
		logger: logger,
		delay:  delay,
		kinds:  make(map[string]api.Kind, len(dirs)),
	}
	for kind, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			_ = fsw.Close()
			return nil, err
		}
		if err := fsw.Add(abs); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		w.kinds[abs] = kind
	}
	return w, nil
}

// Run processes events until ctx is done and closes the watcher.
func (w *archiveWatcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]archiveChange)
	var (
		timer *time.Timer
		flush <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			c, ok := w.convert(ev)
			if !ok {
				continue
			}
			if prev, seen := pending[c.Path]; seen {
				c.Op |= prev.Op
			}
			pending[c.Path] = c

			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			flush = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("archive watcher error", zap.Error(err))

		case <-flush:
			flush = nil
			w.emit(pending)
			clear(pending)
		}
	}
}

// convert keeps events on archives directly inside a watched directory.
func (w *archiveWatcher) convert(ev fsnotify.Event) (archiveChange, bool) {
	if !plugin.IsArchive(ev.Name) {
		return archiveChange{}, false
	}
	kind, ok := w.kinds[filepath.Dir(ev.Name)]
	if !ok {
		return archiveChange{}, false
	}

	var op changeOp
	if ev.Op.Has(fsnotify.Create) {
		op |= opCreate
	}
	if ev.Op.Has(fsnotify.Write) {
		op |= opWrite
	}
	if ev.Op.Has(fsnotify.Remove) {
		op |= opRemove
	}
	if ev.Op.Has(fsnotify.Rename) {
		op |= opRename
	}
	if op == 0 {
		return archiveChange{}, false
	}
	return archiveChange{Kind: kind, Path: ev.Name, Op: op}, true
}

func (w *archiveWatcher) emit(pending map[string]archiveChange) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		c := pending[p]
		w.logger.Info("archive changed, restart to apply",
			zap.Stringer("kind", c.Kind),
			zap.String("archive", c.Path),
			zap.Stringer("op", c.Op),
		)
		if w.notify != nil {
			w.notify(c)
		}
	}
}
