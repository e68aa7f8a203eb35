package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/plugin/namespace"
)

// IsArchive reports whether path names an extension archive.
func IsArchive(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".jar":
		return true
	default:
		return false
	}
}

// Discover parses the descriptor of every archive in the manager's
// directory, in lexical order. Unreadable archives and invalid descriptors
// are logged and skipped. When two archives declare the same name the
// first one is kept and the conflicts are returned joined, next to the
// conflict-free descriptors.
func (m *Manager) Discover(ctx context.Context) ([]*Descriptor, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, &DiscoveryError{Archive: m.dir, Err: err}
	}

	var (
		descs     []*Descriptor
		byName    = make(map[string]*Descriptor)
		conflicts []error
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return descs, err
		}
		if entry.IsDir() || !IsArchive(entry.Name()) {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		d, err := m.readDescriptor(path)
		if err != nil {
			m.logger.Error("skipping archive", zap.Error(err))
			continue
		}

		if first, dup := byName[d.Name]; dup {
			conflict := &ConflictError{Name: d.Name, First: first.Archive, Second: path}
			m.logger.Error("skipping archive", zap.Error(conflict))
			conflicts = append(conflicts, conflict)
			continue
		}
		byName[d.Name] = d
		descs = append(descs, d)
	}

	m.logger.Info("discovered extensions", zap.Int("count", len(descs)), zap.Int("conflicts", len(conflicts)))
	return descs, errors.Join(conflicts...)
}

func (m *Manager) readDescriptor(path string) (*Descriptor, error) {
	archive, err := namespace.OpenArchive(path)
	if err != nil {
		return nil, &DiscoveryError{Archive: path, Err: err}
	}
	defer archive.Close()

	file := DescriptorFile(m.kind)
	data, err := archive.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrNoDescriptor, file)
		}
		return nil, &DiscoveryError{Archive: path, Err: err}
	}

	d, err := ParseDescriptor(data)
	if err != nil {
		return nil, &DiscoveryError{Archive: path, Err: err}
	}
	d.Archive = path
	return d, nil
}
