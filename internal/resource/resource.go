// Package resource resolves named resources against an external override
// directory first and a bundled file system second. The host and every
// extension use the same Lookup so precedence is identical everywhere.
package resource

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when neither the override nor the bundle has
// the resource.
var ErrNotFound = errors.New("resource not found")

// ErrInvalidName is returned for names escaping the resource root.
var ErrInvalidName = errors.New("invalid resource name")

// Lookup resolves resources. The zero value finds nothing.
type Lookup struct {
	// Override is a directory on disk checked first. Empty disables it.
	Override string

	// Bundle is the fallback file system, usually an archive or an
	// embedded FS. Nil disables it.
	Bundle fs.FS
}

// New creates a Lookup.
func New(override string, bundle fs.FS) *Lookup {
	return &Lookup{Override: override, Bundle: bundle}
}

// Open returns the resource. Leading slashes are ignored, so "/config.yml"
// and "config.yml" are the same resource.
func (l *Lookup) Open(name string) (io.ReadCloser, error) {
	clean, err := normalize(name)
	if err != nil {
		return nil, err
	}

	if l.Override != "" {
		p := filepath.Join(l.Override, filepath.FromSlash(clean))
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			f, err := os.Open(p)
			if err != nil {
				return nil, fmt.Errorf("open override %s: %w", p, err)
			}
			return f, nil
		}
	}

	if l.Bundle != nil {
		f, err := l.Bundle.Open(clean)
		if err == nil {
			info, statErr := f.Stat()
			if statErr == nil && !info.IsDir() {
				return f, nil
			}
			_ = f.Close()
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open bundled %s: %w", clean, err)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
}

// Read returns the full resource contents.
func (l *Lookup) Read(name string) ([]byte, error) {
	rc, err := l.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ReadBundled reads the resource from the bundle only, ignoring the
// override directory.
func (l *Lookup) ReadBundled(name string) ([]byte, error) {
	clean, err := normalize(name)
	if err != nil {
		return nil, err
	}
	if l.Bundle == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	data, err := fs.ReadFile(l.Bundle, clean)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	return data, err
}

// Exists reports whether Open would succeed.
func (l *Lookup) Exists(name string) bool {
	rc, err := l.Open(name)
	if err != nil {
		return false
	}
	_ = rc.Close()
	return true
}

func normalize(name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || !fs.ValidPath(clean) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}
