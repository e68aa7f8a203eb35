package namespace

import (
	"archive/zip"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Archive is an open extension archive.
type Archive struct {
	path string
	rc   *zip.ReadCloser
}

// OpenArchive opens a zip archive.
func OpenArchive(p string) (*Archive, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", p, err)
	}
	return &Archive{path: p, rc: rc}, nil
}

// Path returns the archive path on disk.
func (a *Archive) Path() string { return a.path }

// FS returns the archive contents as a file system.
func (a *Archive) FS() fs.FS { return &a.rc.Reader }

// ReadFile reads one entry.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(a.FS(), name)
}

// Close closes the archive.
func (a *Archive) Close() error { return a.rc.Close() }

// luaModules maps exported module names to entry paths.
func (a *Archive) luaModules() map[string]string {
	mods := make(map[string]string)
	for _, f := range a.rc.File {
		name := strings.TrimPrefix(f.Name, "/")
		if f.FileInfo().IsDir() || path.Ext(name) != ".lua" {
			continue
		}
		mod := strings.ReplaceAll(strings.TrimSuffix(name, ".lua"), "/", ".")
		mods[mod] = name
		if parent, ok := strings.CutSuffix(mod, ".init"); ok {
			if _, taken := mods[parent]; !taken {
				mods[parent] = name
			}
		}
	}
	return mods
}
