package toolchain

import (
	"os"
	"path/filepath"

	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
)

// Locator finds every executable named name in dirs, in search order.
type Locator interface {
	FindAll(name string, dirs []string) []string
}

// PathLocator searches the filesystem.
type PathLocator struct{}

// FindAll implements Locator. A directory listed twice is searched once.
func (PathLocator) FindAll(name string, dirs []string) []string {
	seen := make(map[string]bool)
	var found []string
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		dir = filepath.Clean(dir)
		if seen[dir] {
			continue
		}
		seen[dir] = true

		candidate := filepath.Join(dir, name)
		if pkgmgr.IsExecutable(candidate) {
			found = append(found, candidate)
		}
	}
	return found
}

// sameFile reports whether every path refers to one file once symlinks are
// followed.
func sameFile(paths []string) bool {
	if len(paths) < 2 {
		return len(paths) == 1
	}
	first, err := os.Stat(paths[0])
	if err != nil {
		return false
	}
	for _, p := range paths[1:] {
		info, err := os.Stat(p)
		if err != nil || !os.SameFile(first, info) {
			return false
		}
	}
	return true
}

// ownedBy reports whether path belongs to prefix: it sits under prefix and
// under no longer prefix from others nested inside it.
func ownedBy(path, prefix string, others []string) bool {
	if !underPrefix(path, prefix) {
		return false
	}
	prefix = filepath.Clean(prefix)
	for _, o := range others {
		o = filepath.Clean(o)
		if len(o) > len(prefix) && underPrefix(o, prefix) && underPrefix(path, o) {
			return false
		}
	}
	return true
}

func underPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(filepath.Clean(prefix), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
