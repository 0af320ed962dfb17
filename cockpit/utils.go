package cockpit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/twinj/uuid"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// ConvertToAbsolute returns path unchanged if it's absolute, otherwise joined to
// the given base directory.  The base directory itself is made absolute.
func ConvertToAbsolute(path, baseDir string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("can't convert empty path to absolute path")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, path), nil
}

// FileExists returns true if path names an existing regular file.
func FileExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// WithinDir returns true if path, once cleaned, lies inside dir.
func WithinDir(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ResolvePath returns the absolute path of an existing file: path itself if
// absolute, else the first existing file found by joining path to each of dirs.
func ResolvePath(path string, dirs ...string) (string, bool) {
	if path == "" {
		return "", false
	}
	if filepath.IsAbs(path) {
		if FileExists(path) {
			return filepath.Clean(path), true
		}
		return "", false
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		p, err := ConvertToAbsolute(path, dir)
		if err == nil && FileExists(p) {
			return p, true
		}
	}
	return "", false
}

// NewUUID returns a random version 4 UUID string.
func NewUUID() string {
	return uuid.NewV4().String()
}

// ReplaceExt drops the last extension of path, then sets the remaining one
// (if any) to ext.  "meshes/pial_left.gii" and "meshes/pial_left.gii.gz"
// both become "meshes/pial_left.gltf".
func ReplaceExt(path, ext string) string {
	dir, base := filepath.Split(path)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return filepath.Clean(dir + base + ext)
}
