// Package paths renders source paths relative to the audited workspace.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// CanonicalizePath converts an absolute path to a root-relative canonical
// path with forward slashes. Symlinks are resolved for the longest
// existing prefix of both paths.
func CanonicalizePath(absolutePath string, root string) (string, error) {
	resolved, err := resolve(absolutePath)
	if err != nil {
		return "", err
	}
	rootResolved, err := resolve(root)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func resolve(p string) (string, error) {
	r, err := filepath.EvalSymlinks(p)
	if err == nil {
		return r, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	dir := filepath.Dir(p)
	if dir == p {
		return p, nil
	}
	parent, err := resolve(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, filepath.Base(p)), nil
}

// IsWithinRoot checks if a path is inside root
func IsWithinRoot(path string, root string) bool {
	canonical, err := CanonicalizePath(path, root)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// Display returns path relative to root when it lies inside root, and the
// cleaned absolute path otherwise (registry sources, generated files).
func Display(path string, root string) string {
	if root == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	if IsWithinRoot(path, root) {
		if rel, err := CanonicalizePath(path, root); err == nil {
			return rel
		}
	}
	return filepath.ToSlash(filepath.Clean(path))
}
