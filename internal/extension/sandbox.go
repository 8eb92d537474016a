package extension

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// SandboxError is returned when an extension asks for a path outside its
// sandbox root. The request is rejected before any filesystem call is made.
type SandboxError struct {
	Requested string
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("path %q escapes the extension sandbox", e.Requested)
}

// Sandbox confines all extension file access to a single directory tree.
type Sandbox struct {
	root string
}

// NewSandbox creates a sandbox rooted at dir. The root is made absolute and
// canonicalized so containment checks compare symlink-free paths.
func NewSandbox(dir string) (*Sandbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	root, err := resolveExisting(filepath.Clean(abs))
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	return &Sandbox{root: root}, nil
}

// Root returns the canonical sandbox root directory.
func (s *Sandbox) Root() string { return s.root }

// Resolve maps an extension-supplied relative path to an absolute path under
// the sandbox root. Absolute paths are rejected outright; the rest is checked
// twice, lexically after cleaning and again after canonicalizing the existing
// part of the path, so a symlink planted inside the root cannot redirect file
// operations outside it.
func (s *Sandbox) Resolve(requested string) (string, error) {
	if requested == "" {
		return "", &SandboxError{Requested: requested}
	}
	if filepath.IsAbs(requested) || strings.HasPrefix(requested, "/") {
		return "", &SandboxError{Requested: requested}
	}

	joined := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(requested)))
	if !within(s.root, joined) {
		return "", &SandboxError{Requested: requested}
	}

	resolved, err := resolveExisting(joined)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", requested, err)
	}
	if !within(s.root, resolved) {
		return "", &SandboxError{Requested: requested}
	}
	return resolved, nil
}

// within reports whether path equals root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting canonicalizes the longest existing prefix of path and
// reattaches the remainder, so symlinks are followed even for paths that are
// about to be created.
func resolveExisting(path string) (string, error) {
	var suffix []string
	p := path
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{real}, suffix...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		suffix = append([]string{filepath.Base(p)}, suffix...)
		parent := filepath.Dir(p)
		if parent == p {
			return path, nil
		}
		p = parent
	}
}
