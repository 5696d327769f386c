// Package storage persists crawl artifacts on the local filesystem.
//
// Artifacts are grouped by scope, one directory per crawled blog, so a
// multi-blog run never mixes files:
//
//	<root>/
//	├── default/
//	│   ├── comments_1069536298_507745.json
//	│   └── comments_formatted_1069536298_507745.txt
//	└── otherblog/
//	    └── ...
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned when a scope or file name would escape the
// artifact root.
var ErrUnsafePath = errors.New("path element escapes the artifact root")

// Dir writes artifacts beneath a single root directory.
//
// Design decision: Dir does not hold any open handles because:
// 1. Artifacts are small and written whole, so streaming buys nothing
// 2. Every write creates the scope directory on demand, which keeps
//    first-run and long-running behavior identical
// 3. A stateless value is safe to share across crawl workers as-is
type Dir struct {
	root string
}

// NewDir creates artifact storage rooted at the given directory.
// The directory itself is created lazily on the first write.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Write stores data as <root>/<scope>/<name>, creating the scope
// directory if needed and replacing any previous content. Files are
// written with owner-only permissions.
func (d *Dir) Write(scope, name string, data []byte) error {
	if err := checkPathElement(scope); err != nil {
		return fmt.Errorf("invalid scope %q: %w", scope, err)
	}
	if err := checkPathElement(name); err != nil {
		return fmt.Errorf("invalid artifact name %q: %w", name, err)
	}

	dir := filepath.Join(d.root, scope)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	return nil
}

// checkPathElement rejects values that would resolve outside the root.
// Scopes come from user config and artifact names embed API-supplied
// ids, so neither is trusted as a path.
func checkPathElement(s string) error {
	if s == "" || s == "." || s == ".." {
		return ErrUnsafePath
	}
	if strings.ContainsAny(s, `/\`) {
		return ErrUnsafePath
	}
	return nil
}
