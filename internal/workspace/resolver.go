// Package workspace maps app ids and repo-relative paths to on-disk
// locations under a single apps root directory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// appIDRe restricts app ids to names that are safe as directory names.
var appIDRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Resolver resolves app directories under a fixed root.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver rooted at root.
func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// DefaultRoot returns ~/blaze-apps.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, "blaze-apps"), nil
}

// AppDir returns the working directory for an app id.
func (r *Resolver) AppDir(appID string) (string, error) {
	if !appIDRe.MatchString(appID) {
		return "", fmt.Errorf("invalid app id %q", appID)
	}
	return filepath.Join(r.root, appID), nil
}

// Resolve maps a normalized repo-relative path to an absolute location
// inside the app directory. Paths that would escape the app directory
// are rejected.
func (r *Resolver) Resolve(appID, relPath string) (string, error) {
	dir, err := r.AppDir(appID)
	if err != nil {
		return "", err
	}
	if relPath == "" {
		return "", fmt.Errorf("empty path")
	}
	abs := filepath.Join(dir, filepath.FromSlash(relPath))
	if abs != dir && !strings.HasPrefix(abs, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes app directory", relPath)
	}
	return abs, nil
}
