package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the scoped local working area of one run: a base directory
// holding the archive plus one subdirectory, named by the snapshot
// identifier, that mirrors the bundle contents. It is created at run start
// and removed on every exit path.
type Workspace struct {
	ID ID
	// Base holds the archive file.
	Base string
	// BundleDir mirrors the bundle root (dumps and path subtrees).
	BundleDir string
}

// NewWorkspace creates the working directories for id under baseDir.
func NewWorkspace(baseDir string, id ID) (*Workspace, error) {
	bundleDir := filepath.Join(baseDir, id.String())
	if err := os.MkdirAll(bundleDir, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{ID: id, Base: baseDir, BundleDir: bundleDir}, nil
}

// ArchivePath returns the location of the named archive inside the
// workspace.
func (w *Workspace) ArchivePath(name string) string {
	return filepath.Join(w.Base, name)
}

// Remove tears the whole workspace down.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Base)
}
