package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// CheckRestorePath rejects targets that must never reach a destructive
// removal: empty paths, relative paths, the filesystem root, and (when
// allowedRoot is set) anything outside it. The path is cleaned first so
// "/var/www/.." style inputs cannot slip past.
func CheckRestorePath(path, allowedRoot string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("refusing to restore into empty path")
	}
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		return fmt.Errorf("refusing to restore into relative path %q", path)
	}
	if clean == string(filepath.Separator) {
		return fmt.Errorf("refusing to restore into filesystem root")
	}
	if allowedRoot != "" {
		root := filepath.Clean(allowedRoot)
		if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return fmt.Errorf("refusing to restore into %q: outside allowed root %q", path, allowedRoot)
		}
	}
	return nil
}

// Owner returns the uid and gid owning path.
func Owner(path string) (uid, gid int, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, fmt.Errorf("ownership metadata unavailable for %s", path)
	}
	return int(st.Uid), int(st.Gid), nil
}

// ChownTree applies uid:gid to path and everything below it.
func ChownTree(path string, uid, gid int) error {
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			return os.Lchown(p, uid, gid)
		}
		return os.Chown(p, uid, gid)
	})
}

// RemoveContents deletes everything inside dir but keeps dir itself, so its
// ownership and mode survive the restore.
func RemoveContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// CopyTree mirrors the subtree at src into dst, preserving relative
// structure, modes and symlinks.
func CopyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyEntry(src, dst, info)
	}
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyEntry(p, target, fi)
	})
}

func copyEntry(src, dst string, info os.FileInfo) error {
	switch {
	case info.IsDir():
		return os.MkdirAll(dst, info.Mode().Perm())
	case info.Mode()&os.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return os.Symlink(link, dst)
	case info.Mode().IsRegular():
		return copyFile(src, dst, info.Mode().Perm())
	default:
		// Sockets, devices and the like have no place in a snapshot.
		return nil
	}
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// MoveContents moves every entry of srcDir into dstDir. Rename is tried
// first; a cross-device move falls back to copy and delete.
func MoveContents(srcDir, dstDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		src := filepath.Join(srcDir, entry.Name())
		dst := filepath.Join(dstDir, entry.Name())
		if err := os.Rename(src, dst); err == nil {
			continue
		}
		if err := CopyTree(src, dst); err != nil {
			return err
		}
		if err := os.RemoveAll(src); err != nil {
			return err
		}
	}
	return nil
}
