// Package archive packs one snapshot workspace into a single compressed tar
// bundle and unpacks it again. The bundle layout is the externally observable
// snapshot format: `<database>.sql` files plus one mirrored subtree per
// backed-up path, all relative to the bundle root.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailfold/snapsync/internal/cryptoutil"
)

const baseName = "backup.tar"

// Name returns the archive file name for the given compression and
// encryption settings, e.g. "backup.tar.gz" or "backup.tar.zst.enc".
func Name(compression string, encrypted bool) string {
	name := baseName
	switch compression {
	case TypeGzip:
		name += ".gz"
	case TypeZstd:
		name += ".zst"
	}
	if encrypted {
		name += ".enc"
	}
	return name
}

// IsBundle reports whether key names a snapshot archive.
func IsBundle(name string) bool {
	return strings.HasPrefix(filepath.Base(name), baseName)
}

func compressionFromName(name string) (compression string, encrypted bool, err error) {
	trimmed := filepath.Base(name)
	if strings.HasSuffix(trimmed, ".enc") {
		encrypted = true
		trimmed = strings.TrimSuffix(trimmed, ".enc")
	}
	switch {
	case strings.HasSuffix(trimmed, ".tar.gz"):
		return TypeGzip, encrypted, nil
	case strings.HasSuffix(trimmed, ".tar.zst"):
		return TypeZstd, encrypted, nil
	case strings.HasSuffix(trimmed, ".tar"):
		return TypeNone, encrypted, nil
	default:
		return "", false, fmt.Errorf("unrecognized archive name: %s", name)
	}
}

// Pack writes the full contents of dir into a single archive at dest.
// key, when non-nil, encrypts the stream.
func Pack(dir, dest, compression string, key []byte) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	var sink io.Writer = out
	closers := []io.Closer{}
	if key != nil {
		enc, err := cryptoutil.EncryptWriter(sink, key)
		if err != nil {
			return fmt.Errorf("encrypt archive: %w", err)
		}
		sink = enc
		closers = append(closers, enc)
	}
	comp, err := wrapWriter(compression, sink)
	if err != nil {
		return err
	}
	closers = append(closers, comp)

	tw := tar.NewWriter(comp)
	if err := writeTree(tw, dir); err != nil {
		tw.Close()
		return err
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			return fmt.Errorf("finalize archive: %w", err)
		}
	}
	return out.Close()
}

func writeTree(tw *tar.Writer, dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		file, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, file)
		file.Close()
		return err
	})
}

// Unpack extracts the archive at src into dir. Compression and encryption
// are inferred from the file name; key must be non-nil for encrypted
// archives. Entry names are validated so a crafted archive cannot write
// outside dir.
func Unpack(src, dir string, key []byte) error {
	compression, encrypted, err := compressionFromName(src)
	if err != nil {
		return err
	}
	if encrypted && key == nil {
		return fmt.Errorf("archive %s is encrypted but no key was provided", filepath.Base(src))
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	var payload io.Reader = in
	if encrypted {
		if payload, err = cryptoutil.DecryptReader(payload, key); err != nil {
			return fmt.Errorf("decrypt archive: %w", err)
		}
	}
	comp, err := wrapReader(compression, payload)
	if err != nil {
		return err
	}
	defer comp.Close()

	tr := tar.NewReader(comp)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		target, err := securePath(dir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			// Hard links, devices and the like never appear in bundles
			// we produce.
		}
	}
}

func securePath(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("archive entry escapes extraction dir: %s", name)
	}
	return filepath.Join(dir, clean), nil
}
