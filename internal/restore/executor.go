// Package restore reconstructs local state from a validated remote snapshot.
package restore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tailfold/snapsync/internal/archive"
	"github.com/tailfold/snapsync/internal/db"
	"github.com/tailfold/snapsync/internal/fsutil"
	"github.com/tailfold/snapsync/internal/snapshot"
	"github.com/tailfold/snapsync/internal/storage"
	"github.com/tailfold/snapsync/internal/util"
)

// Executor downloads a validated snapshot and replaces local paths and
// databases with its contents. Paths keep the ownership they had before the
// restore; the archive itself carries none.
type Executor struct {
	Store  storage.Store
	Bucket string
	// DB is required only when databases end up in the restore set.
	DB db.Client
	// AllowedRoot, when set, confines restorable paths.
	AllowedRoot   string
	EncryptionKey []byte
	Log           zerolog.Logger
}

// Run restores paths and databases from the archive at archiveKey. An empty
// database list is derived from the bundle's .sql files, so the restore set
// is always concrete even when backup-time configuration changed. The hook
// command, when non-empty, runs last.
func (e *Executor) Run(ctx context.Context, ws *snapshot.Workspace, archiveKey string, paths, databases []string, hook string) error {
	// Guard every path before the first destructive step, not one by one.
	for _, p := range paths {
		if err := fsutil.CheckRestorePath(p, e.AllowedRoot); err != nil {
			return err
		}
	}

	local, err := e.download(ctx, archiveKey, ws)
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	e.Log.Info().Str("archive", filepath.Base(local)).Msg("unpacking snapshot")
	if err := archive.Unpack(local, ws.BundleDir, e.EncryptionKey); err != nil {
		return fmt.Errorf("unpack snapshot: %w", err)
	}

	for _, p := range paths {
		if err := e.restorePath(p, ws); err != nil {
			return err
		}
	}

	if len(databases) == 0 {
		databases, err = dumpedDatabases(ws.BundleDir)
		if err != nil {
			return err
		}
	}
	for _, name := range databases {
		if err := e.restoreDatabase(ctx, name, ws); err != nil {
			return err
		}
	}

	if hook != "" {
		e.Log.Info().Str("hook", hook).Msg("running post-restore hook")
		if out, err := util.Command(ctx, hook, nil, nil).CombinedOutput(); err != nil {
			return fmt.Errorf("post-restore hook: %w: %s", err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

func (e *Executor) download(ctx context.Context, archiveKey string, ws *snapshot.Workspace) (string, error) {
	reader, err := e.Store.Get(ctx, e.Bucket, archiveKey)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	local := ws.ArchivePath(path.Base(archiveKey))
	out, err := os.OpenFile(local, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return "", err
	}
	return local, out.Close()
}

func (e *Executor) restorePath(target string, ws *snapshot.Workspace) error {
	staged := filepath.Join(ws.BundleDir, target)
	if _, err := os.Stat(staged); err != nil {
		return fmt.Errorf("bundle does not contain %s: %w", target, err)
	}

	if _, err := os.Stat(target); os.IsNotExist(err) {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
	}
	// Record ownership before any mutation; the restore must reproduce it.
	uid, gid, err := fsutil.Owner(target)
	if err != nil {
		return fmt.Errorf("read ownership of %s: %w", target, err)
	}

	e.Log.Info().Str("path", target).Msg("restoring path")
	if err := fsutil.RemoveContents(target); err != nil {
		return fmt.Errorf("clear %s: %w", target, err)
	}
	if err := fsutil.MoveContents(staged, target); err != nil {
		return fmt.Errorf("move restored files into %s: %w", target, err)
	}
	if err := fsutil.ChownTree(target, uid, gid); err != nil {
		return fmt.Errorf("restore ownership of %s: %w", target, err)
	}
	return nil
}

func (e *Executor) restoreDatabase(ctx context.Context, name string, ws *snapshot.Workspace) error {
	if e.DB == nil {
		return fmt.Errorf("restore database %s: no database credentials configured", name)
	}
	dump := filepath.Join(ws.BundleDir, name+".sql")
	if _, err := os.Stat(dump); err != nil {
		return fmt.Errorf("bundle does not contain a dump for %s: %w", name, err)
	}

	e.Log.Info().Str("database", name).Msg("restoring database")
	if err := e.DB.Drop(ctx, name); err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	if err := e.DB.Create(ctx, name); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	if err := e.DB.Load(ctx, name, dump); err != nil {
		return fmt.Errorf("load database %s: %w", name, err)
	}
	return nil
}

// dumpedDatabases derives the restore set from the dump files at the bundle
// root. Deeper .sql files belong to path subtrees and are not dumps.
func dumpedDatabases(bundleDir string) ([]string, error) {
	entries, err := os.ReadDir(bundleDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".sql"))
	}
	return names, nil
}
