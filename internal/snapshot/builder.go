package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tailfold/snapsync/internal/archive"
	"github.com/tailfold/snapsync/internal/db"
	"github.com/tailfold/snapsync/internal/fsutil"
)

// Builder assembles a self-contained snapshot bundle from database dumps and
// filesystem subtrees. Any dump, copy or pack failure aborts the whole
// build; a partial bundle is never handed to the replicator.
type Builder struct {
	// DB is nil when no database credentials are configured; the builder
	// then runs in files-only mode.
	DB          db.Client
	Compression string
	// EncryptionKey, when non-nil, encrypts the bundle.
	EncryptionKey []byte
	Log           zerolog.Logger
}

// ResolveDatabases returns the set of databases to dump. An empty configured
// list is filled by asking the server and subtracting system schemas; without
// credentials the result is empty, even when a list is configured, and the
// backup proceeds files-only.
func (b *Builder) ResolveDatabases(ctx context.Context, configured []string) ([]string, error) {
	if b.DB == nil {
		if len(configured) > 0 {
			b.Log.Warn().Strs("databases", configured).Msg("databases configured but no database credentials available, files-only backup")
		} else {
			b.Log.Warn().Msg("no database credentials available, files-only backup")
		}
		return nil, nil
	}
	if len(configured) > 0 {
		return configured, nil
	}
	b.Log.Info().Msg("no databases configured, discovering from server")
	all, err := b.DB.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	databases := make([]string, 0, len(all))
	for _, name := range all {
		if db.IsSystemSchema(name) || name == "" {
			continue
		}
		b.Log.Info().Str("database", name).Msg("found database")
		databases = append(databases, name)
	}
	return databases, nil
}

// Build produces the bundle archive for the workspace's identifier and
// returns its local path.
func (b *Builder) Build(ctx context.Context, ws *Workspace, databases, paths []string) (string, error) {
	if len(databases) == 0 && len(paths) == 0 {
		return "", fmt.Errorf("nothing to back up: no databases and no paths configured")
	}
	if len(databases) > 0 && b.DB == nil {
		return "", fmt.Errorf("cannot dump databases without database credentials: %s", strings.Join(databases, ", "))
	}

	for _, name := range databases {
		dest := filepath.Join(ws.BundleDir, name+".sql")
		b.Log.Info().Str("database", name).Msg("dumping database")
		if err := b.DB.Dump(ctx, name, dest); err != nil {
			return "", fmt.Errorf("dump database %s: %w", name, err)
		}
	}

	for _, path := range paths {
		b.Log.Info().Str("path", path).Msg("copying path")
		// The subtree keeps its absolute location inside the bundle so
		// restore addresses it by the same path.
		dest := filepath.Join(ws.BundleDir, path)
		if err := fsutil.CopyTree(path, dest); err != nil {
			return "", fmt.Errorf("copy path %s: %w", path, err)
		}
	}

	name := archive.Name(b.Compression, b.EncryptionKey != nil)
	dest := ws.ArchivePath(name)
	b.Log.Info().Str("archive", name).Msg("compressing bundle")
	if err := archive.Pack(ws.BundleDir, dest, b.Compression, b.EncryptionKey); err != nil {
		return "", fmt.Errorf("compress bundle: %w", err)
	}
	return dest, nil
}
