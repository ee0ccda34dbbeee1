package restore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailfold/snapsync/internal/archive"
	"github.com/tailfold/snapsync/internal/snapshot"
	"github.com/tailfold/snapsync/internal/storage"
)

// objectStore serves one archive from memory.
type objectStore struct {
	key  string
	data []byte
}

func (o *objectStore) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	if key != o.key {
		return nil, fmt.Errorf("no such key: %s", key)
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (o *objectStore) Put(context.Context, string, string, io.Reader, int64) error { return nil }

func (o *objectStore) List(context.Context, string, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (o *objectStore) TopLevel(context.Context, string) ([]string, error) { return nil, nil }

func (o *objectStore) RemovePrefix(context.Context, string, string) error { return nil }

func (o *objectStore) CopyPrefix(context.Context, string, string, string) error { return nil }

// recordingDB records the order of database operations.
type recordingDB struct {
	calls []string
	fail  map[string]error
}

func (r *recordingDB) record(op, name string) error {
	r.calls = append(r.calls, op+" "+name)
	if err := r.fail[op+" "+name]; err != nil {
		return err
	}
	return nil
}

func (r *recordingDB) ListDatabases(context.Context) ([]string, error) { return nil, nil }
func (r *recordingDB) Dump(_ context.Context, name, _ string) error    { return r.record("dump", name) }
func (r *recordingDB) Drop(_ context.Context, name string) error       { return r.record("drop", name) }
func (r *recordingDB) Create(_ context.Context, name string) error     { return r.record("create", name) }
func (r *recordingDB) Load(_ context.Context, name, _ string) error    { return r.record("load", name) }

// buildBundle packs a bundle containing one dump and one mirrored target
// subtree, and returns the archive bytes.
func buildBundle(t *testing.T, target string) []byte {
	t.Helper()
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "wordpress.sql"), []byte("INSERT INTO wp_posts;"), 0o600); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	staged := filepath.Join(src, target)
	if err := os.MkdirAll(staged, 0o755); err != nil {
		t.Fatalf("mkdir staged: %v", err)
	}
	if err := os.WriteFile(filepath.Join(staged, "index.php"), []byte("<?php // restored"), 0o644); err != nil {
		t.Fatalf("write staged: %v", err)
	}

	out := filepath.Join(t.TempDir(), archive.Name(archive.TypeGzip, false))
	if err := archive.Pack(src, out, archive.TypeGzip, nil); err != nil {
		t.Fatalf("pack: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	return data
}

func newWorkspace(t *testing.T) *snapshot.Workspace {
	t.Helper()
	ws, err := snapshot.NewWorkspace(t.TempDir(), snapshot.NewID(time.Now()))
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	return ws
}

func TestRunReplacesPathAndRestoresDerivedDatabases(t *testing.T) {
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(target, "stale.php"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write stale: %v", err)
	}

	store := &objectStore{key: "latest/backup.tar.gz", data: buildBundle(t, target)}
	dbRec := &recordingDB{}
	exec := &Executor{Store: store, Bucket: "wordpress-backup-primary", DB: dbRec, Log: zerolog.Nop()}

	err := exec.Run(context.Background(), newWorkspace(t), "latest/backup.tar.gz", []string{target}, nil, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, "stale.php")); !os.IsNotExist(err) {
		t.Fatalf("stale content should be gone")
	}
	data, err := os.ReadFile(filepath.Join(target, "index.php"))
	if err != nil {
		t.Fatalf("restored file missing: %v", err)
	}
	if string(data) != "<?php // restored" {
		t.Fatalf("unexpected content: %q", data)
	}

	want := []string{"drop wordpress", "create wordpress", "load wordpress"}
	if len(dbRec.calls) != len(want) {
		t.Fatalf("unexpected db calls: %v", dbRec.calls)
	}
	for i := range want {
		if dbRec.calls[i] != want[i] {
			t.Fatalf("db call %d = %q, want %q", i, dbRec.calls[i], want[i])
		}
	}
}

func TestRunRefusesRootPath(t *testing.T) {
	store := &objectStore{}
	exec := &Executor{Store: store, Bucket: "b", Log: zerolog.Nop()}

	for _, path := range []string{"/", ""} {
		err := exec.Run(context.Background(), newWorkspace(t), "latest/backup.tar.gz", []string{path}, nil, "")
		if err == nil {
			t.Fatalf("expected refusal for %q", path)
		}
	}
}

func TestRunGuardsBeforeDownload(t *testing.T) {
	// The store would fail any download; a guard rejection must come first.
	store := &objectStore{key: "other", data: nil}
	exec := &Executor{Store: store, Bucket: "b", Log: zerolog.Nop()}
	err := exec.Run(context.Background(), newWorkspace(t), "latest/backup.tar.gz", []string{"/"}, nil, "")
	if err == nil || !strings.Contains(err.Error(), "refusing to restore") {
		t.Fatalf("expected guard error, got %v", err)
	}
}

func TestRunDatabaseFailureAbortsRemainder(t *testing.T) {
	target := t.TempDir()
	store := &objectStore{key: "latest/backup.tar.gz", data: buildBundle(t, target)}
	dbRec := &recordingDB{fail: map[string]error{"create wordpress": fmt.Errorf("server gone")}}
	exec := &Executor{Store: store, Bucket: "b", DB: dbRec, Log: zerolog.Nop()}

	err := exec.Run(context.Background(), newWorkspace(t), "latest/backup.tar.gz", nil, nil, "")
	if err == nil || !strings.Contains(err.Error(), "wordpress") {
		t.Fatalf("expected error naming the database, got %v", err)
	}
	for _, call := range dbRec.calls {
		if call == "load wordpress" {
			t.Fatalf("load should not run after create failed")
		}
	}
}

func TestRunOwnershipPreserved(t *testing.T) {
	target := t.TempDir()
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	wantMode := info.Mode()

	store := &objectStore{key: "latest/backup.tar.gz", data: buildBundle(t, target)}
	exec := &Executor{Store: store, Bucket: "b", DB: &recordingDB{}, Log: zerolog.Nop()}
	if err := exec.Run(context.Background(), newWorkspace(t), "latest/backup.tar.gz", []string{target}, nil, ""); err != nil {
		t.Fatalf("run: %v", err)
	}

	after, err := os.Stat(target)
	if err != nil {
		t.Fatalf("target dir must survive the restore: %v", err)
	}
	if after.Mode() != wantMode {
		t.Fatalf("target dir mode changed: %v -> %v", wantMode, after.Mode())
	}
}

func TestRunPostRestoreHook(t *testing.T) {
	target := t.TempDir()
	marker := filepath.Join(t.TempDir(), "marker")
	hook := filepath.Join(t.TempDir(), "hook.sh")
	script := "#!/bin/sh\ntouch " + marker + "\n"
	if err := os.WriteFile(hook, []byte(script), 0o755); err != nil {
		t.Fatalf("write hook: %v", err)
	}

	store := &objectStore{key: "latest/backup.tar.gz", data: buildBundle(t, target)}
	exec := &Executor{Store: store, Bucket: "b", DB: &recordingDB{}, Log: zerolog.Nop()}
	if err := exec.Run(context.Background(), newWorkspace(t), "latest/backup.tar.gz", []string{target}, nil, hook); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
}
