// Package app sequences the snapshot lifecycle per invocation mode and owns
// the working-directory lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailfold/snapsync/internal/config"
	"github.com/tailfold/snapsync/internal/cryptoutil"
	"github.com/tailfold/snapsync/internal/db"
	"github.com/tailfold/snapsync/internal/lock"
	"github.com/tailfold/snapsync/internal/notify"
	"github.com/tailfold/snapsync/internal/remote"
	"github.com/tailfold/snapsync/internal/restore"
	"github.com/tailfold/snapsync/internal/snapshot"
	"github.com/tailfold/snapsync/internal/storage"
)

// Dialer opens a store against one region endpoint.
type Dialer func(endpoint string) (storage.Store, error)

type App struct {
	Cfg *config.Config
	Env string
	// DB is nil when no database credentials are configured.
	DB       db.Client
	Dial     Dialer
	Log      zerolog.Logger
	Notifier notify.Notifier
}

func New(cfg *config.Config, env string, dbClient db.Client, dial Dialer, log zerolog.Logger, notifier notify.Notifier) *App {
	return &App{Cfg: cfg, Env: env, DB: dbClient, Dial: dial, Log: log, Notifier: notifier}
}

// Backup builds a snapshot bundle, publishes it to every region and prunes
// expired snapshots. The workspace is removed on every exit path.
func (a *App) Backup(ctx context.Context) (id snapshot.ID, err error) {
	start := time.Now()
	defer a.notify("backup", start, func() (string, error) { return id.String(), err })

	guard, lockErr := lock.Acquire(a.Cfg.Global.LockFile)
	if lockErr != nil {
		err = lockErr
		return "", err
	}
	defer guard.Release()

	key, err := a.encryptionKey()
	if err != nil {
		return "", err
	}

	id = snapshot.NewID(start)
	a.Log.Info().Str("snapshot", id.String()).Str("env", a.Env).Msg("starting backup")

	ws, err := snapshot.NewWorkspace(a.Cfg.Global.WorkDir, id)
	if err != nil {
		return "", err
	}
	defer a.teardown(ws)

	builder := &snapshot.Builder{
		DB:            a.DB,
		Compression:   a.Cfg.Backup.Compression,
		EncryptionKey: encryptIf(a.Cfg.Backup.Encryption, key),
		Log:           a.Log,
	}
	databases, err := builder.ResolveDatabases(ctx, a.Cfg.Backup.Databases)
	if err != nil {
		return "", err
	}
	archivePath, err := builder.Build(ctx, ws, databases, a.Cfg.Backup.Paths)
	if err != nil {
		return "", err
	}

	regions, err := a.regionStores()
	if err != nil {
		return "", err
	}
	replicator := &remote.Replicator{
		Service:      a.Cfg.Service.Name,
		Regions:      regions,
		RetryCount:   a.Cfg.Backup.RetryCount,
		RetryBackoff: a.Cfg.Backup.RetryBackoff,
		Log:          a.Log,
	}
	publishErr := replicator.Publish(ctx, id, archivePath)

	pruner := &remote.Pruner{
		Service: a.Cfg.Service.Name,
		Regions: regions,
		Window:  time.Duration(a.Cfg.Backup.RetentionDays) * 24 * time.Hour,
		Log:     a.Log,
	}
	pruner.Prune(ctx, start)

	err = publishErr
	return id, err
}

// Restore validates the requested restore point against the primary region
// and only then mutates local state. A rejected restore point performs no
// side effects, not even workspace creation.
func (a *App) Restore(ctx context.Context, requested, hook string) (err error) {
	start := time.Now()
	defer a.notify("restore", start, func() (string, error) { return requested, err })

	primary, bucket, store, dialErr := a.primary()
	if dialErr != nil {
		err = dialErr
		return err
	}

	selector := remote.Selector{Store: store, Bucket: bucket}
	archiveKey, err := selector.Resolve(ctx, requested)
	if err != nil {
		return err
	}
	a.Log.Info().Str("snapshot", requested).Str("region", primary.Label).Msg("restore point validated")

	key, err := a.encryptionKey()
	if err != nil {
		return err
	}

	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		return err
	}
	defer guard.Release()

	ws, err := snapshot.NewWorkspace(a.Cfg.Global.WorkDir, snapshot.NewID(start))
	if err != nil {
		return err
	}
	defer a.teardown(ws)

	if hook == "" {
		hook = a.Cfg.Restore.Hook
	}
	executor := &restore.Executor{
		Store:         store,
		Bucket:        bucket,
		DB:            a.DB,
		AllowedRoot:   a.Cfg.Restore.AllowedRoot,
		EncryptionKey: key,
		Log:           a.Log,
	}
	err = executor.Run(ctx, ws, archiveKey, a.Cfg.Backup.Paths, a.Cfg.Backup.Databases, hook)
	return err
}

// Show lists the available restore points in the environment's primary
// region. Pure read, safe to repeat.
func (a *App) Show(ctx context.Context) ([]string, error) {
	_, bucket, store, err := a.primary()
	if err != nil {
		return nil, err
	}
	catalog := remote.Catalog{Store: store, Bucket: bucket}
	return catalog.List(ctx)
}

func (a *App) regionStores() ([]remote.RegionStore, error) {
	regions := remote.RegionsFor(a.Env, a.Cfg.S3.Endpoints)
	stores := make([]remote.RegionStore, 0, len(regions))
	for _, region := range regions {
		store, err := a.Dial(region.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("dial region %s: %w", region.Label, err)
		}
		stores = append(stores, remote.RegionStore{Region: region, Store: store})
	}
	return stores, nil
}

func (a *App) primary() (remote.Region, string, storage.Store, error) {
	region := remote.PrimaryFor(a.Env, a.Cfg.S3.Endpoints)
	store, err := a.Dial(region.Endpoint)
	if err != nil {
		return remote.Region{}, "", nil, fmt.Errorf("dial region %s: %w", region.Label, err)
	}
	return region, remote.Bucket(a.Cfg.Service.Name, region.Label), store, nil
}

func (a *App) encryptionKey() ([]byte, error) {
	if a.Cfg.Backup.EncryptionKey == "" {
		if a.Cfg.Backup.Encryption {
			return nil, fmt.Errorf("%w: backup.encryption is enabled but backup.encryption_key is empty", config.ErrMissingSetting)
		}
		return nil, nil
	}
	return cryptoutil.ParseKey(a.Cfg.Backup.EncryptionKey)
}

func encryptIf(enabled bool, key []byte) []byte {
	if !enabled {
		return nil
	}
	return key
}

func (a *App) teardown(ws *snapshot.Workspace) {
	if err := ws.Remove(); err != nil {
		a.Log.Warn().Err(err).Str("workspace", ws.Base).Msg("workspace cleanup failed")
		return
	}
	a.Log.Debug().Str("workspace", ws.Base).Msg("workspace removed")
}

func (a *App) notify(mode string, start time.Time, outcome func() (string, error)) {
	if a.Notifier == nil {
		return
	}
	snapshotName, err := outcome()
	event := notify.Event{
		Mode:        mode,
		Environment: a.Env,
		Status:      statusFromErr(err),
		Service:     a.Cfg.Service.Name,
		Snapshot:    snapshotName,
		StartedAt:   start,
		EndedAt:     time.Now(),
		Duration:    time.Since(start).String(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	if nerr := a.Notifier.Notify(context.Background(), event); nerr != nil {
		a.Log.Warn().Err(nerr).Msg("notification failed")
	}
}

func statusFromErr(err error) string {
	if err == nil {
		return "success"
	}
	return "failed"
}
