package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailfold/snapsync/internal/snapshot"
	"github.com/tailfold/snapsync/internal/util"
)

// Replicator publishes one archive to every region and re-points each
// region's latest alias at it. Regions are sequential and independent: a
// failed region is reported but does not block the others.
type Replicator struct {
	Service      string
	Regions      []RegionStore
	RetryCount   int
	RetryBackoff time.Duration
	Log          zerolog.Logger
}

// Publish uploads archivePath under `<id>/` in each region's bucket, then
// deletes the latest alias and re-copies the fresh snapshot into it. The
// delete-then-copy order means a crash in between surfaces as an absent
// alias, never as a silently stale pointer.
func (r *Replicator) Publish(ctx context.Context, id snapshot.ID, archivePath string) error {
	key := id.String() + "/" + filepath.Base(archivePath)

	var failed []error
	for _, region := range r.Regions {
		bucket := Bucket(r.Service, region.Region.Label)
		log := r.Log.With().Str("region", region.Region.Label).Str("endpoint", region.Region.Endpoint).Str("bucket", bucket).Logger()

		if err := r.publishOne(ctx, region, bucket, id, key, archivePath); err != nil {
			log.Error().Err(err).Msg("region publish failed")
			failed = append(failed, fmt.Errorf("region %s: %w", region.Region.Label, err))
			continue
		}
		log.Info().Str("snapshot", id.String()).Msg("snapshot published")
	}
	return errors.Join(failed...)
}

func (r *Replicator) publishOne(ctx context.Context, region RegionStore, bucket string, id snapshot.ID, key, archivePath string) error {
	err := util.Retry(ctx, r.RetryCount, r.RetryBackoff, func() error {
		file, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer file.Close()
		info, err := file.Stat()
		if err != nil {
			return err
		}
		return region.Store.Put(ctx, bucket, key, file, info.Size())
	})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	if err := region.Store.RemovePrefix(ctx, bucket, snapshot.LatestAlias+"/"); err != nil {
		return fmt.Errorf("clear latest alias: %w", err)
	}
	if err := region.Store.CopyPrefix(ctx, bucket, id.String()+"/", snapshot.LatestAlias+"/"); err != nil {
		return fmt.Errorf("repoint latest alias: %w", err)
	}
	return nil
}
