package remote

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailfold/snapsync/internal/snapshot"
)

// Pruner deletes snapshots older than the retention window. It runs after
// the publish already succeeded, so everything here is best effort: a key
// that fails to delete is logged and the rest continue.
type Pruner struct {
	Service string
	Regions []RegionStore
	Window  time.Duration
	Log     zerolog.Logger
}

// Prune scans every region's bucket and removes expired snapshots. The
// latest alias and any key that does not parse as a snapshot identifier are
// left untouched.
func (p *Pruner) Prune(ctx context.Context, now time.Time) {
	for _, region := range p.Regions {
		bucket := Bucket(p.Service, region.Region.Label)
		log := p.Log.With().Str("region", region.Region.Label).Str("bucket", bucket).Logger()

		prefixes, err := region.Store.TopLevel(ctx, bucket)
		if err != nil {
			log.Warn().Err(err).Msg("retention scan failed")
			continue
		}
		for _, prefix := range prefixes {
			if prefix == snapshot.LatestAlias {
				continue
			}
			id, err := snapshot.ParseID(prefix)
			if err != nil {
				// Unrecognized objects are never deleted.
				log.Debug().Str("key", prefix).Msg("skipping unrecognized key")
				continue
			}
			if !id.OlderThan(now, p.Window) {
				continue
			}
			log.Info().Str("snapshot", id.String()).Msg("removing expired snapshot")
			if err := region.Store.RemovePrefix(ctx, bucket, id.String()+"/"); err != nil {
				log.Warn().Err(err).Str("snapshot", id.String()).Msg("retention delete failed")
			}
		}
	}
}
