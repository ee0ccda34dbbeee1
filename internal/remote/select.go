package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailfold/snapsync/internal/archive"
	"github.com/tailfold/snapsync/internal/snapshot"
	"github.com/tailfold/snapsync/internal/storage"
)

// ErrRestorePointNotFound marks a requested identifier with no remote
// snapshot behind it. Nothing destructive has happened when it is returned.
var ErrRestorePointNotFound = errors.New("restore point not found")

// Selector validates a requested restore point against the primary region
// before any local mutation happens.
type Selector struct {
	Store  storage.Store
	Bucket string
}

// Resolve checks that requested ("latest" or a concrete identifier) exists
// remotely and returns the key of its archive object.
func (s Selector) Resolve(ctx context.Context, requested string) (string, error) {
	if requested != snapshot.LatestAlias {
		if _, err := snapshot.ParseID(requested); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRestorePointNotFound, err)
		}
	}

	infos, err := s.Store.List(ctx, s.Bucket, requested+"/")
	if err != nil {
		return "", fmt.Errorf("list %s/%s: %w", s.Bucket, requested, err)
	}
	if len(infos) == 0 {
		return "", fmt.Errorf("%w: %s has no snapshot under %s", ErrRestorePointNotFound, s.Bucket, requested)
	}
	for _, info := range infos {
		if archive.IsBundle(info.Key) {
			return info.Key, nil
		}
	}
	return "", fmt.Errorf("snapshot %s contains no archive", requested)
}
