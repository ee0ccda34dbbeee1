package remote

import (
	"context"
	"sort"

	"github.com/tailfold/snapsync/internal/storage"
)

// Catalog is the read-only view of available restore points in one bucket.
type Catalog struct {
	Store  storage.Store
	Bucket string
}

// List returns the bucket's top-level identifiers in lexicographic (equals
// chronological) order. The latest alias appears under its own name; callers
// must treat it as non-chronological.
func (c Catalog) List(ctx context.Context) ([]string, error) {
	prefixes, err := c.Store.TopLevel(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	sort.Strings(prefixes)
	return prefixes, nil
}
