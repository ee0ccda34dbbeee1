// Package remote implements the snapshot publication protocol against the
// configured storage regions: replication, the latest alias, retention,
// restore-point validation and the catalog listing.
package remote

import (
	"fmt"

	"github.com/tailfold/snapsync/internal/config"
	"github.com/tailfold/snapsync/internal/storage"
)

// Region is a priority label bound to an endpoint. Each region owns an
// independent copy of every published snapshot plus its own latest alias.
type Region struct {
	Label    string
	Endpoint string
}

// RegionStore is a region with its dialed store.
type RegionStore struct {
	Region Region
	Store  storage.Store
}

// Bucket derives the bucket name owned by a region label.
func Bucket(service, label string) string {
	return fmt.Sprintf("%s-backup-%s", service, label)
}

// RegionsFor maps the environment onto its labeled regions. Dev regions get
// dev-suffixed labels so dev and prod never share a bucket. A missing
// secondary endpoint yields a single-region setup.
func RegionsFor(env string, eps config.RegionEndpoints) []Region {
	suffix := ""
	if env == config.EnvDev {
		suffix = "-dev"
	}
	regions := []Region{{Label: "primary" + suffix, Endpoint: eps.Primary}}
	if eps.Secondary != "" {
		regions = append(regions, Region{Label: "secondary" + suffix, Endpoint: eps.Secondary})
	}
	return regions
}

// PrimaryFor returns the environment's primary-equivalent region, the one
// restores and listings read from.
func PrimaryFor(env string, eps config.RegionEndpoints) Region {
	return RegionsFor(env, eps)[0]
}
