package remote

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailfold/snapsync/internal/snapshot"
)

func seedSnapshots(store *fakeStore, bucket string, now time.Time, agesDays ...int) map[int]string {
	ids := map[int]string{}
	for _, age := range agesDays {
		id := snapshot.NewID(now.AddDate(0, 0, -age)).String()
		store.bucket(bucket)[id+"/backup.tar.gz"] = []byte("x")
		ids[age] = id
	}
	return ids
}

func TestPruneRespectsWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	bucket := "wordpress-backup-primary"
	ids := seedSnapshots(store, bucket, now, 5, 29, 30, 31, 100)
	store.bucket(bucket)["latest/backup.tar.gz"] = []byte("x")

	pruner := &Pruner{
		Service: "wordpress",
		Regions: []RegionStore{{Region: Region{Label: "primary"}, Store: store}},
		Window:  30 * 24 * time.Hour,
		Log:     zerolog.Nop(),
	}
	pruner.Prune(context.Background(), now)

	for _, age := range []int{5, 29, 30} {
		if _, ok := store.bucket(bucket)[ids[age]+"/backup.tar.gz"]; !ok {
			t.Fatalf("snapshot aged %dd should survive", age)
		}
	}
	for _, age := range []int{31, 100} {
		if _, ok := store.bucket(bucket)[ids[age]+"/backup.tar.gz"]; ok {
			t.Fatalf("snapshot aged %dd should be deleted", age)
		}
	}
	if _, ok := store.bucket(bucket)["latest/backup.tar.gz"]; !ok {
		t.Fatalf("latest alias must never be deleted")
	}
}

func TestPruneSkipsMalformedKeys(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	bucket := "wordpress-backup-primary"
	store.bucket(bucket)["not-a-timestamp/file"] = []byte("x")
	store.bucket(bucket)["20200101-9999/file"] = []byte("x")

	pruner := &Pruner{
		Service: "wordpress",
		Regions: []RegionStore{{Region: Region{Label: "primary"}, Store: store}},
		Window:  30 * 24 * time.Hour,
		Log:     zerolog.Nop(),
	}
	pruner.Prune(context.Background(), now)

	if len(store.bucket(bucket)) != 2 {
		t.Fatalf("unrecognized keys must never be deleted, left: %v", store.bucket(bucket))
	}
}

func TestPruneContinuesPastDeleteFailure(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	bucket := "wordpress-backup-primary"
	ids := seedSnapshots(store, bucket, now, 40, 50)
	store.failRemove[ids[40]+"/"] = true

	pruner := &Pruner{
		Service: "wordpress",
		Regions: []RegionStore{{Region: Region{Label: "primary"}, Store: store}},
		Window:  30 * 24 * time.Hour,
		Log:     zerolog.Nop(),
	}
	pruner.Prune(context.Background(), now)

	if _, ok := store.bucket(bucket)[ids[50]+"/backup.tar.gz"]; ok {
		t.Fatalf("second eligible snapshot should be deleted despite first failing")
	}
	if _, ok := store.bucket(bucket)[ids[40]+"/backup.tar.gz"]; !ok {
		t.Fatalf("failed delete should leave the snapshot in place")
	}
}
