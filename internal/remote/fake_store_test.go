package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tailfold/snapsync/internal/storage"
)

// fakeStore is an in-memory Store keyed by bucket. It records every mutating
// call so tests can assert protocol ordering.
type fakeStore struct {
	buckets map[string]map[string][]byte
	ops     []string
	// failRemove makes RemovePrefix fail for prefixes in the set.
	failRemove map[string]bool
	failPut    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{buckets: map[string]map[string][]byte{}, failRemove: map[string]bool{}}
}

func (f *fakeStore) bucket(name string) map[string][]byte {
	if f.buckets[name] == nil {
		f.buckets[name] = map[string][]byte{}
	}
	return f.buckets[name]
}

func (f *fakeStore) Put(_ context.Context, bucket, key string, reader io.Reader, _ int64) error {
	if f.failPut {
		return fmt.Errorf("injected put failure")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.bucket(bucket)[key] = data
	f.ops = append(f.ops, "put "+bucket+"/"+key)
	return nil
}

func (f *fakeStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := f.bucket(bucket)[key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s/%s", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) List(_ context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	infos := []storage.ObjectInfo{}
	for key, data := range f.bucket(bucket) {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(data)), Modified: time.Now()})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (f *fakeStore) TopLevel(_ context.Context, bucket string) ([]string, error) {
	seen := map[string]bool{}
	for key := range f.bucket(bucket) {
		if i := strings.Index(key, "/"); i > 0 {
			seen[key[:i]] = true
		}
	}
	prefixes := make([]string, 0, len(seen))
	for p := range seen {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

func (f *fakeStore) RemovePrefix(_ context.Context, bucket, prefix string) error {
	if f.failRemove[prefix] {
		return fmt.Errorf("injected remove failure for %s", prefix)
	}
	for key := range f.bucket(bucket) {
		if strings.HasPrefix(key, prefix) {
			delete(f.bucket(bucket), key)
		}
	}
	f.ops = append(f.ops, "remove "+bucket+"/"+prefix)
	return nil
}

func (f *fakeStore) CopyPrefix(_ context.Context, bucket, srcPrefix, dstPrefix string) error {
	b := f.bucket(bucket)
	copied := map[string][]byte{}
	for key, data := range b {
		if strings.HasPrefix(key, srcPrefix) {
			copied[dstPrefix+strings.TrimPrefix(key, srcPrefix)] = data
		}
	}
	for key, data := range copied {
		b[key] = data
	}
	f.ops = append(f.ops, "copy "+bucket+"/"+srcPrefix+" -> "+dstPrefix)
	return nil
}

var _ storage.Store = (*fakeStore)(nil)
