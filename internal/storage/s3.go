package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options carries everything needed to dial one region endpoint.
type S3Options struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	SigningRegion   string
	UseSSL          bool
	ForcePathStyle  bool
	TLSInsecureSkip bool
}

type S3 struct {
	Client *minio.Client
}

func NewS3(opts S3Options) (*S3, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.TLSInsecureSkip {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.SigningRegion,
		Transport: transport,
		BucketLookup: func() minio.BucketLookupType {
			if opts.ForcePathStyle {
				return minio.BucketLookupPath
			}
			return minio.BucketLookupDNS
		}(),
	})
	if err != nil {
		return nil, err
	}
	return &S3{Client: client}, nil
}

func (s *S3) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64) error {
	_, err := s.Client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{})
	return err
}

func (s *S3) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *S3) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	ch := s.Client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	infos := []ObjectInfo{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, obj.Err
		}
		infos = append(infos, ObjectInfo{Key: obj.Key, Size: obj.Size, Modified: obj.LastModified})
	}
	return infos, nil
}

func (s *S3) TopLevel(ctx context.Context, bucket string) ([]string, error) {
	ch := s.Client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: false})
	prefixes := []string{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, "/") {
			prefixes = append(prefixes, strings.TrimSuffix(obj.Key, "/"))
		}
	}
	return prefixes, nil
}

func (s *S3) RemovePrefix(ctx context.Context, bucket, prefix string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	go func() {
		defer close(objects)
		for obj := range s.Client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr <- obj.Err
				return
			}
			select {
			case objects <- obj:
			case <-ctx.Done():
				listErr <- ctx.Err()
				return
			}
		}
		listErr <- nil
	}()

	// Drain the remove results fully so the feeder always unblocks; the
	// first failure cancels the listing and wins over the cancellation
	// error it induces.
	var removeErr error
	for rmErr := range s.Client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		if rmErr.Err != nil && removeErr == nil {
			removeErr = fmt.Errorf("remove %s: %w", rmErr.ObjectName, rmErr.Err)
			cancel()
		}
	}
	if err := <-listErr; removeErr == nil {
		return err
	}
	return removeErr
}

func (s *S3) CopyPrefix(ctx context.Context, bucket, srcPrefix, dstPrefix string) error {
	infos, err := s.List(ctx, bucket, srcPrefix)
	if err != nil {
		return err
	}
	for _, info := range infos {
		dstKey := dstPrefix + strings.TrimPrefix(info.Key, srcPrefix)
		_, err := s.Client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: bucket, Object: dstKey},
			minio.CopySrcOptions{Bucket: bucket, Object: info.Key})
		if err != nil {
			return fmt.Errorf("copy %s to %s: %w", info.Key, dstKey, err)
		}
	}
	return nil
}

var _ Store = (*S3)(nil)
