// Package minio stores snapshot blobs in MinIO or any other S3 compatible
// server through the MinIO client.
package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"

	"simdex/blobstore"
)

// Store implements blobstore.Store on a MinIO bucket. Every key is placed
// below prefix.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewStore(client *minio.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *Store) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("minio put %s: %w", name, err)
	}
	return nil
}

// Get stats the object first; GetObject itself only fails on the first read.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.key(name)
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("minio get %s: %w", name, mapError(err))
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get %s: %w", name, mapError(err))
	}
	return obj, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.key(prefix)
	if strings.HasSuffix(prefix, "/") {
		full += "/"
	}

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    full,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio list %s: %w", prefix, obj.Err)
		}
		k := strings.TrimPrefix(strings.TrimPrefix(obj.Key, s.prefix), "/")
		if k != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && mapError(err) != blobstore.ErrNotFound {
		return fmt.Errorf("minio delete %s: %w", name, err)
	}
	return nil
}

func mapError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return blobstore.ErrNotFound
	}
	return err
}

var _ blobstore.Store = (*Store)(nil)
