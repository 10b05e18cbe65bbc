// Package s3 keeps dataset archives in an S3-compatible bucket through the
// MinIO client.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/storage"
)

// bucketClient is the slice of the MinIO API the store needs, bound to
// storage types so tests can fake it.
type bucketClient interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, bucket, key string) error
	HasBucket(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

type Store struct {
	client bucketClient
	bucket string
	prefix string
}

func validateArchiveConfig(cfg config.ArchiveConfig) error {
	return validation.ValidateStruct(&cfg,
		validation.Field(&cfg.Endpoint, validation.Required.Error("archive endpoint is required")),
		validation.Field(&cfg.Bucket, validation.Required.Error("archive bucket is required"), validation.Length(3, 63)),
	)
}

// New connects to the archive bucket described by cfg, creating the bucket
// first when AutoCreateBucket is set.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Store, error) {
	const op errs.Op = "archive.New"
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if err := validateArchiveConfig(cfg); err != nil {
		return nil, errs.E(errs.Config, op, err)
	}

	host, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, errs.E(errs.Config, op, err)
	}
	mc, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, errs.E(errs.Config, op, fmt.Errorf("create archive client: %w", err))
	}

	store, err := NewWithClient(cfg.Bucket, cfg.Prefix, minioBucket{mc})
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func NewWithClient(bucket, prefix string, c bucketClient) (*Store, error) {
	if c == nil {
		return nil, errors.New("bucket client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Store{client: c, bucket: bucket, prefix: normalizePrefix(prefix)}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	const op errs.Op = "archive.Put"
	objectKey, err := s.resolveKey(key)
	if err != nil {
		return storage.ObjectInfo{}, errs.E(errs.Validation, op, err)
	}
	info, err := s.client.Upload(ctx, s.bucket, objectKey, body, size, contentType)
	if err != nil {
		return storage.ObjectInfo{}, errs.E(errs.Internal, op, fmt.Errorf("upload %s/%s: %w", s.bucket, objectKey, err))
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	const op errs.Op = "archive.Get"
	objectKey, err := s.resolveKey(key)
	if err != nil {
		return nil, errs.E(errs.Validation, op, err)
	}
	body, err := s.client.Download(ctx, s.bucket, objectKey)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, errs.E(errs.ExecutionNotFound, op, fmt.Errorf("%s: %w", objectKey, storage.ErrObjectNotFound))
	case err != nil:
		return nil, errs.E(errs.Internal, op, fmt.Errorf("download %s/%s: %w", s.bucket, objectKey, err))
	}
	return body, nil
}

// Delete treats a missing object as already deleted.
func (s *Store) Delete(ctx context.Context, key string) error {
	const op errs.Op = "archive.Delete"
	objectKey, err := s.resolveKey(key)
	if err != nil {
		return errs.E(errs.Validation, op, err)
	}
	if err := s.client.Remove(ctx, s.bucket, objectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return errs.E(errs.Internal, op, fmt.Errorf("remove %s/%s: %w", s.bucket, objectKey, err))
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	const op errs.Op = "archive.ensureBucket"
	ok, err := s.client.HasBucket(ctx, s.bucket)
	if err != nil {
		return errs.E(errs.Internal, op, fmt.Errorf("lookup bucket %s: %w", s.bucket, err))
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, region); err != nil {
		return errs.E(errs.Internal, op, fmt.Errorf("make bucket %s: %w", s.bucket, err))
	}
	return nil
}

// resolveKey places key under the store prefix. Keys may not climb out of
// the prefix.
func (s *Store) resolveKey(key string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("object key %q escapes the archive prefix", key)
	}
	return path.Join(s.prefix, cleaned), nil
}

func normalizePrefix(prefix string) string {
	cleaned := path.Clean("/" + strings.TrimSpace(prefix))
	return strings.TrimPrefix(cleaned, "/")
}

// splitEndpoint turns ARCHIVE_ENDPOINT into the host the MinIO client wants.
// An https URL always enables TLS; a bare host keeps useSSL.
func splitEndpoint(raw string, useSSL bool) (string, bool, error) {
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse archive endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("archive endpoint %q has no host", raw)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, useSSL, nil
	}
	return "", false, fmt.Errorf("archive endpoint scheme %q is not supported", u.Scheme)
}

type minioBucket struct {
	mc *minio.Client
}

func (b minioBucket) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	info, err := b.mc.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, translateErr(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag}, nil
}

// Download stats the object before handing it out so a missing key fails
// here rather than on the first Read.
func (b minioBucket) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := b.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateErr(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translateErr(err)
	}
	return obj, nil
}

func (b minioBucket) Remove(ctx context.Context, bucket, key string) error {
	return translateErr(b.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (b minioBucket) HasBucket(ctx context.Context, bucket string) (bool, error) {
	ok, err := b.mc.BucketExists(ctx, bucket)
	return ok, translateErr(err)
}

func (b minioBucket) MakeBucket(ctx context.Context, bucket, region string) error {
	return translateErr(b.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
