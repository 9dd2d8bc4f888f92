package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the object store connection settings.
type S3Config struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Region    string `koanf:"region"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// Configured reports whether enough settings are present to connect.
func (c S3Config) Configured() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

// ObjectStore is the subset of an S3 API the resolver needs.
type ObjectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Download(ctx context.Context, bucket, key, path string) error
	Upload(ctx context.Context, bucket, key, path string) error
	Remove(ctx context.Context, bucket, key string) error
}

// ObjectURL is a parsed s3://bucket/key location.
type ObjectURL struct {
	Bucket string
	Key    string
}

// IsRemote reports whether location names an object store.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "s3://") || strings.HasPrefix(l, "s3a://")
}

// ParseObjectURL splits an s3:// or s3a:// location.
func ParseObjectURL(location string) (ObjectURL, error) {
	u, err := url.Parse(location)
	if err != nil {
		return ObjectURL{}, fmt.Errorf("invalid object location %q: %w", location, err)
	}
	if u.Scheme != "s3" && u.Scheme != "s3a" {
		return ObjectURL{}, fmt.Errorf("invalid object location %q: scheme must be s3", location)
	}
	if u.Host == "" {
		return ObjectURL{}, fmt.Errorf("invalid object location %q: missing bucket", location)
	}
	key := strings.Trim(u.Path, "/")
	if key == "" {
		return ObjectURL{}, fmt.Errorf("invalid object location %q: missing key", location)
	}
	return ObjectURL{Bucket: u.Host, Key: key}, nil
}

// MinioStore implements ObjectStore with minio-go.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore creates a client for cfg. The endpoint may be a bare host
// or a URL; an https URL enables TLS.
func NewMinioStore(cfg S3Config) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// List returns every key under prefix.
func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Download copies an object to a local file.
func (s *MinioStore) Download(ctx context.Context, bucket, key, path string) error {
	return s.client.FGetObject(ctx, bucket, key, path, minio.GetObjectOptions{})
}

// Upload copies a local file to an object.
func (s *MinioStore) Upload(ctx context.Context, bucket, key, path string) error {
	_, err := s.client.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// Remove deletes an object.
func (s *MinioStore) Remove(ctx context.Context, bucket, key string) error {
	return s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}
