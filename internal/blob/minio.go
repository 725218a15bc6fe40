package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig describes how to reach the S3-compatible bucket.
type MinIOConfig struct {
	Endpoint  string // "minio:9000" or "https://s3.example.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // optional key prefix, e.g. "dropkey"
}

// MinIO stores blobs as objects in one bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		secure = (u.Scheme == "https")
		return u.Host, secure, nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

// NewMinIO connects to the bucket and fails if it does not exist.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	m := &MinIO{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
	if err := m.Ping(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MinIO) Name() string { return "minio" }

// Ping checks that the bucket is reachable and exists.
func (m *MinIO) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("minio bucket does not exist: %s", m.bucket)
	}
	return nil
}

func (m *MinIO) Store(ctx context.Context, r io.Reader, size int64, mediaType string) (string, error) {
	key := m.objectKey(uuid.NewString())
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: mediaType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return m.ref(key), nil
}

func (m *MinIO) Delete(ctx context.Context, ref string) error {
	key, err := m.keyFromRef(ref)
	if err != nil {
		return err
	}
	// RemoveObject succeeds for keys that are already gone.
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (m *MinIO) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := m.keyFromRef(ref)
	if err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// Force an early error for missing object / auth issues.
	if _, statErr := obj.Stat(); statErr != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(statErr).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object: %w", statErr)
	}
	return obj, nil
}

func (m *MinIO) objectKey(id string) string {
	if m.prefix == "" {
		return id
	}
	return path.Join(m.prefix, id)
}

func (m *MinIO) ref(key string) string {
	return "minio://" + m.bucket + "/" + key
}

func (m *MinIO) keyFromRef(ref string) (string, error) {
	want := "minio://" + m.bucket + "/"
	if !strings.HasPrefix(ref, want) {
		return "", fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	key := strings.TrimPrefix(ref, want)
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrForeignRef)
	}
	return key, nil
}
