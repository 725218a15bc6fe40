package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisURL = "redis://localhost:6379"
	redisRefPrefix  = "redis://blob/"
	redisKeyPrefix  = "dropkey:blob:"
)

// Redis stores blobs as plain string values with a TTL, so blobs whose
// metadata was lost on restart still disappear on their own.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to url and verifies the connection. ttl bounds how
// long any blob may live; zero keeps blobs until deleted.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// Close closes the underlying Redis client.
func (s *Redis) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Redis) Name() string { return "redis" }

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Store(ctx context.Context, r io.Reader, size int64, mediaType string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}
	if size >= 0 && int64(len(content)) != size {
		return "", fmt.Errorf("blob size mismatch: declared %d, read %d", size, len(content))
	}

	// The media type lives on the registry record; only the bytes go here.
	id := uuid.NewString()
	if err := s.client.Set(ctx, redisKeyPrefix+id, content, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	return redisRefPrefix + id, nil
}

func (s *Redis) Delete(ctx context.Context, ref string) error {
	id, err := redisID(ref)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *Redis) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	id, err := redisID(ref)
	if err != nil {
		return nil, err
	}
	content, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func redisID(ref string) (string, error) {
	if !strings.HasPrefix(ref, redisRefPrefix) {
		return "", fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	id := strings.TrimPrefix(ref, redisRefPrefix)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrForeignRef)
	}
	return id, nil
}
