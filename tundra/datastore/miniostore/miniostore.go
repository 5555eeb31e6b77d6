// Package miniostore is a tundra.Datastore backed by a MinIO (or any
// S3-compatible) bucket, grounded on
// _examples/sa6mwa-lockd/devenv/assure/main.go's minio-go client setup
// and object put/get calls.
package miniostore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store puts each key under Prefix/<key> in Bucket.
type Store struct {
	Client *minio.Client
	Bucket string
	Prefix string
}

// Config dials a new minio.Client the way lockd's devenv assurance
// tool does: strip any scheme prefix off Endpoint, pick TLS via
// Secure.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

func New(cfg Config) (*Store, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("miniostore: connect: %w", err)
	}
	return &Store{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

func (s *Store) object(key string) string {
	return path.Join(strings.Trim(s.Prefix, "/"), key)
}

func (s *Store) Put(ctx context.Context, key string, blob []byte) error {
	_, err := s.Client.PutObject(ctx, s.Bucket, s.object(key), bytes.NewReader(blob), int64(len(blob)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("miniostore: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.Client.GetObject(ctx, s.Bucket, s.object(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("miniostore: get %s: %w", key, err)
	}
	defer obj.Close()
	blob, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("miniostore: read %s: %w", key, err)
	}
	return blob, nil
}
