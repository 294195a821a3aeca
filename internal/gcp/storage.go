package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Storage reads whole objects from Cloud Storage.
type Storage struct {
	client *storage.Client
}

// NewStorage creates a storage client. A non-empty endpoint overrides the
// default API endpoint (emulators, private service connect).
func NewStorage(ctx context.Context, endpoint string) (*Storage, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &Storage{client: client}, nil
}

// ReadObject streams gs://bucket/object into memory.
func (s *Storage) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s does not exist: %w", bucket, object, err)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object gs://%s/%s: %w", bucket, object, err)
	}
	slog.Debug("Fetched GCS object.", "gcsBucket", bucket, "gcsObject", object, "bytes", len(data))
	return data, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}
