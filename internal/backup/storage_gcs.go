package backup

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	apperrors "hospital-backup/internal/errors"
)

// GCSStore keeps replicas in a Google Cloud Storage bucket
type GCSStore struct {
	client     *storage.Client
	bucketName string
}

// NewGCSStore creates a store for bucket using a credentials file or the default credentials
func NewGCSStore(ctx context.Context, config GCSConfig, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, apperrors.NewValidationError("GCS bucket is required", nil)
	}

	var client *storage.Client
	var err error
	if config.CredentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(config.CredentialsPath))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create GCS client", err)
	}

	return &GCSStore{client: client, bucketName: bucket}, nil
}

// Put streams the object through a resumable writer
func (g *GCSStore) Put(ctx context.Context, key string, r io.Reader, meta map[string]string) error {
	writer := g.client.Bucket(g.bucketName).Object(key).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.Metadata = meta

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return apperrors.NewRecoverableError(apperrors.ErrorTypeStorage,
			fmt.Sprintf("failed to upload %s to GCS", g.Location(key)), err)
	}
	if err := writer.Close(); err != nil {
		return apperrors.NewRecoverableError(apperrors.ErrorTypeStorage,
			fmt.Sprintf("failed to finalize %s", g.Location(key)), err)
	}
	return nil
}

// Get opens a reader on the object
func (g *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := g.client.Bucket(g.bucketName).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("replica %s not found", g.Location(key)), err)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to download %s from GCS", g.Location(key)), err)
	}
	return reader, nil
}

// Exists reads the object attributes
func (g *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.client.Bucket(g.bucketName).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewStorageError("failed to check GCS object", err)
	}
	return true, nil
}

// List returns every object under prefix
func (g *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	it := g.client.Bucket(g.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apperrors.NewStorageError("failed to list GCS objects", err)
		}
		objects = append(objects, ObjectInfo{Key: attrs.Name, Size: attrs.Size, ModTime: attrs.Updated})
	}
	return objects, nil
}

// Location implements ArtifactStore
func (g *GCSStore) Location(key string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucketName, key)
}

// Close releases the client
func (g *GCSStore) Close() error {
	return g.client.Close()
}
