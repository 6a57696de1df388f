package backup

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/Azure/azure-storage-blob-go/azblob"

	apperrors "hospital-backup/internal/errors"
)

// AzureStore keeps replicas in an Azure Blob Storage container
type AzureStore struct {
	containerURL  azblob.ContainerURL
	containerName string
}

// NewAzureStore creates a store for container. Empty settings fall back to
// AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY.
func NewAzureStore(config AzureConfig, container string) (*AzureStore, error) {
	if container == "" {
		return nil, apperrors.NewValidationError("Azure container is required", nil)
	}

	accountName := config.AccountName
	if accountName == "" {
		accountName = os.Getenv("AZURE_STORAGE_ACCOUNT")
	}
	accountKey := config.AccountKey
	if accountKey == "" {
		accountKey = os.Getenv("AZURE_STORAGE_KEY")
	}
	if accountName == "" || accountKey == "" {
		return nil, apperrors.NewValidationError("Azure account name and key are required", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", accountName))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureStore{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(container),
		containerName: container,
	}, nil
}

// Put streams the object as a block blob
func (a *AzureStore) Put(ctx context.Context, key string, r io.Reader, meta map[string]string) error {
	blobURL := a.containerURL.NewBlockBlobURL(key)
	_, err := azblob.UploadStreamToBlockBlob(ctx, r, blobURL, azblob.UploadStreamToBlockBlobOptions{
		BufferSize: 4 * 1024 * 1024,
		MaxBuffers: 4,
		Metadata:   azblob.Metadata(meta),
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/octet-stream",
		},
	})
	if err != nil {
		return apperrors.NewRecoverableError(apperrors.ErrorTypeStorage,
			fmt.Sprintf("failed to upload %s to Azure", a.Location(key)), err)
	}
	return nil
}

// Get downloads the blob with retrying reads
func (a *AzureStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	blobURL := a.containerURL.NewBlobURL(key)
	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("replica %s not found", a.Location(key)), err)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to download %s from Azure", a.Location(key)), err)
	}
	return resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20}), nil
}

// Exists reads the blob properties
func (a *AzureStore) Exists(ctx context.Context, key string) (bool, error) {
	blobURL := a.containerURL.NewBlobURL(key)
	_, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, apperrors.NewStorageError("failed to check Azure blob", err)
	}
	return true, nil
}

// List returns every blob under prefix
func (a *AzureStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResponse, err := a.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: prefix,
		})
		if err != nil {
			return nil, apperrors.NewStorageError("failed to list Azure blobs", err)
		}
		marker = listResponse.NextMarker

		for _, item := range listResponse.Segment.BlobItems {
			info := ObjectInfo{Key: item.Name, ModTime: item.Properties.LastModified}
			if item.Properties.ContentLength != nil {
				info.Size = *item.Properties.ContentLength
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

// Location implements ArtifactStore
func (a *AzureStore) Location(key string) string {
	return fmt.Sprintf("azure://%s/%s", a.containerName, key)
}

func isAzureNotFound(err error) bool {
	if stgErr, ok := err.(azblob.StorageError); ok {
		return stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
