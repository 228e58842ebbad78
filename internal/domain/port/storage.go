package port

import (
	"context"
	"io"
)

// MediaStorage moves media in and crop artifacts out of object storage.
type MediaStorage interface {
	DownloadMedia(ctx context.Context, objectKey string, destPath string) error
	UploadCrop(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}
