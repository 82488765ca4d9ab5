package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/blendtrade/auctiond/internal/domain"
)

// Writer implements domain.BlobWriter using an S3-compatible backend. Uploads
// go through the transfer manager, which switches to multipart automatically
// once an archive outgrows a single part.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

// NewWriter creates a Writer that uploads objects to the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		uploader: manager.NewUploader(c.S3()),
		bucket:   c.Bucket(),
	}
}

// Write uploads data under key with the given content type.
func (w *Writer) Write(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	if _, err := w.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", key, err)
	}
	return nil
}

var _ domain.BlobWriter = (*Writer)(nil)
