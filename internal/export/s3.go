package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the slice of the S3 client the publisher needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads exported files to a bucket.
type S3Publisher struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Publisher creates a publisher targeting bucket. Keys are prefixed
// with prefix when it is non-empty.
func NewS3Publisher(client ObjectPutter, bucket, prefix string, logger *slog.Logger) *S3Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Publisher{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Publish uploads the named files from srcDir. File paths are the
// relative names returned by Exporter.Export.
func (p *S3Publisher) Publish(ctx context.Context, srcDir string, files []string) error {
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(srcDir, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		key := rel
		if p.prefix != "" {
			key = p.prefix + "/" + rel
		}
		_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("text/html; charset=utf-8"),
		})
		if err != nil {
			return fmt.Errorf("export: put s3://%s/%s: %w", p.bucket, key, err)
		}
		p.logger.Info("published page", "bucket", p.bucket, "key", key, "bytes", len(data))
	}
	return nil
}
