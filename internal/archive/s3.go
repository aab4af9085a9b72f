package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/bulkmail/internal/esp"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes pages to a bucket.
type S3Archive struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Archive creates an archive writing to bucket under prefix.
func NewS3Archive(client S3API, bucket, prefix string) *S3Archive {
	if prefix == "" {
		prefix = "events"
	}
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

func (a *S3Archive) Archive(ctx context.Context, provider string, at time.Time, events []esp.RawEvent) error {
	if len(events) == 0 {
		return nil
	}
	data, err := encodeLines(events)
	if err != nil {
		return err
	}
	key := ObjectKey(a.prefix, provider, at)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3 bucket %s: %w", a.bucket, err)
	}
	return nil
}
