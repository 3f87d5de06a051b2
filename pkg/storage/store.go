package storage

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// ObjectStore is the object-storage surface consumed by the traditional
// strategy and the mode selector's permission check. The S3 implementation
// is below; tests substitute fakes.
type ObjectStore interface {
	// GetObject streams an object's body. The caller closes the reader.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	// PutObject uploads a body of known length. Uploads are all-or-nothing
	// per object: a failed call leaves nothing at the destination.
	PutObject(ctx context.Context, bucket, key string, body io.Reader, length int64, contentType string, metadata map[string]string) error
	// HeadBucket checks existence and access of a bucket.
	HeadBucket(ctx context.Context, bucket string) error
	// ListKeys lists object keys under a prefix.
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// S3Store implements ObjectStore on an aws-sdk-go-v2 client.
type S3Store struct {
	client *s3.Client
}

func NewS3Store(client *s3.Client) *S3Store {
	return &S3Store{client: client}
}

func (s *S3Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, errors.Wrapf(err, "get s3://%s/%s", bucket, key)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

func (s *S3Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, length int64, contentType string, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(length),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return errors.Wrapf(err, "put s3://%s/%s", bucket, key)
	}
	return nil
}

func (s *S3Store) HeadBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return errors.Wrapf(err, "head bucket %s", bucket)
	}
	return nil
}

func (s *S3Store) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "list s3://%s/%s", bucket, prefix)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
