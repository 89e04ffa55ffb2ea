package object_storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jpirolla/aws-data-querying/internal/metrics"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

// maxDeleteBatch is the S3 DeleteObjects limit.
const maxDeleteBatch = 1000

// S3API is the subset of the S3 SDK client used here.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Client wraps the AWS S3 client with convenience methods. Every method
// returns a *utils.AppError on failure.
type S3Client struct {
	client  S3API
	metrics *metrics.RemoteCalls
}

// NewS3Client creates a new S3 client wrapper. m may be nil.
func NewS3Client(client S3API, m *metrics.RemoteCalls) *S3Client {
	return &S3Client{client: client, metrics: m}
}

// PutObject uploads an object to S3
func (c *S3Client) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}

	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	start := time.Now()
	_, err := c.client.PutObject(ctx, input)
	c.metrics.Observe(metrics.ServiceS3, "PutObject", start, err)
	if err != nil {
		return utils.Classify("s3 put object", err)
	}

	return nil
}

// GetObject retrieves an object from S3
func (c *S3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	start := time.Now()
	result, err := c.client.GetObject(ctx, input)
	c.metrics.Observe(metrics.ServiceS3, "GetObject", start, err)
	if err != nil {
		return nil, utils.Classify("s3 get object", err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, utils.Classify("s3 read object body", err)
	}

	return data, nil
}

// ListKeys lists the key of every object under prefix, following continuation
// tokens. A prefix with no objects yields a nil slice.
func (c *S3Client) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var (
		keys              []string
		continuationToken *string
	)

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: continuationToken,
		}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}

		start := time.Now()
		result, err := c.client.ListObjectsV2(ctx, input)
		c.metrics.Observe(metrics.ServiceS3, "ListObjectsV2", start, err)
		if err != nil {
			return nil, utils.Classify("s3 list objects", err)
		}

		for _, obj := range result.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}

		if !aws.ToBool(result.IsTruncated) || result.NextContinuationToken == nil {
			break
		}
		continuationToken = result.NextContinuationToken
	}

	return keys, nil
}

// DeleteKeys deletes the given keys in batches.
func (c *S3Client) DeleteKeys(ctx context.Context, bucket string, keys []string) error {
	for len(keys) > 0 {
		n := len(keys)
		if n > maxDeleteBatch {
			n = maxDeleteBatch
		}

		objectIds := make([]types.ObjectIdentifier, n)
		for i, key := range keys[:n] {
			objectIds[i] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		input := &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: objectIds, Quiet: aws.Bool(true)},
		}

		start := time.Now()
		out, err := c.client.DeleteObjects(ctx, input)
		c.metrics.Observe(metrics.ServiceS3, "DeleteObjects", start, err)
		if err != nil {
			return utils.Classify("s3 delete objects", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return utils.NewErrorBuilder(utils.KindRemote).
				WithOp("s3 delete objects").
				WithMessage(fmt.Sprintf("%d objects not deleted", len(out.Errors))).
				WithDetails(fmt.Sprintf("%s: %s", aws.ToString(first.Key), aws.ToString(first.Message))).
				Build()
		}

		keys = keys[n:]
	}

	return nil
}

// ParseS3URI parses an S3 URI (s3://bucket/key/path)
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("invalid S3 URI: %s", uri)
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("bucket is required in S3 URI: %s", uri)
	}

	return bucket, key, nil
}

// BuildS3URI builds an S3 URI from bucket and key
func BuildS3URI(bucket, key string) string {
	if key == "" {
		return fmt.Sprintf("s3://%s", bucket)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// HasExtension checks if a key has the given extension
func HasExtension(key, extension string) bool {
	if len(extension) > 0 && extension[0] != '.' {
		extension = "." + extension
	}
	return len(key) > len(extension) && strings.HasSuffix(key, extension)
}

// FilterByExtension keeps the keys that end with extension, preserving order.
func FilterByExtension(keys []string, extension string) []string {
	filtered := make([]string, 0, len(keys))
	for _, key := range keys {
		if HasExtension(key, extension) {
			filtered = append(filtered, key)
		}
	}
	return filtered
}
