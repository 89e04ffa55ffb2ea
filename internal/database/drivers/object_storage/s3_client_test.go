package object_storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

// mockS3Client keeps objects in memory. pageSize > 0 splits listings into pages.
type mockS3Client struct {
	objects  map[string][]byte
	pageSize int
	calls    map[string]int

	putObjectFunc     func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	deleteObjectsFunc func(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{
		objects: make(map[string][]byte),
		calls:   make(map[string]int),
	}
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.calls["PutObject"]++
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, params, optFns...)
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.calls["GetObject"]++
	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.calls["ListObjectsV2"]++

	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, aws.ToString(params.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if params.ContinuationToken != nil {
		_, _ = fmt.Sscanf(*params.ContinuationToken, "%d", &start)
	}
	end := len(keys)
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
	}

	out := &s3.ListObjectsV2Output{}
	for _, key := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(m.objects[key]))),
		})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprintf("%d", end))
	}
	return out, nil
}

func (m *mockS3Client) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	m.calls["DeleteObjects"]++
	if m.deleteObjectsFunc != nil {
		return m.deleteObjectsFunc(ctx, params, optFns...)
	}
	for _, obj := range params.Delete.Objects {
		delete(m.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestS3ClientPutGet(t *testing.T) {
	mock := newMockS3Client()
	client := NewS3Client(mock, nil)
	ctx := context.Background()

	require.NoError(t, client.PutObject(ctx, "my-bucket", "a/b.txt", []byte("hello"), "text/plain"))

	data, err := client.GetObject(ctx, "my-bucket", "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestS3ClientGetMissingIsNotFound(t *testing.T) {
	client := NewS3Client(newMockS3Client(), nil)

	_, err := client.GetObject(context.Background(), "my-bucket", "missing")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
}

func TestS3ClientPutClassifiesCredentials(t *testing.T) {
	mock := newMockS3Client()
	mock.putObjectFunc = func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, fmt.Errorf("operation error S3: PutObject, failed to retrieve credentials: no EC2 IMDS role found")
	}
	client := NewS3Client(mock, nil)

	err := client.PutObject(context.Background(), "my-bucket", "k", []byte("x"), "")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindCredentials))
}

func TestS3ClientListKeysPaginates(t *testing.T) {
	mock := newMockS3Client()
	mock.pageSize = 2
	for i := 0; i < 5; i++ {
		mock.objects[fmt.Sprintf("data/part-%d.parquet", i)] = []byte("x")
	}
	mock.objects["other/file.csv"] = []byte("x")
	client := NewS3Client(mock, nil)

	keys, err := client.ListKeys(context.Background(), "my-bucket", "data/")
	require.NoError(t, err)
	assert.Len(t, keys, 5)
	assert.Equal(t, 3, mock.calls["ListObjectsV2"])
}

func TestS3ClientListKeysEmptyPrefix(t *testing.T) {
	client := NewS3Client(newMockS3Client(), nil)

	keys, err := client.ListKeys(context.Background(), "my-bucket", "nothing/")
	require.NoError(t, err)
	assert.Nil(t, keys)
}

func TestS3ClientDeleteKeysBatches(t *testing.T) {
	mock := newMockS3Client()
	var keys []string
	for i := 0; i < maxDeleteBatch+5; i++ {
		key := fmt.Sprintf("data/%04d", i)
		mock.objects[key] = []byte("x")
		keys = append(keys, key)
	}
	client := NewS3Client(mock, nil)

	require.NoError(t, client.DeleteKeys(context.Background(), "my-bucket", keys))
	assert.Equal(t, 2, mock.calls["DeleteObjects"])
	assert.Empty(t, mock.objects)
}

func TestS3ClientDeleteKeysReportsPartialFailure(t *testing.T) {
	mock := newMockS3Client()
	mock.deleteObjectsFunc = func(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
		return &s3.DeleteObjectsOutput{
			Errors: []types.Error{{Key: aws.String("data/a"), Message: aws.String("Access Denied")}},
		}, nil
	}
	client := NewS3Client(mock, nil)

	err := client.DeleteKeys(context.Background(), "my-bucket", []string{"data/a"})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindRemote))
	assert.Contains(t, err.Error(), "data/a")
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://my-bucket/data/fruits/")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "data/fruits/", key)

	bucket, key, err = ParseS3URI("s3://my-bucket")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Empty(t, key)

	_, _, err = ParseS3URI("https://my-bucket/x")
	assert.Error(t, err)
	_, _, err = ParseS3URI("s3:///x")
	assert.Error(t, err)

	assert.Equal(t, "s3://my-bucket/data/", BuildS3URI("my-bucket", "data/"))
	assert.Equal(t, "s3://my-bucket", BuildS3URI("my-bucket", ""))
}

func TestFilterByExtension(t *testing.T) {
	keys := []string{"data/", "data/a.snappy.parquet", "data/b.csv", "data/c.parquet", ".parquet"}

	assert.Equal(t, []string{"data/a.snappy.parquet", "data/c.parquet"}, FilterByExtension(keys, ParquetExtension))
	assert.Equal(t, []string{"data/b.csv"}, FilterByExtension(keys, "csv"))

	filtered := FilterByExtension([]string{"data/b.csv"}, ParquetExtension)
	assert.NotNil(t, filtered)
	assert.Empty(t, filtered)
}

func TestCSVUploadThenFetch(t *testing.T) {
	mock := newMockS3Client()
	client := NewS3Client(mock, nil)
	ctx := context.Background()
	fixture := model.UploadFixture()

	data, err := EncodeProductsCSV(fixture)
	require.NoError(t, err)
	require.NoError(t, client.PutObject(ctx, "my-bucket", "fruits.csv", data, CSVContentType))

	fetched, err := client.GetObject(ctx, "my-bucket", "fruits.csv")
	require.NoError(t, err)

	products, err := DecodeProductsCSV(fetched)
	require.NoError(t, err)
	assert.Equal(t, fixture, products)
}
