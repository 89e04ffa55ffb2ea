package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

func TestUploadCSVThenVerify(t *testing.T) {
	store := newMemoryStore("my-bucket")
	logger, logs := newObservedLogger()
	svc := NewUploadService(store, logger)
	ctx := context.Background()

	require.NoError(t, svc.UploadCSV(ctx, model.UploadFixture(), "my-bucket", "fruits.csv"))
	assert.Contains(t, store.objects, "fruits.csv")
	assert.Equal(t, 1, logs.FilterMessage("CSV uploaded to S3").Len())

	rs, err := svc.VerifyCSV(ctx, "my-bucket", "fruits.csv")
	require.NoError(t, err)

	products, err := rs.Products()
	require.NoError(t, err)
	assert.Equal(t, model.UploadFixture(), products)
}

func TestUploadCSVCredentialsReportedDistinctly(t *testing.T) {
	store := newMemoryStore("my-bucket")
	store.putErr = utils.Classify("s3 put object", errors.New("failed to retrieve credentials: no providers in chain"))
	logger, logs := newObservedLogger()
	svc := NewUploadService(store, logger)

	err := svc.UploadCSV(context.Background(), model.UploadFixture(), "my-bucket", "fruits.csv")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindCredentials))
	assert.Equal(t, 1, logs.FilterMessage("AWS credentials not found or invalid").Len())
	assert.Zero(t, logs.FilterMessage("Error uploading CSV to S3").Len())
}

func TestUploadCSVGenericFailure(t *testing.T) {
	store := newMemoryStore("my-bucket")
	logger, logs := newObservedLogger()
	svc := NewUploadService(store, logger)

	err := svc.UploadCSV(context.Background(), model.UploadFixture(), "other-bucket", "fruits.csv")
	require.Error(t, err)
	assert.Equal(t, 1, store.calls["PutObject"])
	assert.Equal(t, 1, logs.FilterMessage("Error uploading CSV to S3").Len())
}

func TestVerifyCSVMissingObject(t *testing.T) {
	logger, _ := newObservedLogger()
	svc := NewUploadService(newMemoryStore("my-bucket"), logger)

	_, err := svc.VerifyCSV(context.Background(), "my-bucket", "absent.csv")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
}
