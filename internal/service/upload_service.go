package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/jpirolla/aws-data-querying/internal/database/drivers/object_storage"
	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

// UploadService pushes a record set to the object store as delimited text.
type UploadService interface {
	UploadCSV(ctx context.Context, products []model.Product, bucket, key string) error
	VerifyCSV(ctx context.Context, bucket, key string) (*model.RecordSet, error)
}

type uploadService struct {
	store  ObjectStore
	logger *zap.SugaredLogger
}

// NewUploadService creates a new instance of UploadService
func NewUploadService(store ObjectStore, logger *zap.SugaredLogger) UploadService {
	return &uploadService{
		store:  store,
		logger: logger,
	}
}

// UploadCSV serializes products and writes them to bucket/key in one put.
func (s *uploadService) UploadCSV(ctx context.Context, products []model.Product, bucket, key string) error {
	log := s.logger.With("bucket", bucket, "key", key)

	data, err := object_storage.EncodeProductsCSV(products)
	if err != nil {
		log.Errorw("Failed to serialize CSV", "error", err)
		return err
	}

	if err := s.store.PutObject(ctx, bucket, key, data, object_storage.CSVContentType); err != nil {
		if utils.IsKind(err, utils.KindCredentials) {
			log.Errorw("AWS credentials not found or invalid", "error", err)
		} else {
			log.Errorw("Error uploading CSV to S3", "error", err, "kind", utils.KindOf(err))
		}
		return err
	}

	log.Infow("CSV uploaded to S3", "rows", len(products), "bytes", len(data))
	return nil
}

// VerifyCSV fetches bucket/key and parses it back into a typed record set.
func (s *uploadService) VerifyCSV(ctx context.Context, bucket, key string) (*model.RecordSet, error) {
	log := s.logger.With("bucket", bucket, "key", key)

	data, err := s.store.GetObject(ctx, bucket, key)
	if err != nil {
		log.Errorw("Error reading CSV from S3", "error", err, "kind", utils.KindOf(err))
		return nil, err
	}

	products, err := object_storage.DecodeProductsCSV(data)
	if err != nil {
		log.Errorw("Error parsing CSV read from S3", "error", err)
		return nil, err
	}

	rs := model.ProductsRecordSet(products)
	log.Infow("CSV read back from S3", "rows", rs.Len())
	log.Info("\n" + rs.String())
	return rs, nil
}
