package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/jpirolla/aws-data-querying/internal/database/drivers/catalog"
	"github.com/jpirolla/aws-data-querying/internal/database/drivers/object_storage"
	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

// DatabaseDescription is set on the catalog database when it is created.
const DatabaseDescription = "Database for fruit products."

// PublishService writes a Parquet dataset, catalogs it and reads it back.
type PublishService interface {
	Run(ctx context.Context, req *PublishRequest) *PublishReport
}

// PublishRequest names the dataset destination and its catalog entry.
type PublishRequest struct {
	Products []model.Product
	Bucket   string
	Prefix   string // object key prefix of the dataset, ending in "/"
	Database string
	Table    string
}

// PublishReport carries the outcome of each step. A step error never stops
// the steps after it.
type PublishReport struct {
	RunID string

	DatabaseCreated bool
	DatabaseErr     error

	WrittenKey   string
	TableCreated bool
	WriteErr     error

	ReadBack *model.RecordSet
	ReadErr  error
}

type publishService struct {
	store   ObjectStore
	catalog Catalog
	logger  *zap.SugaredLogger
}

// NewPublishService creates a new instance of PublishService
func NewPublishService(store ObjectStore, cat Catalog, logger *zap.SugaredLogger) PublishService {
	return &publishService{
		store:   store,
		catalog: cat,
		logger:  logger,
	}
}

func (s *publishService) Run(ctx context.Context, req *PublishRequest) *PublishReport {
	report := &PublishReport{RunID: utils.GenerateUUID()}
	log := s.logger.With("run_id", report.RunID)

	report.DatabaseCreated, report.DatabaseErr = s.ensureDatabase(ctx, log, req.Database)
	report.WrittenKey, report.TableCreated, report.WriteErr = s.writeDataset(ctx, log, req)

	if report.WriteErr != nil {
		log.Warnw("Reading back a dataset whose write failed; data may be stale or absent",
			"bucket", req.Bucket, "prefix", req.Prefix)
	}
	report.ReadBack, report.ReadErr = s.readBack(ctx, log, req.Bucket, req.Prefix)

	return report
}

func (s *publishService) ensureDatabase(ctx context.Context, log *zap.SugaredLogger, database string) (bool, error) {
	created, err := s.catalog.EnsureDatabase(ctx, database, DatabaseDescription)
	if err != nil {
		log.Errorw("Error creating Glue database", "database", database, "error", err, "kind", utils.KindOf(err))
		return false, err
	}

	if created {
		log.Infow("Database created", "database", database)
	} else {
		log.Infow("Database already exists", "database", database)
	}
	return created, nil
}

// writeDataset replaces every object under the prefix with one Snappy Parquet
// file and points the catalog table at the prefix.
func (s *publishService) writeDataset(ctx context.Context, log *zap.SugaredLogger, req *PublishRequest) (string, bool, error) {
	log = log.With("bucket", req.Bucket, "prefix", req.Prefix, "database", req.Database, "table", req.Table)

	// An empty prefix would overwrite the whole bucket.
	if req.Prefix == "" {
		err := utils.Precondition("publish dataset", "dataset folder path is not set")
		log.Errorw("Error creating the table", "error", err)
		return "", false, err
	}

	data, err := object_storage.EncodeProductsParquet(req.Products)
	if err != nil {
		log.Errorw("Error serializing Parquet dataset", "error", err)
		return "", false, err
	}

	existing, err := s.store.ListKeys(ctx, req.Bucket, req.Prefix)
	if err != nil {
		log.Errorw("Error listing existing dataset objects", "error", err, "kind", utils.KindOf(err))
		return "", false, err
	}
	if len(existing) > 0 {
		if err := s.store.DeleteKeys(ctx, req.Bucket, existing); err != nil {
			log.Errorw("Error removing existing dataset objects", "error", err, "kind", utils.KindOf(err))
			return "", false, err
		}
		log.Debugw("Removed existing dataset objects", "count", len(existing))
	}

	key := req.Prefix + utils.GenerateObjectName(object_storage.ParquetFileSuffix)
	if err := s.store.PutObject(ctx, req.Bucket, key, data, object_storage.ParquetContentType); err != nil {
		log.Errorw("Error writing Parquet dataset", "key", key, "error", err, "kind", utils.KindOf(err))
		return "", false, err
	}

	created, err := s.catalog.RegisterTable(ctx, catalog.TableDefinition{
		Database:    req.Database,
		Table:       req.Table,
		Location:    object_storage.BuildS3URI(req.Bucket, req.Prefix),
		Columns:     model.ProductColumns,
		Compression: "snappy",
	})
	if err != nil {
		log.Errorw("Error creating the table", "key", key, "error", err, "kind", utils.KindOf(err))
		return key, false, err
	}

	log.Infow("Table successfully registered", "key", key, "rows", len(req.Products), "created", created)
	return key, created, nil
}

func (s *publishService) readBack(ctx context.Context, log *zap.SugaredLogger, bucket, prefix string) (*model.RecordSet, error) {
	log = log.With("bucket", bucket, "prefix", prefix)

	rs, err := readParquetDataset(ctx, s.store, bucket, prefix)
	if err != nil {
		log.Errorw("Error reading the Parquet dataset", "error", err, "kind", utils.KindOf(err))
		return nil, err
	}

	log.Infow("Parquet dataset read back", "rows", rs.Len())
	log.Info("\n" + rs.String())
	return rs, nil
}

// readParquetDataset reads and concatenates every Parquet object under prefix.
func readParquetDataset(ctx context.Context, store ObjectStore, bucket, prefix string) (*model.RecordSet, error) {
	keys, err := store.ListKeys(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}

	keys = object_storage.FilterByExtension(keys, object_storage.ParquetExtension)
	if len(keys) == 0 {
		return nil, utils.NewErrorBuilder(utils.KindNotFound).
			WithOp("read parquet dataset").
			WithMessage("no Parquet objects under " + object_storage.BuildS3URI(bucket, prefix)).
			Build()
	}

	var products []model.Product
	for _, key := range keys {
		part, err := readParquetProducts(ctx, store, bucket, key)
		if err != nil {
			return nil, err
		}
		products = append(products, part...)
	}
	return model.ProductsRecordSet(products), nil
}

func readParquetProducts(ctx context.Context, store ObjectStore, bucket, key string) ([]model.Product, error) {
	data, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	products, err := object_storage.DecodeProductsParquet(data)
	if err != nil {
		return nil, utils.NewErrorBuilder(utils.KindRemote).
			WithOp("decode parquet").
			WithMessage("object " + key + " is not a readable Parquet file").
			WithCause(err).
			Build()
	}
	return products, nil
}
