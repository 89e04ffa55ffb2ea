package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jpirolla/aws-data-querying/internal/database/drivers/object_storage"
	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/security"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

const (
	// queryRowLimit bounds every read-back query.
	queryRowLimit = 10

	maxGeneratedQueryLength = 1000
)

// ReadService locates published data and reads it back through each engine.
type ReadService interface {
	DiscoverParquet(ctx context.Context, bucket, prefix string) []string
	ReadParquetObject(ctx context.Context, bucket, key string) (*model.RecordSet, error)
	QueryCatalog(ctx context.Context, q *CatalogQuery) (*model.RecordSet, error)
	QueryFederated(ctx context.Context, q *FederatedQuery) (*model.RecordSet, error)
	Run(ctx context.Context, req *ReadRequest) *ReadReport
	Inspect(ctx context.Context, bucket, key string) (*object_storage.ParquetFileInfo, error)
}

// CatalogQuery reads a cataloged table through the catalog query engine.
type CatalogQuery struct {
	Database string `validate:"required"`
	Table    string
}

// FederatedQuery reads a cataloged table through the federated engine's
// external schema.
type FederatedQuery struct {
	ConnectionName string `validate:"required"`
	Schema         string
	Table          string
}

// ReadRequest drives one discovery-and-read run.
type ReadRequest struct {
	Bucket    string
	Prefix    string
	Catalog   CatalogQuery
	Federated FederatedQuery
}

// ReadReport carries the outcome of each read path. Paths are independent.
type ReadReport struct {
	RunID string

	Keys []string

	DirectKey string
	Direct    *model.RecordSet
	DirectErr error

	Catalog    *model.RecordSet
	CatalogErr error

	Federated    *model.RecordSet
	FederatedErr error
}

type readService struct {
	store        ObjectStore
	engine       QueryEngine
	federated    FederatedEngine
	validator    *validator.Validate
	sqlValidator *security.SQLValidator
	logger       *zap.SugaredLogger
}

// NewReadService creates a new instance of ReadService
func NewReadService(store ObjectStore, engine QueryEngine, federated FederatedEngine, logger *zap.SugaredLogger) ReadService {
	return &readService{
		store:        store,
		engine:       engine,
		federated:    federated,
		validator:    validator.New(),
		sqlValidator: security.NewSQLValidator(maxGeneratedQueryLength),
		logger:       logger,
	}
}

// DiscoverParquet returns the Parquet keys under prefix. Errors are logged
// and yield an empty list.
func (s *readService) DiscoverParquet(ctx context.Context, bucket, prefix string) []string {
	log := s.logger.With("bucket", bucket, "prefix", prefix)

	keys, err := s.store.ListKeys(ctx, bucket, prefix)
	if err != nil {
		log.Errorw("Error accessing S3", "error", err, "kind", utils.KindOf(err))
		return []string{}
	}
	if len(keys) == 0 {
		log.Info("No files found.")
		return []string{}
	}

	return object_storage.FilterByExtension(keys, object_storage.ParquetExtension)
}

func (s *readService) ReadParquetObject(ctx context.Context, bucket, key string) (*model.RecordSet, error) {
	log := s.logger.With("bucket", bucket, "key", key)

	products, err := readParquetProducts(ctx, s.store, bucket, key)
	if err != nil {
		log.Errorw("Error reading Parquet from S3", "error", err, "kind", utils.KindOf(err))
		return nil, err
	}

	rs := model.ProductsRecordSet(products)
	log.Infow("Data read from S3 successfully", "rows", rs.Len())
	log.Info("\n" + rs.String())
	return rs, nil
}

func (s *readService) QueryCatalog(ctx context.Context, q *CatalogQuery) (*model.RecordSet, error) {
	log := s.logger.With("database", q.Database, "table", q.Table)

	if err := s.validator.Struct(q); err != nil {
		appErr := utils.Precondition("athena query", "Athena database name is not set")
		log.Errorw("Error: Athena database name is not set", "error", appErr)
		return nil, appErr
	}

	query, err := s.boundedQuery(q.Table)
	if err != nil {
		appErr := utils.NewErrorBuilder(utils.KindPrecondition).
			WithOp("athena query").
			WithMessage("table name is not usable in a query").
			WithCause(err).
			Build()
		log.Errorw("Error: Athena table name is not valid", "error", appErr)
		return nil, appErr
	}

	rs, err := s.engine.ReadSQLQuery(ctx, query, q.Database)
	if err != nil {
		log.Errorw("Error reading data from Athena", "error", err, "kind", utils.KindOf(err))
		return nil, err
	}

	log.Infow("Data read from Athena successfully", "rows", rs.Len())
	log.Info("\n" + rs.String())
	return rs, nil
}

// QueryFederated opens the named connection, runs the bounded query against
// the external schema and closes the connection on every path.
func (s *readService) QueryFederated(ctx context.Context, q *FederatedQuery) (rs *model.RecordSet, err error) {
	log := s.logger.With("connection", q.ConnectionName, "schema", q.Schema, "table", q.Table)

	if err := s.validator.Struct(q); err != nil {
		appErr := utils.Precondition("redshift query", "Redshift connection name is not set")
		log.Errorw("Error: Redshift connection name is not set", "error", appErr)
		return nil, appErr
	}

	query, err := s.boundedQuery(q.Schema, q.Table)
	if err != nil {
		appErr := utils.NewErrorBuilder(utils.KindPrecondition).
			WithOp("redshift query").
			WithMessage("external schema or table name is not usable in a query").
			WithCause(err).
			Build()
		log.Errorw("Error: Redshift Spectrum table name is not valid", "error", appErr)
		return nil, appErr
	}

	conn, err := s.federated.Connect(ctx, q.ConnectionName)
	if err != nil {
		log.Errorw("Error connecting to Redshift", "error", err, "kind", utils.KindOf(err))
		return nil, err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warnw("Error closing Redshift connection", "error", cerr)
		}
	}()

	rs, err = conn.ReadSQLQuery(ctx, query)
	if err != nil {
		log.Errorw("Error reading data from Redshift Spectrum", "error", err, "kind", utils.KindOf(err))
		return nil, err
	}

	log.Infow("Data read from Redshift Spectrum successfully", "rows", rs.Len())
	log.Info("\n" + rs.String())
	return rs, nil
}

// Run discovers Parquet objects, reads the first one directly, then queries
// the table through both engines. No path depends on another's success.
func (s *readService) Run(ctx context.Context, req *ReadRequest) *ReadReport {
	report := &ReadReport{RunID: utils.GenerateUUID()}
	scoped := *s
	scoped.logger = s.logger.With("run_id", report.RunID)

	report.Keys = scoped.DiscoverParquet(ctx, req.Bucket, req.Prefix)
	if len(report.Keys) > 0 {
		scoped.logger.Infow("Found Parquet files", "keys", report.Keys)
		report.DirectKey = report.Keys[0]
		report.Direct, report.DirectErr = scoped.ReadParquetObject(ctx, req.Bucket, report.DirectKey)
	}

	report.Catalog, report.CatalogErr = scoped.QueryCatalog(ctx, &req.Catalog)
	report.Federated, report.FederatedErr = scoped.QueryFederated(ctx, &req.Federated)

	return report
}

// boundedQuery builds "SELECT * FROM <names joined by dots> LIMIT n" once the
// names and the statement shape have been checked.
func (s *readService) boundedQuery(names ...string) (string, error) {
	if err := s.sqlValidator.ValidateTableQuery(queryRowLimit, names...); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", strings.Join(names, "."), queryRowLimit), nil
}

// Inspect summarizes the footer of one Parquet object.
func (s *readService) Inspect(ctx context.Context, bucket, key string) (*object_storage.ParquetFileInfo, error) {
	log := s.logger.With("bucket", bucket, "key", key)

	data, err := s.store.GetObject(ctx, bucket, key)
	if err != nil {
		log.Errorw("Error reading object from S3", "error", err, "kind", utils.KindOf(err))
		return nil, err
	}

	info, err := object_storage.InspectParquet(data)
	if err != nil {
		log.Errorw("Error reading Parquet footer", "error", err)
		return nil, err
	}

	log.Infow("Parquet file", "rows", info.NumRows, "row_groups", info.NumRowGroups, "columns", len(info.Columns))
	for _, col := range info.Columns {
		log.Infow("Parquet column", "name", col.Name, "physical_type", col.PhysicalType)
	}
	return info, nil
}
