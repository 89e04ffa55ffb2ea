package catalog

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/jpirolla/aws-data-querying/internal/metrics"
	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

// Hive storage classes for Parquet tables.
const (
	parquetSerDe        = "org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe"
	parquetInputFormat  = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat"
	parquetOutputFormat = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetOutputFormat"
)

// Glue connection property keys.
const (
	PropJDBCURL  = "JDBC_CONNECTION_URL"
	PropUsername = "USERNAME"
	PropPassword = "PASSWORD"
)

// GlueAPI is the subset of the Glue SDK client used here.
type GlueAPI interface {
	CreateDatabase(ctx context.Context, params *glue.CreateDatabaseInput, optFns ...func(*glue.Options)) (*glue.CreateDatabaseOutput, error)
	CreateTable(ctx context.Context, params *glue.CreateTableInput, optFns ...func(*glue.Options)) (*glue.CreateTableOutput, error)
	UpdateTable(ctx context.Context, params *glue.UpdateTableInput, optFns ...func(*glue.Options)) (*glue.UpdateTableOutput, error)
	GetConnection(ctx context.Context, params *glue.GetConnectionInput, optFns ...func(*glue.Options)) (*glue.GetConnectionOutput, error)
}

// TableDefinition describes a Parquet dataset to register in the catalog.
type TableDefinition struct {
	Database    string
	Table       string
	Location    string // s3:// URI of the dataset prefix
	Columns     []model.ColumnInfo
	Compression string
}

// ConnectionProperties are the JDBC settings stored on a Glue connection.
type ConnectionProperties struct {
	Name     string
	JDBCURL  string
	Username string
	Password string
}

// GlueCatalog wraps the Glue Data Catalog. Every method returns a
// *utils.AppError on failure.
type GlueCatalog struct {
	client  GlueAPI
	metrics *metrics.RemoteCalls
}

// NewGlueCatalog creates a catalog wrapper. m may be nil.
func NewGlueCatalog(client GlueAPI, m *metrics.RemoteCalls) *GlueCatalog {
	return &GlueCatalog{client: client, metrics: m}
}

// EnsureDatabase creates the database if it does not exist. created is false
// when the catalog reports the database already exists; that case is not an error.
func (c *GlueCatalog) EnsureDatabase(ctx context.Context, name, description string) (created bool, err error) {
	input := &glue.CreateDatabaseInput{
		DatabaseInput: &types.DatabaseInput{
			Name:        aws.String(name),
			Description: aws.String(description),
		},
	}

	start := time.Now()
	_, err = c.client.CreateDatabase(ctx, input)
	c.metrics.Observe(metrics.ServiceGlue, "CreateDatabase", start, err)
	if err != nil {
		appErr := utils.Classify("glue create database", err)
		if appErr.Kind == utils.KindAlreadyExists {
			return false, nil
		}
		return false, appErr
	}

	return true, nil
}

// RegisterTable creates the table, or replaces its definition when it already
// exists, so the catalog always holds exactly one entry for the name.
func (c *GlueCatalog) RegisterTable(ctx context.Context, def TableDefinition) (created bool, err error) {
	tableInput := buildTableInput(def)

	start := time.Now()
	_, err = c.client.CreateTable(ctx, &glue.CreateTableInput{
		DatabaseName: aws.String(def.Database),
		TableInput:   tableInput,
	})
	c.metrics.Observe(metrics.ServiceGlue, "CreateTable", start, err)
	if err == nil {
		return true, nil
	}

	appErr := utils.Classify("glue create table", err)
	if appErr.Kind != utils.KindAlreadyExists {
		return false, appErr
	}

	start = time.Now()
	_, err = c.client.UpdateTable(ctx, &glue.UpdateTableInput{
		DatabaseName: aws.String(def.Database),
		TableInput:   tableInput,
	})
	c.metrics.Observe(metrics.ServiceGlue, "UpdateTable", start, err)
	if err != nil {
		return false, utils.Classify("glue update table", err)
	}

	return false, nil
}

// GetConnection fetches the JDBC properties of a named Glue connection.
func (c *GlueCatalog) GetConnection(ctx context.Context, name string) (*ConnectionProperties, error) {
	start := time.Now()
	out, err := c.client.GetConnection(ctx, &glue.GetConnectionInput{
		Name: aws.String(name),
	})
	c.metrics.Observe(metrics.ServiceGlue, "GetConnection", start, err)
	if err != nil {
		return nil, utils.Classify("glue get connection", err)
	}
	if out.Connection == nil {
		return nil, utils.NewErrorBuilder(utils.KindNotFound).
			WithOp("glue get connection").
			WithMessage("connection " + name + " not found").
			Build()
	}

	props := out.Connection.ConnectionProperties
	return &ConnectionProperties{
		Name:     name,
		JDBCURL:  props[PropJDBCURL],
		Username: props[PropUsername],
		Password: props[PropPassword],
	}, nil
}

func buildTableInput(def TableDefinition) *types.TableInput {
	compression := def.Compression
	if compression == "" {
		compression = "snappy"
	}

	columns := make([]types.Column, 0, len(def.Columns))
	for _, col := range def.Columns {
		columns = append(columns, types.Column{
			Name: aws.String(col.Name),
			Type: aws.String(col.Type),
		})
	}

	return &types.TableInput{
		Name:      aws.String(def.Table),
		TableType: aws.String("EXTERNAL_TABLE"),
		Parameters: map[string]string{
			"EXTERNAL":        "TRUE",
			"classification":  "parquet",
			"compressionType": compression,
			"typeOfData":      "file",
		},
		StorageDescriptor: &types.StorageDescriptor{
			Columns:      columns,
			Location:     aws.String(def.Location),
			InputFormat:  aws.String(parquetInputFormat),
			OutputFormat: aws.String(parquetOutputFormat),
			SerdeInfo: &types.SerDeInfo{
				SerializationLibrary: aws.String(parquetSerDe),
				Parameters:           map[string]string{"serialization.format": "1"},
			},
			Parameters: map[string]string{
				"classification":  "parquet",
				"compressionType": compression,
			},
		},
	}
}
