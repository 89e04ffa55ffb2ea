package service

import (
	"context"

	"github.com/jpirolla/aws-data-querying/internal/database/drivers/catalog"
	"github.com/jpirolla/aws-data-querying/internal/database/drivers/warehouses"
	"github.com/jpirolla/aws-data-querying/internal/model"
)

// ObjectStore is the object storage surface the workflows use.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	DeleteKeys(ctx context.Context, bucket string, keys []string) error
}

// Catalog registers databases and tables.
type Catalog interface {
	EnsureDatabase(ctx context.Context, name, description string) (created bool, err error)
	RegisterTable(ctx context.Context, def catalog.TableDefinition) (created bool, err error)
}

// QueryEngine runs SQL against a catalog database.
type QueryEngine interface {
	ReadSQLQuery(ctx context.Context, query, database string) (*model.RecordSet, error)
}

// FederatedConnection is an explicitly opened session on the federated engine.
type FederatedConnection interface {
	ReadSQLQuery(ctx context.Context, query string) (*model.RecordSet, error)
	Close() error
}

// FederatedEngine opens sessions from named, pre-configured connections.
type FederatedEngine interface {
	Connect(ctx context.Context, connectionName string) (FederatedConnection, error)
}

type redshiftEngine struct {
	driver *warehouses.RedshiftDriver
}

// NewRedshiftEngine exposes a Redshift driver as a FederatedEngine.
func NewRedshiftEngine(driver *warehouses.RedshiftDriver) FederatedEngine {
	return &redshiftEngine{driver: driver}
}

func (e *redshiftEngine) Connect(ctx context.Context, connectionName string) (FederatedConnection, error) {
	conn, err := e.driver.Connect(ctx, connectionName)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
