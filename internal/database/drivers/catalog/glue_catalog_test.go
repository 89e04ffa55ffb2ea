package catalog

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpirolla/aws-data-querying/internal/metrics"
	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

// mockGlueClient is an in-memory catalog holding one definition per table name.
type mockGlueClient struct {
	databases map[string]bool
	tables    map[string]*types.TableInput
	calls     map[string]int

	createDatabaseErr error
	createTableErr    error
	getConnectionFunc func(ctx context.Context, params *glue.GetConnectionInput, optFns ...func(*glue.Options)) (*glue.GetConnectionOutput, error)
}

func newMockGlueClient() *mockGlueClient {
	return &mockGlueClient{
		databases: make(map[string]bool),
		tables:    make(map[string]*types.TableInput),
		calls:     make(map[string]int),
	}
}

func (m *mockGlueClient) CreateDatabase(ctx context.Context, params *glue.CreateDatabaseInput, optFns ...func(*glue.Options)) (*glue.CreateDatabaseOutput, error) {
	m.calls["CreateDatabase"]++
	if m.createDatabaseErr != nil {
		return nil, m.createDatabaseErr
	}
	name := aws.ToString(params.DatabaseInput.Name)
	if m.databases[name] {
		return nil, &types.AlreadyExistsException{Message: aws.String("Database already exists.")}
	}
	m.databases[name] = true
	return &glue.CreateDatabaseOutput{}, nil
}

func (m *mockGlueClient) CreateTable(ctx context.Context, params *glue.CreateTableInput, optFns ...func(*glue.Options)) (*glue.CreateTableOutput, error) {
	m.calls["CreateTable"]++
	if m.createTableErr != nil {
		return nil, m.createTableErr
	}
	key := aws.ToString(params.DatabaseName) + "." + aws.ToString(params.TableInput.Name)
	if _, ok := m.tables[key]; ok {
		return nil, &types.AlreadyExistsException{Message: aws.String("Table already exists.")}
	}
	m.tables[key] = params.TableInput
	return &glue.CreateTableOutput{}, nil
}

func (m *mockGlueClient) UpdateTable(ctx context.Context, params *glue.UpdateTableInput, optFns ...func(*glue.Options)) (*glue.UpdateTableOutput, error) {
	m.calls["UpdateTable"]++
	key := aws.ToString(params.DatabaseName) + "." + aws.ToString(params.TableInput.Name)
	if _, ok := m.tables[key]; !ok {
		return nil, &types.EntityNotFoundException{Message: aws.String("Table not found.")}
	}
	m.tables[key] = params.TableInput
	return &glue.UpdateTableOutput{}, nil
}

func (m *mockGlueClient) GetConnection(ctx context.Context, params *glue.GetConnectionInput, optFns ...func(*glue.Options)) (*glue.GetConnectionOutput, error) {
	m.calls["GetConnection"]++
	return m.getConnectionFunc(ctx, params, optFns...)
}

func fruitTable() TableDefinition {
	return TableDefinition{
		Database: "fruit_db",
		Table:    "fruit_tbl",
		Location: "s3://my-bucket/fruits/",
		Columns:  model.ProductColumns,
	}
}

func TestEnsureDatabase(t *testing.T) {
	mock := newMockGlueClient()
	cat := NewGlueCatalog(mock, nil)
	ctx := context.Background()

	created, err := cat.EnsureDatabase(ctx, "fruit_db", "Database for fruit products.")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = cat.EnsureDatabase(ctx, "fruit_db", "Database for fruit products.")
	require.NoError(t, err, "already exists must not be a failure")
	assert.False(t, created)
}

func TestEnsureDatabaseOtherErrors(t *testing.T) {
	mock := newMockGlueClient()
	mock.createDatabaseErr = &types.AccessDeniedException{Message: aws.String("not allowed")}
	cat := NewGlueCatalog(mock, nil)

	created, err := cat.EnsureDatabase(context.Background(), "fruit_db", "")
	require.Error(t, err)
	assert.False(t, created)
	assert.True(t, utils.IsKind(err, utils.KindPermission))
}

func TestRegisterTableOverwrites(t *testing.T) {
	mock := newMockGlueClient()
	reg := prometheus.NewRegistry()
	m := metrics.NewRemoteCalls(reg)
	cat := NewGlueCatalog(mock, m)
	ctx := context.Background()

	created, err := cat.RegisterTable(ctx, fruitTable())
	require.NoError(t, err)
	assert.True(t, created)

	moved := fruitTable()
	moved.Location = "s3://my-bucket/fruits-v2/"
	created, err = cat.RegisterTable(ctx, moved)
	require.NoError(t, err)
	assert.False(t, created)

	require.Len(t, mock.tables, 1)
	assert.Equal(t, "s3://my-bucket/fruits-v2/", aws.ToString(mock.tables["fruit_db.fruit_tbl"].StorageDescriptor.Location))
	assert.Equal(t, 1, mock.calls["UpdateTable"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues(metrics.ServiceGlue, "CreateTable", "already_exists")))
}

func TestRegisterTableDefinition(t *testing.T) {
	mock := newMockGlueClient()
	cat := NewGlueCatalog(mock, nil)

	_, err := cat.RegisterTable(context.Background(), fruitTable())
	require.NoError(t, err)

	table := mock.tables["fruit_db.fruit_tbl"]
	require.NotNil(t, table)
	assert.Equal(t, "EXTERNAL_TABLE", aws.ToString(table.TableType))
	assert.Equal(t, "parquet", table.Parameters["classification"])
	assert.Equal(t, "snappy", table.Parameters["compressionType"])

	sd := table.StorageDescriptor
	assert.Equal(t, parquetSerDe, aws.ToString(sd.SerdeInfo.SerializationLibrary))
	require.Len(t, sd.Columns, 5)
	assert.Equal(t, "product_id", aws.ToString(sd.Columns[0].Name))
	assert.Equal(t, "bigint", aws.ToString(sd.Columns[0].Type))
	assert.Equal(t, "boolean", aws.ToString(sd.Columns[4].Type))
}

func TestRegisterTableCreateFailure(t *testing.T) {
	mock := newMockGlueClient()
	mock.createTableErr = &types.AccessDeniedException{Message: aws.String("not allowed")}
	cat := NewGlueCatalog(mock, nil)

	created, err := cat.RegisterTable(context.Background(), fruitTable())
	require.Error(t, err)
	assert.False(t, created)
	assert.True(t, utils.IsKind(err, utils.KindPermission))
	assert.Zero(t, mock.calls["UpdateTable"])
}

func TestGetConnection(t *testing.T) {
	mock := newMockGlueClient()
	mock.getConnectionFunc = func(ctx context.Context, params *glue.GetConnectionInput, optFns ...func(*glue.Options)) (*glue.GetConnectionOutput, error) {
		assert.Equal(t, "redshift-conn", aws.ToString(params.Name))
		return &glue.GetConnectionOutput{
			Connection: &types.Connection{
				Name: params.Name,
				ConnectionProperties: map[string]string{
					PropJDBCURL:  "jdbc:redshift://cluster.example.com:5439/dev",
					PropUsername: "awsuser",
					PropPassword: "secret",
				},
			},
		}, nil
	}
	cat := NewGlueCatalog(mock, nil)

	props, err := cat.GetConnection(context.Background(), "redshift-conn")
	require.NoError(t, err)
	assert.Equal(t, "jdbc:redshift://cluster.example.com:5439/dev", props.JDBCURL)
	assert.Equal(t, "awsuser", props.Username)
	assert.Equal(t, "secret", props.Password)
}

func TestGetConnectionNotFound(t *testing.T) {
	mock := newMockGlueClient()
	mock.getConnectionFunc = func(ctx context.Context, params *glue.GetConnectionInput, optFns ...func(*glue.Options)) (*glue.GetConnectionOutput, error) {
		return nil, &types.EntityNotFoundException{Message: aws.String("Connection not found")}
	}
	cat := NewGlueCatalog(mock, nil)

	_, err := cat.GetConnection(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))

	mock.getConnectionFunc = func(ctx context.Context, params *glue.GetConnectionInput, optFns ...func(*glue.Options)) (*glue.GetConnectionOutput, error) {
		return &glue.GetConnectionOutput{}, nil
	}
	_, err = cat.GetConnection(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
}
