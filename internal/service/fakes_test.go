package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jpirolla/aws-data-querying/internal/database/drivers/catalog"
	"github.com/jpirolla/aws-data-querying/internal/database/drivers/object_storage"
	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

func newObservedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

// memoryStore is an ObjectStore over a single in-memory bucket.
type memoryStore struct {
	bucket  string
	objects map[string][]byte
	calls   map[string]int

	putErr  error
	getErr  error
	listErr error
}

func newMemoryStore(bucket string) *memoryStore {
	return &memoryStore{
		bucket:  bucket,
		objects: make(map[string][]byte),
		calls:   make(map[string]int),
	}
}

func (s *memoryStore) checkBucket(bucket string) error {
	if bucket != s.bucket {
		return utils.NewErrorBuilder(utils.KindNotFound).WithOp("s3").WithMessage("NoSuchBucket: " + bucket).Build()
	}
	return nil
}

func (s *memoryStore) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	s.calls["PutObject"]++
	if s.putErr != nil {
		return s.putErr
	}
	if err := s.checkBucket(bucket); err != nil {
		return err
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *memoryStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	s.calls["GetObject"]++
	if s.getErr != nil {
		return nil, s.getErr
	}
	if err := s.checkBucket(bucket); err != nil {
		return nil, err
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, utils.NewErrorBuilder(utils.KindNotFound).WithOp("s3 get object").WithMessage("NoSuchKey: " + key).Build()
	}
	return data, nil
}

func (s *memoryStore) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	s.calls["ListKeys"]++
	if s.listErr != nil {
		return nil, s.listErr
	}
	if err := s.checkBucket(bucket); err != nil {
		return nil, err
	}
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) DeleteKeys(ctx context.Context, bucket string, keys []string) error {
	s.calls["DeleteKeys"]++
	if err := s.checkBucket(bucket); err != nil {
		return err
	}
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

func (s *memoryStore) totalCalls() int {
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// memoryCatalog keeps one definition per database.table.
type memoryCatalog struct {
	databases map[string]bool
	tables    map[string]catalog.TableDefinition
	calls     map[string]int

	ensureErr   error
	registerErr error
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		databases: make(map[string]bool),
		tables:    make(map[string]catalog.TableDefinition),
		calls:     make(map[string]int),
	}
}

func (c *memoryCatalog) EnsureDatabase(ctx context.Context, name, description string) (bool, error) {
	c.calls["EnsureDatabase"]++
	if c.ensureErr != nil {
		return false, c.ensureErr
	}
	if c.databases[name] {
		return false, nil
	}
	c.databases[name] = true
	return true, nil
}

func (c *memoryCatalog) RegisterTable(ctx context.Context, def catalog.TableDefinition) (bool, error) {
	c.calls["RegisterTable"]++
	if c.registerErr != nil {
		return false, c.registerErr
	}
	key := def.Database + "." + def.Table
	_, exists := c.tables[key]
	c.tables[key] = def
	return !exists, nil
}

// catalogEngine answers "SELECT * FROM <table> LIMIT n" by reading the Parquet
// objects at the cataloged table location.
type catalogEngine struct {
	store   *memoryStore
	catalog *memoryCatalog
	queries []string
}

func (e *catalogEngine) ReadSQLQuery(ctx context.Context, query, database string) (*model.RecordSet, error) {
	e.queries = append(e.queries, query)

	var (
		table string
		limit int
	)
	if _, err := fmt.Sscanf(query, "SELECT * FROM %s LIMIT %d", &table, &limit); err != nil {
		return nil, fmt.Errorf("unsupported query %q: %w", query, err)
	}

	def, ok := e.catalog.tables[database+"."+table]
	if !ok {
		return nil, utils.NewErrorBuilder(utils.KindRemote).WithOp("athena wait").WithMessage("TABLE_NOT_FOUND").Build()
	}
	bucket, prefix, err := object_storage.ParseS3URI(def.Location)
	if err != nil {
		return nil, err
	}

	rs, err := readParquetDataset(ctx, e.store, bucket, prefix)
	if err != nil {
		return nil, err
	}
	if len(rs.Rows) > limit {
		rs.Rows = rs.Rows[:limit]
	}
	return rs, nil
}

// fakeFederated hands out connections that record their queries and closes.
type fakeFederated struct {
	connectErr error
	queryErr   error
	result     *model.RecordSet

	connects []string
	queries  []string
	closes   int
}

func (f *fakeFederated) Connect(ctx context.Context, connectionName string) (FederatedConnection, error) {
	f.connects = append(f.connects, connectionName)
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &fakeFederatedConn{f: f}, nil
}

type fakeFederatedConn struct{ f *fakeFederated }

func (c *fakeFederatedConn) ReadSQLQuery(ctx context.Context, query string) (*model.RecordSet, error) {
	c.f.queries = append(c.f.queries, query)
	if c.f.queryErr != nil {
		return nil, c.f.queryErr
	}
	return c.f.result, nil
}

func (c *fakeFederatedConn) Close() error {
	c.f.closes++
	return nil
}

// countingEngine records calls without answering them.
type countingEngine struct {
	calls int
	err   error
}

func (e *countingEngine) ReadSQLQuery(ctx context.Context, query, database string) (*model.RecordSet, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return model.ProductsRecordSet(nil), nil
}
