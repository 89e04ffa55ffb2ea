package warehouses

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver; Redshift speaks its wire protocol

	"github.com/jpirolla/aws-data-querying/internal/database/drivers/catalog"
	"github.com/jpirolla/aws-data-querying/internal/metrics"
	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

const (
	redshiftDefaultPort   = 5439
	redshiftDriverName    = "postgres"
	redshiftPingTimeout   = 10 * time.Second
	redshiftDefaultSSL    = "require"
	jdbcRedshiftURLPrefix = "jdbc:redshift://"
)

// ConnectionResolver looks up stored connection settings by name.
type ConnectionResolver interface {
	GetConnection(ctx context.Context, name string) (*catalog.ConnectionProperties, error)
}

// OpenFunc opens a database handle; sql.Open in production.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// RedshiftDriver opens connections to Amazon Redshift from named catalog
// connections, used for Spectrum queries over external schemas.
type RedshiftDriver struct {
	resolver   ConnectionResolver
	open       OpenFunc
	driverName string
	metrics    *metrics.RemoteCalls
}

// NewRedshiftDriver creates a new Redshift driver. m may be nil.
func NewRedshiftDriver(resolver ConnectionResolver, m *metrics.RemoteCalls) *RedshiftDriver {
	return &RedshiftDriver{
		resolver:   resolver,
		open:       sql.Open,
		driverName: redshiftDriverName,
		metrics:    m,
	}
}

// WithOpener replaces the database/sql opener and driver name.
func (d *RedshiftDriver) WithOpener(driverName string, open OpenFunc) *RedshiftDriver {
	d.driverName = driverName
	d.open = open
	return d
}

// RedshiftEndpoint is a parsed JDBC connection target.
type RedshiftEndpoint struct {
	Host     string
	Port     int
	Database string
}

// ParseJDBCURL parses jdbc:redshift://host[:port]/database[?params].
func ParseJDBCURL(jdbcURL string) (*RedshiftEndpoint, error) {
	if !strings.HasPrefix(strings.ToLower(jdbcURL), jdbcRedshiftURLPrefix) {
		return nil, fmt.Errorf("unsupported JDBC URL: %q", jdbcURL)
	}

	// Some drivers separate properties with ';'.
	raw := strings.SplitN(jdbcURL[len("jdbc:"):], ";", 2)[0]
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JDBC URL: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("JDBC URL has no host: %q", jdbcURL)
	}

	ep := &RedshiftEndpoint{
		Host:     u.Hostname(),
		Port:     redshiftDefaultPort,
		Database: strings.TrimPrefix(u.Path, "/"),
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid JDBC URL port: %w", err)
		}
		ep.Port = port
	}
	if ep.Database == "" {
		return nil, fmt.Errorf("JDBC URL has no database: %q", jdbcURL)
	}
	return ep, nil
}

// BuildDSN builds a lib/pq keyword/value connection string
func BuildDSN(ep *RedshiftEndpoint, user, password string) string {
	parts := []string{
		"host=" + quoteDSNValue(ep.Host),
		"port=" + strconv.Itoa(ep.Port),
		"dbname=" + quoteDSNValue(ep.Database),
		"sslmode=" + redshiftDefaultSSL,
	}
	if user != "" {
		parts = append(parts, "user="+quoteDSNValue(user))
	}
	if password != "" {
		parts = append(parts, "password="+quoteDSNValue(password))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Connect resolves the named connection, opens it and verifies it with a ping.
// The caller owns the returned connection and must Close it.
func (d *RedshiftDriver) Connect(ctx context.Context, connectionName string) (*RedshiftConnection, error) {
	props, err := d.resolver.GetConnection(ctx, connectionName)
	if err != nil {
		return nil, err
	}

	ep, err := ParseJDBCURL(props.JDBCURL)
	if err != nil {
		return nil, utils.NewErrorBuilder(utils.KindRemote).
			WithOp("redshift connect").
			WithMessage("connection " + connectionName + " has an unusable JDBC URL").
			WithCause(err).
			Build()
	}

	db, err := d.open(d.driverName, BuildDSN(ep, props.Username, props.Password))
	if err != nil {
		return nil, utils.Classify("redshift open", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, redshiftPingTimeout)
	defer cancel()

	start := time.Now()
	err = db.PingContext(pingCtx)
	d.metrics.Observe(metrics.ServiceRedshift, "Connect", start, err)
	if err != nil {
		_ = db.Close()
		return nil, utils.Classify("redshift connect", err)
	}

	return &RedshiftConnection{db: db, metrics: d.metrics}, nil
}

// RedshiftConnection is an open Redshift session.
type RedshiftConnection struct {
	db      *sql.DB
	metrics *metrics.RemoteCalls
}

// ReadSQLQuery runs query and materializes every row.
func (c *RedshiftConnection) ReadSQLQuery(ctx context.Context, query string) (*model.RecordSet, error) {
	start := time.Now()
	rs, err := c.readSQLQuery(ctx, query)
	c.metrics.Observe(metrics.ServiceRedshift, "Query", start, err)
	if err != nil {
		return nil, utils.Classify("redshift query", err)
	}
	c.metrics.AddRows(metrics.ServiceRedshift, rs.Len())
	return rs, nil
}

func (c *RedshiftConnection) readSQLQuery(ctx context.Context, query string) (*model.RecordSet, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	rs := &model.RecordSet{
		Columns: make([]model.ColumnInfo, len(colTypes)),
		Rows:    [][]interface{}{},
	}
	for i, ct := range colTypes {
		nullable, _ := ct.Nullable()
		rs.Columns[i] = model.ColumnInfo{
			Name:     ct.Name(),
			Type:     normalizeRedshiftType(ct.DatabaseTypeName()),
			Nullable: nullable,
		}
	}

	for rows.Next() {
		raw := make([]interface{}, len(colTypes))
		ptrs := make([]interface{}, len(colTypes))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		values := make([]interface{}, len(raw))
		for i, v := range raw {
			values[i], err = normalizeRedshiftValue(v, rs.Columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", rs.Columns[i].Name, err)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}

	return rs, rows.Err()
}

// Close releases the session.
func (c *RedshiftConnection) Close() error {
	return c.db.Close()
}

// normalizeRedshiftType maps Postgres wire type names onto catalog type names.
func normalizeRedshiftType(t string) string {
	switch strings.ToUpper(t) {
	case "INT8":
		return model.TypeBigInt
	case "INT2", "INT4":
		return model.TypeInteger
	case "FLOAT4", "FLOAT8":
		return model.TypeDouble
	case "NUMERIC":
		return model.TypeDecimal
	case "BOOL":
		return model.TypeBoolean
	default:
		return model.TypeString
	}
}

// normalizeRedshiftValue converts driver values into the record set cell types.
func normalizeRedshiftValue(v interface{}, colType string) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return parseTypedValue(string(val), colType)
	case string:
		return parseTypedValue(val, colType)
	case int32:
		return int64(val), nil
	case float32:
		return float64(val), nil
	case time.Time:
		return val.Format(time.RFC3339Nano), nil
	default:
		return val, nil
	}
}
