package warehouses

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/jpirolla/aws-data-querying/internal/metrics"
	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

// AthenaAPI is the subset of the Athena SDK client used here.
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

// AthenaConfig holds Athena driver configuration
type AthenaConfig struct {
	Workgroup      string
	OutputLocation string // optional; the workgroup default is used when empty
	PollInterval   time.Duration
	MaxAttempts    int
}

// AthenaDriver runs SQL against the Glue catalog through Athena.
type AthenaDriver struct {
	client  AthenaAPI
	config  AthenaConfig
	metrics *metrics.RemoteCalls
}

// NewAthenaDriver creates a new Athena driver. m may be nil.
func NewAthenaDriver(client AthenaAPI, cfg AthenaConfig, m *metrics.RemoteCalls) *AthenaDriver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1800 // 30 minutes with 1s polling
	}
	return &AthenaDriver{client: client, config: cfg, metrics: m}
}

// ReadSQLQuery executes query against database and materializes every result row.
func (d *AthenaDriver) ReadSQLQuery(ctx context.Context, query, database string) (*model.RecordSet, error) {
	queryID, err := d.startQuery(ctx, query, database)
	if err != nil {
		return nil, err
	}

	if err := d.waitForCompletion(ctx, queryID); err != nil {
		return nil, err
	}

	rs, err := d.fetchResults(ctx, queryID)
	if err != nil {
		return nil, err
	}
	d.metrics.AddRows(metrics.ServiceAthena, rs.Len())
	return rs, nil
}

func (d *AthenaDriver) startQuery(ctx context.Context, query, database string) (string, error) {
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(query),
		QueryExecutionContext: &types.QueryExecutionContext{
			Database: aws.String(database),
		},
	}
	if d.config.Workgroup != "" {
		input.WorkGroup = aws.String(d.config.Workgroup)
	}
	if d.config.OutputLocation != "" {
		input.ResultConfiguration = &types.ResultConfiguration{
			OutputLocation: aws.String(d.config.OutputLocation),
		}
	}

	start := time.Now()
	out, err := d.client.StartQueryExecution(ctx, input)
	d.metrics.Observe(metrics.ServiceAthena, "StartQueryExecution", start, err)
	if err != nil {
		return "", utils.Classify("athena start query", err)
	}

	return aws.ToString(out.QueryExecutionId), nil
}

// waitForCompletion polls until the query leaves the queued/running states
func (d *AthenaDriver) waitForCompletion(ctx context.Context, queryID string) error {
	for attempts := 1; ; attempts++ {
		if attempts > d.config.MaxAttempts {
			return utils.NewErrorBuilder(utils.KindRemote).
				WithOp("athena wait").
				WithMessage(fmt.Sprintf("query %s still running after %d attempts", queryID, d.config.MaxAttempts)).
				Build()
		}

		start := time.Now()
		out, err := d.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(queryID),
		})
		d.metrics.Observe(metrics.ServiceAthena, "GetQueryExecution", start, err)
		if err != nil {
			return utils.Classify("athena get query execution", err)
		}

		var status *types.QueryExecutionStatus
		if out.QueryExecution != nil {
			status = out.QueryExecution.Status
		}
		if status == nil {
			return utils.NewErrorBuilder(utils.KindRemote).
				WithOp("athena wait").
				WithMessage("query " + queryID + " returned no status").
				Build()
		}

		switch status.State {
		case types.QueryExecutionStateSucceeded:
			return nil
		case types.QueryExecutionStateFailed, types.QueryExecutionStateCancelled:
			return utils.NewErrorBuilder(utils.KindRemote).
				WithOp("athena wait").
				WithMessage(fmt.Sprintf("query %s %s", queryID, status.State)).
				WithDetails(aws.ToString(status.StateChangeReason)).
				Build()
		case types.QueryExecutionStateQueued, types.QueryExecutionStateRunning:
			select {
			case <-ctx.Done():
				return utils.Classify("athena wait", ctx.Err())
			case <-time.After(d.config.PollInterval):
			}
		default:
			return utils.NewErrorBuilder(utils.KindRemote).
				WithOp("athena wait").
				WithMessage(fmt.Sprintf("unknown query state: %s", status.State)).
				Build()
		}
	}
}

// fetchResults pages through the query results. The first row of the first
// page repeats the column names and is dropped.
func (d *AthenaDriver) fetchResults(ctx context.Context, queryID string) (*model.RecordSet, error) {
	rs := &model.RecordSet{Rows: [][]interface{}{}}
	var nextToken *string
	first := true

	for {
		start := time.Now()
		out, err := d.client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(queryID),
			NextToken:        nextToken,
		})
		d.metrics.Observe(metrics.ServiceAthena, "GetQueryResults", start, err)
		if err != nil {
			return nil, utils.Classify("athena get query results", err)
		}
		if out.ResultSet == nil {
			break
		}

		rows := out.ResultSet.Rows
		if first {
			if meta := out.ResultSet.ResultSetMetadata; meta != nil {
				for _, col := range meta.ColumnInfo {
					rs.Columns = append(rs.Columns, model.ColumnInfo{
						Name:     aws.ToString(col.Name),
						Type:     normalizeAthenaType(aws.ToString(col.Type)),
						Nullable: col.Nullable != types.ColumnNullableNotNull,
					})
				}
			}
			if len(rows) > 0 && isHeaderRow(rows[0], rs.Columns) {
				rows = rows[1:]
			}
			first = false
		}

		for _, row := range rows {
			values, err := convertAthenaRow(row, rs.Columns)
			if err != nil {
				return nil, utils.NewErrorBuilder(utils.KindRemote).
					WithOp("athena decode row").
					WithCause(err).
					Build()
			}
			rs.Rows = append(rs.Rows, values)
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	return rs, nil
}

func isHeaderRow(row types.Row, columns []model.ColumnInfo) bool {
	if len(row.Data) != len(columns) {
		return false
	}
	for i, datum := range row.Data {
		if aws.ToString(datum.VarCharValue) != columns[i].Name {
			return false
		}
	}
	return true
}

func convertAthenaRow(row types.Row, columns []model.ColumnInfo) ([]interface{}, error) {
	values := make([]interface{}, len(row.Data))
	for i, datum := range row.Data {
		if datum.VarCharValue == nil {
			values[i] = nil
			continue
		}
		colType := model.TypeString
		if i < len(columns) {
			colType = columns[i].Type
		}
		v, err := parseTypedValue(*datum.VarCharValue, colType)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// normalizeAthenaType maps Athena/Trino result types onto catalog type names.
func normalizeAthenaType(t string) string {
	t = strings.ToLower(t)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "bigint":
		return model.TypeBigInt
	case "integer", "int", "smallint", "tinyint":
		return model.TypeInteger
	case "double", "float", "real":
		return model.TypeDouble
	case "decimal":
		return model.TypeDecimal
	case "boolean":
		return model.TypeBoolean
	default:
		return model.TypeString
	}
}

// parseTypedValue converts a textual cell into the Go value for its type.
func parseTypedValue(s, colType string) (interface{}, error) {
	switch colType {
	case model.TypeBigInt, model.TypeInteger:
		return strconv.ParseInt(s, 10, 64)
	case model.TypeDouble, model.TypeDecimal:
		return strconv.ParseFloat(s, 64)
	case model.TypeBoolean:
		return strconv.ParseBool(s)
	default:
		return s, nil
	}
}
