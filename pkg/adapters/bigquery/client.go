package bigquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"cloud.google.com/go/bigquery"
	"github.com/leapstack-labs/lookpipe/pkg/adapter"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/leapstack-labs/lookpipe/pkg/frame"
	"github.com/leapstack-labs/lookpipe/pkg/schema"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Default NUMERIC precision and scale when the column is not parameterized.
const (
	numericPrecision = 38
	numericScale     = 9
)

var dialect = adapter.Dialect{
	Name:        "bigquery",
	Placeholder: adapter.PlaceholderAt,
	PathQuote:   '`',
}

// Adapter implements the adapter.Adapter interface for BigQuery.
type Adapter struct {
	client *bigquery.Client
	cfg    adapter.Config
	logger *slog.Logger
}

// New creates a new BigQuery adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// Dialect returns the BigQuery query dialect.
func (a *Adapter) Dialect() adapter.Dialect {
	return dialect
}

// serviceAccount holds the fields read from a service account key file.
type serviceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// loadServiceAccount reads and checks a service account key file.
func loadServiceAccount(path string) ([]byte, *serviceAccount, error) {
	data, err := adapter.ReadCredentials(path)
	if err != nil {
		return nil, nil, err
	}
	var sa serviceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, nil, &core.CredentialsError{Path: path, Err: fmt.Errorf("invalid service account JSON: %w", err)}
	}
	if sa.ProjectID == "" {
		return nil, nil, &core.CredentialsError{Path: path, Err: errors.New("service account has no project_id")}
	}
	return data, &sa, nil
}

// Connect authenticates with the service account key file referenced by
// cfg.CredentialsPath. Jobs are billed to cfg.Project when set, otherwise
// to the key's own project.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	data, sa, err := loadServiceAccount(cfg.CredentialsPath)
	if err != nil {
		return err
	}

	project := cfg.Project
	if project == "" {
		project = sa.ProjectID
	}

	a.logger.Debug("connecting to bigquery",
		slog.String("project", project),
		slog.String("service_account", sa.ClientEmail))

	client, err := bigquery.NewClient(ctx, project, option.WithCredentialsJSON(data))
	if err != nil {
		return &core.CredentialsError{Path: cfg.CredentialsPath, Err: err}
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	a.client = client
	a.cfg = cfg
	return nil
}

// Close releases the client.
func (a *Adapter) Close() error {
	if a.client == nil {
		return nil
	}
	a.logger.Debug("closing bigquery client")
	err := a.client.Close()
	a.client = nil
	return err
}

// Query runs a standard SQL query with named parameters and reads every row.
func (a *Adapter) Query(ctx context.Context, sql string, params ...adapter.Param) (*adapter.Result, error) {
	if a.client == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	q := a.client.Query(sql)
	for _, p := range params {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Name: p.Name, Value: p.Value})
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	result := &adapter.Result{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating rows: %w", err)
		}
		if result.Fields == nil {
			result.Fields = fieldsOf(it.Schema)
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = convertValue(v, result.Fields[i].Type)
		}
		result.Rows = append(result.Rows, values)
	}
	if result.Fields == nil {
		result.Fields = fieldsOf(it.Schema)
	}

	return result, nil
}

func fieldsOf(s bigquery.Schema) []frame.Field {
	fields := make([]frame.Field, len(s))
	for i, fs := range s {
		fields[i] = frame.Field{Name: fs.Name, Type: typeOf(fs)}
	}
	return fields
}

// typeOf maps a BigQuery column to a frame type. Repeated, nested and
// exotic columns are carried as their string rendering.
func typeOf(fs *bigquery.FieldSchema) schema.DataType {
	if fs.Repeated {
		return schema.String
	}
	switch fs.Type {
	case bigquery.IntegerFieldType:
		return schema.Int64
	case bigquery.FloatFieldType, bigquery.BigNumericFieldType:
		return schema.Float64
	case bigquery.NumericFieldType:
		if fs.Precision > 0 && fs.Scale <= fs.Precision {
			return schema.Decimal(int(fs.Precision), int(fs.Scale))
		}
		return schema.Decimal(numericPrecision, numericScale)
	case bigquery.BooleanFieldType:
		return schema.Boolean
	case bigquery.DateFieldType:
		return schema.Date
	case bigquery.DateTimeFieldType, bigquery.TimestampFieldType:
		return schema.Datetime
	default:
		return schema.String
	}
}

// convertValue adapts BigQuery values for columns carried as strings.
func convertValue(v bigquery.Value, t schema.DataType) any {
	if v == nil {
		return nil
	}
	if t.Kind != schema.KindString {
		return v
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case *big.Rat:
		return x.FloatString(numericScale)
	}
	return fmt.Sprint(v)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
