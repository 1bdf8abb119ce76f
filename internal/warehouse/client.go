package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ClientOptions struct {
	ProjectID string
	Location  string
	// Credentials is a service account JSON key.
	Credentials []byte
	// UseStorageAPI reads query results through the BigQuery Storage Read API.
	UseStorageAPI bool
}

// Client is a BigQuery-backed warehouse. It is created once at startup and
// shared read-only by every component.
type Client struct {
	client    *bigquery.Client
	projectID string
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	var clientOpts []option.ClientOption
	if len(opts.Credentials) > 0 {
		clientOpts = append(clientOpts, option.WithCredentialsJSON(opts.Credentials))
	}

	client, err := bigquery.NewClient(ctx, opts.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	if opts.Location != "" {
		client.Location = opts.Location
	}
	if opts.UseStorageAPI {
		if err := client.EnableStorageReadClient(ctx, clientOpts...); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to enable BigQuery Storage read client: %w", err)
		}
	}

	return &Client{
		client:    client,
		projectID: opts.ProjectID,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) ProjectID() string {
	return c.projectID
}

func (c *Client) ListDatasets(ctx context.Context, projectID string) ([]string, error) {
	it := c.client.DatasetsInProject(ctx, projectID)

	var ids []string
	for {
		ds, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		ids = append(ids, ds.DatasetID)
	}
	return ids, nil
}

func (c *Client) ListTables(ctx context.Context, projectID, datasetID string) ([]string, error) {
	it := c.client.DatasetInProject(projectID, datasetID).Tables(ctx)

	var ids []string
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		ids = append(ids, t.TableID)
	}
	return ids, nil
}

// TableSchema fetches the schema of a fully qualified project.dataset.table.
func (c *Client) TableSchema(ctx context.Context, tableID string) (TableSchema, error) {
	project, dataset, table, err := splitTableID(tableID)
	if err != nil {
		return nil, err
	}

	md, err := c.client.DatasetInProject(project, dataset).Table(table).Metadata(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return convertSchema(md.Schema), nil
}

func (c *Client) DryRun(ctx context.Context, sql string) (*DryRunResult, error) {
	q := c.client.Query(sql)
	q.DryRun = true
	q.DisableQueryCache = true

	job, err := q.Run(ctx)
	if err != nil {
		return nil, classify(err)
	}
	st := job.LastStatus()
	if st == nil {
		return nil, errors.New("dry run returned no job status")
	}
	if err := st.Err(); err != nil {
		return nil, classify(err)
	}
	if st.Statistics == nil {
		return nil, errors.New("dry run returned no statistics")
	}
	return &DryRunResult{TotalBytesProcessed: st.Statistics.TotalBytesProcessed}, nil
}

func (c *Client) Query(ctx context.Context, sql string) (*ResultSet, error) {
	it, err := c.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, classify(err)
	}

	rs := &ResultSet{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		rs.Rows = append(rs.Rows, toAny(row))
	}
	// Schema is populated once the first page has been fetched.
	for _, f := range it.Schema {
		rs.Columns = append(rs.Columns, f.Name)
	}
	return rs, nil
}

// toAny converts a row, including nested REPEATED and RECORD values, from
// bigquery.Value to plain any.
func toAny(values []bigquery.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if nested, ok := v.([]bigquery.Value); ok {
			out[i] = toAny(nested)
			continue
		}
		out[i] = v
	}
	return out
}

// splitTableID takes the dataset and table from the last two dotted segments,
// so domain-scoped projects such as example.com:proj keep their dots.
func splitTableID(tableID string) (project, dataset, table string, err error) {
	invalid := fmt.Errorf("invalid table ID %q: expected project.dataset.table", tableID)
	i := strings.LastIndex(tableID, ".")
	if i < 0 {
		return "", "", "", invalid
	}
	rest, table := tableID[:i], tableID[i+1:]
	j := strings.LastIndex(rest, ".")
	if j < 0 {
		return "", "", "", invalid
	}
	project, dataset = rest[:j], rest[j+1:]
	if project == "" || dataset == "" || table == "" {
		return "", "", "", invalid
	}
	return project, dataset, table, nil
}

func convertSchema(schema bigquery.Schema) TableSchema {
	fields := make(TableSchema, 0, len(schema))
	for _, fs := range schema {
		f := Field{
			Name: fs.Name,
			Type: string(fs.Type),
			Mode: ModeNullable,
		}
		switch {
		case fs.Repeated:
			f.Mode = ModeRepeated
		case fs.Required:
			f.Mode = ModeRequired
		}
		if len(fs.Schema) > 0 {
			f.Fields = convertSchema(fs.Schema)
		}
		fields = append(fields, f)
	}
	return fields
}

// classify wraps rejections coming from the BigQuery API (REST, job status or
// Storage Read gRPC) in *APIError. Anything else is returned unchanged.
func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		apiErr := &APIError{Code: gErr.Code, Message: gErr.Message, Err: err}
		if len(gErr.Errors) > 0 {
			apiErr.Reason = gErr.Errors[0].Reason
		}
		if apiErr.Message == "" {
			apiErr.Message = err.Error()
		}
		return apiErr
	}

	var bqErr *bigquery.Error
	if errors.As(err, &bqErr) {
		return &APIError{Reason: bqErr.Reason, Message: bqErr.Message, Err: err}
	}

	if st, ok := status.FromError(err); ok && isAPICode(st.Code()) {
		return &APIError{Reason: st.Code().String(), Message: st.Message(), Err: err}
	}
	return err
}

func isAPICode(code codes.Code) bool {
	switch code {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
		codes.FailedPrecondition, codes.OutOfRange, codes.Unauthenticated, codes.AlreadyExists:
		return true
	}
	return false
}
