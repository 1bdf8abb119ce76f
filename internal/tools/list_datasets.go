package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"github.com/takashabe/bigquery-mcp/internal/mcp"
	"github.com/takashabe/bigquery-mcp/internal/schema"
	"github.com/takashabe/bigquery-mcp/pkg/types"
)

type DatasetLister interface {
	ListDatasetsAndTables(ctx context.Context, projectID string) (*schema.Report, error)
}

type ListDatasetsTool struct {
	inspector DatasetLister
	projectID string
}

type ListDatasetsArgs struct {
	Query string `json:"query"`
}

func NewListDatasetsTool(inspector DatasetLister, projectID string) *ListDatasetsTool {
	return &ListDatasetsTool{
		inspector: inspector,
		projectID: projectID,
	}
}

func (t *ListDatasetsTool) Name() string {
	return "get_list_of_datasets_by_project_id"
}

func (t *ListDatasetsTool) Description() string {
	return fmt.Sprintf("This tool returns the datasets and their tables available in the BigQuery project %s.", t.projectID)
}

func (t *ListDatasetsTool) Schema() *jsonschema.Schema {
	return types.ObjectSchema(map[string]*jsonschema.Schema{
		"query": types.StringProperty("The user's question to get the list of datasets by project ID"),
	}, "query")
}

// Execute ignores the query text; the listing always covers the configured project.
func (t *ListDatasetsTool) Execute(ctx context.Context, args map[string]interface{}) (*types.CallToolResult, error) {
	var params ListDatasetsArgs
	if err := mcp.Bind(args, &params); err != nil {
		return nil, err
	}

	report, err := t.inspector.ListDatasetsAndTables(ctx, t.projectID)
	if err != nil {
		return nil, err
	}
	if len(report.Datasets) == 0 {
		return types.TextResult(schema.NoDatasetsMessage), nil
	}

	text := fmt.Sprintf("The following datasets live in the BigQuery project %s:\n\n%s", t.projectID, report.String())
	return types.TextResult(text), nil
}
