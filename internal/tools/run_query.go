package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"github.com/takashabe/bigquery-mcp/internal/mcp"
	"github.com/takashabe/bigquery-mcp/pkg/types"
)

type QueryExecutor interface {
	Execute(ctx context.Context, sql, confirmationKey string) (string, error)
}

type RunQueryTool struct {
	executor QueryExecutor
}

type RunQueryArgs struct {
	SQLQuery        string `json:"sql_query"`
	ConfirmationKey string `json:"confirmation_key"`
}

func NewRunQueryTool(executor QueryExecutor) *RunQueryTool {
	return &RunQueryTool{executor: executor}
}

func (t *RunQueryTool) Name() string {
	return "run_sql_query"
}

func (t *RunQueryTool) Description() string {
	return "Run the user's reviewed SQL query and return the rows as a text table. " +
		"Pass the query exactly as reviewed together with the confirmation_key from create_custom_sql_query_to_review."
}

func (t *RunQueryTool) Schema() *jsonschema.Schema {
	return types.ObjectSchema(map[string]*jsonschema.Schema{
		"sql_query":        types.StringProperty("The complete sql query with no modifications to be run on the user's BigQuery instance."),
		"confirmation_key": types.StringProperty("The confirmation key issued when the query was reviewed."),
	}, "sql_query", "confirmation_key")
}

func (t *RunQueryTool) Execute(ctx context.Context, args map[string]interface{}) (*types.CallToolResult, error) {
	var params RunQueryArgs
	if err := mcp.Bind(args, &params); err != nil {
		return nil, err
	}

	table, err := t.executor.Execute(ctx, params.SQLQuery, params.ConfirmationKey)
	if err != nil {
		return nil, err
	}
	return types.TextResult(table), nil
}
