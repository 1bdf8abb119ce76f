package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"github.com/takashabe/bigquery-mcp/internal/errs"
	"github.com/takashabe/bigquery-mcp/internal/mcp"
	"github.com/takashabe/bigquery-mcp/internal/review"
	"github.com/takashabe/bigquery-mcp/pkg/types"
)

type Reviewer interface {
	Review(ctx context.Context, question, tableID string) (*review.GeneratedQuery, error)
}

type CreateQueryTool struct {
	reviewer  Reviewer
	projectID string
}

type CreateQueryArgs struct {
	Question string `json:"question"`
	TableID  string `json:"table_id"`
}

func NewCreateQueryTool(reviewer Reviewer, projectID string) *CreateQueryTool {
	return &CreateQueryTool{
		reviewer:  reviewer,
		projectID: projectID,
	}
}

// createQueryResult is the review as returned to the caller.
type createQueryResult struct {
	review.GeneratedQuery
	Executable bool `json:"executable"`
}

func (t *CreateQueryTool) Name() string {
	return "create_custom_sql_query_to_review"
}

func (t *CreateQueryTool) Description() string {
	return "Create a custom SQL query for review based on a natural language question and a table ID. " +
		"The query is validated with a dry run and its estimated cost is reported. " +
		"This must be completed prior to any execution of the query; the returned confirmation_key is required by run_sql_query."
}

func (t *CreateQueryTool) Schema() *jsonschema.Schema {
	return types.ObjectSchema(map[string]*jsonschema.Schema{
		"question": types.StringProperty("Natural language question to generate a SQL query for."),
		"table_id": types.StringProperty(fmt.Sprintf("The fully qualified ID of the table to generate a SQL query for, in 3 parts. e.g. '%s.dataset_id.table_id'", t.projectID)),
	}, "question", "table_id")
}

func (t *CreateQueryTool) Execute(ctx context.Context, args map[string]interface{}) (*types.CallToolResult, error) {
	var params CreateQueryArgs
	if err := mcp.Bind(args, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Question) == "" || strings.TrimSpace(params.TableID) == "" {
		return nil, errs.New(errs.Configuration, "question and table_id are required")
	}

	q, err := t.reviewer.Review(ctx, params.Question, params.TableID)
	if err != nil {
		return nil, err
	}

	out := createQueryResult{GeneratedQuery: *q, Executable: q.Executable()}
	if !out.Executable {
		// run_sql_query must not be offered a key for a query that failed the dry run.
		out.ConfirmationKey = ""
	}
	resultJSON, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generated query: %w", err)
	}
	return types.TextResult(string(resultJSON)), nil
}
