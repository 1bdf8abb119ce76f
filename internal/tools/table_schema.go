package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"github.com/takashabe/bigquery-mcp/internal/errs"
	"github.com/takashabe/bigquery-mcp/internal/mcp"
	"github.com/takashabe/bigquery-mcp/internal/warehouse"
	"github.com/takashabe/bigquery-mcp/pkg/types"
)

type SchemaGetter interface {
	GetTableSchema(ctx context.Context, tableID string) (warehouse.TableSchema, error)
}

type TableSchemaTool struct {
	inspector SchemaGetter
}

type TableSchemaArgs struct {
	TableID string `json:"table_id"`
}

func NewTableSchemaTool(inspector SchemaGetter) *TableSchemaTool {
	return &TableSchemaTool{inspector: inspector}
}

func (t *TableSchemaTool) Name() string {
	return "get_table_schema"
}

func (t *TableSchemaTool) Description() string {
	return "This tool returns the schema for a specific BigQuery table."
}

func (t *TableSchemaTool) Schema() *jsonschema.Schema {
	return types.ObjectSchema(map[string]*jsonschema.Schema{
		"table_id": types.StringProperty("The ID of the table to get the schema for. e.g. 'project_id.dataset_id.table_id'"),
	}, "table_id")
}

func (t *TableSchemaTool) Execute(ctx context.Context, args map[string]interface{}) (*types.CallToolResult, error) {
	var params TableSchemaArgs
	if err := mcp.Bind(args, &params); err != nil {
		return nil, err
	}
	if params.TableID == "" {
		return nil, errs.New(errs.Configuration, "table_id is required")
	}

	s, err := t.inspector.GetTableSchema(ctx, params.TableID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema for %s: %w", params.TableID, err)
	}
	if s == nil {
		s = warehouse.TableSchema{}
	}

	resultJSON, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return types.TextResult(string(resultJSON)), nil
}
