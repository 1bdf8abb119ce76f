// Package schema reads warehouse metadata used for discovery tool calls and to
// ground SQL generation. Nothing is cached: every call fetches fresh metadata.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/takashabe/bigquery-mcp/internal/warehouse"
)

// Metadata is the subset of the warehouse the inspector reads.
type Metadata interface {
	ListDatasets(ctx context.Context, projectID string) ([]string, error)
	ListTables(ctx context.Context, projectID, datasetID string) ([]string, error)
	TableSchema(ctx context.Context, tableID string) (warehouse.TableSchema, error)
}

type Inspector struct {
	meta   Metadata
	logger *slog.Logger
}

func NewInspector(meta Metadata, logger *slog.Logger) *Inspector {
	return &Inspector{meta: meta, logger: logger}
}

type DatasetListing struct {
	DatasetID string
	Tables    []string
	// Err is set when the tables of this dataset could not be listed.
	Err error
}

type Report struct {
	ProjectID string
	Datasets  []DatasetListing
}

// ListDatasetsAndTables enumerates every dataset of the project and the tables
// in each. A failure listing one dataset's tables is recorded on that dataset
// and enumeration continues.
func (i *Inspector) ListDatasetsAndTables(ctx context.Context, projectID string) (*Report, error) {
	datasets, err := i.meta.ListDatasets(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("Error accessing project '%s': %w", projectID, err)
	}

	report := &Report{ProjectID: projectID}
	for _, ds := range datasets {
		listing := DatasetListing{DatasetID: ds}
		tables, err := i.meta.ListTables(ctx, projectID, ds)
		if err != nil {
			i.logger.Warn("failed to list tables", "project", projectID, "dataset", ds, "error", err)
			listing.Err = err
		} else {
			listing.Tables = tables
		}
		report.Datasets = append(report.Datasets, listing)
	}
	return report, nil
}

// GetTableSchema fetches the schema of a fully qualified table ID. The ID is
// passed through as is; malformed IDs fail in the warehouse call.
func (i *Inspector) GetTableSchema(ctx context.Context, tableID string) (warehouse.TableSchema, error) {
	return i.meta.TableSchema(ctx, tableID)
}

const NoDatasetsMessage = "No datasets found in this project."

func (r *Report) String() string {
	if len(r.Datasets) == 0 {
		return NoDatasetsMessage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- Inspecting Project: %s ---\n", r.ProjectID)
	for _, ds := range r.Datasets {
		fmt.Fprintf(&b, "\nDataset: %s\n", ds.DatasetID)
		switch {
		case ds.Err != nil:
			fmt.Fprintf(&b, "   └── [Error listing tables: %v]\n", ds.Err)
		case len(ds.Tables) == 0:
			b.WriteString("   └── (No tables in this dataset)\n")
		default:
			for _, t := range ds.Tables {
				fmt.Fprintf(&b, "   └── Table: %s\n", t)
			}
		}
	}
	return b.String()
}

// Text renders the schema one column per line as "- name (TYPE, MODE)".
// RECORD children are listed under their parent with dotted names.
func Text(schema warehouse.TableSchema) string {
	var lines []string
	var walk func(prefix string, fields []warehouse.Field)
	walk = func(prefix string, fields []warehouse.Field) {
		for _, f := range fields {
			name := prefix + f.Name
			lines = append(lines, fmt.Sprintf("- %s (%s, %s)", name, f.Type, f.Mode))
			if len(f.Fields) > 0 {
				walk(name+".", f.Fields)
			}
		}
	}
	walk("", schema)
	return strings.Join(lines, "\n")
}
