package warehouse

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestConvertSchema(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "id", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "name", Type: bigquery.StringFieldType},
		{Name: "tags", Type: bigquery.StringFieldType, Repeated: true},
		{Name: "address", Type: bigquery.RecordFieldType, Schema: bigquery.Schema{
			{Name: "city", Type: bigquery.StringFieldType},
		}},
	}

	want := TableSchema{
		{Name: "id", Type: "INTEGER", Mode: ModeRequired},
		{Name: "name", Type: "STRING", Mode: ModeNullable},
		{Name: "tags", Type: "STRING", Mode: ModeRepeated},
		{Name: "address", Type: "RECORD", Mode: ModeNullable, Fields: []Field{
			{Name: "city", Type: "STRING", Mode: ModeNullable},
		}},
	}

	if got := convertSchema(schema); !reflect.DeepEqual(got, want) {
		t.Errorf("convertSchema() = %+v, want %+v", got, want)
	}
}

func TestSplitTableID(t *testing.T) {
	tests := []struct {
		id          string
		wantProject string
		wantDataset string
		wantTable   string
		wantErr     bool
	}{
		{id: "proj.ds.users", wantProject: "proj", wantDataset: "ds", wantTable: "users"},
		{id: "example.com:proj.ds.tbl", wantProject: "example.com:proj", wantDataset: "ds", wantTable: "tbl"},
		{id: "ds.users", wantErr: true},
		{id: "proj..users", wantErr: true},
		{id: ".ds.users", wantErr: true},
		{id: "proj.ds.", wantErr: true},
		{id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, d, tb, err := splitTableID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitTableID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if !tt.wantErr && (p != tt.wantProject || d != tt.wantDataset || tb != tt.wantTable) {
				t.Errorf("splitTableID(%q) = %q, %q, %q", tt.id, p, d, tb)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantAPI bool
	}{
		{
			name:    "googleapi bad request",
			err:     &googleapi.Error{Code: 400, Message: "Syntax error: Unexpected keyword FROM"},
			wantAPI: true,
		},
		{
			name:    "wrapped googleapi not found",
			err:     fmt.Errorf("query: %w", &googleapi.Error{Code: 404, Message: "Not found: Table proj:ds.missing"}),
			wantAPI: true,
		},
		{
			name:    "job status error",
			err:     &bigquery.Error{Reason: "invalidQuery", Message: "Unrecognized name: foo"},
			wantAPI: true,
		},
		{
			name:    "grpc permission denied",
			err:     status.Error(codes.PermissionDenied, "denied"),
			wantAPI: true,
		},
		{
			name: "grpc unavailable",
			err:  status.Error(codes.Unavailable, "connection reset"),
		},
		{
			name: "context deadline",
			err:  context.DeadlineExceeded,
		},
		{
			name: "plain error",
			err:  errors.New("json: cannot unmarshal"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if IsAPIError(got) != tt.wantAPI {
				t.Fatalf("IsAPIError(classify(%v)) = %v, want %v", tt.err, !tt.wantAPI, tt.wantAPI)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyMessage(t *testing.T) {
	err := classify(&googleapi.Error{
		Code:    400,
		Message: "Syntax error",
		Errors:  []googleapi.ErrorItem{{Reason: "invalidQuery", Message: "Syntax error"}},
	})
	if got, want := err.Error(), "invalidQuery: Syntax error"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestToAny(t *testing.T) {
	row := []bigquery.Value{int64(1), "a", []bigquery.Value{"x", []bigquery.Value{int64(2)}}}
	want := []any{int64(1), "a", []any{"x", []any{int64(2)}}}
	if got := toAny(row); !reflect.DeepEqual(got, want) {
		t.Errorf("toAny() = %#v, want %#v", got, want)
	}
}
