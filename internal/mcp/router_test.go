package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"github.com/takashabe/bigquery-mcp/internal/errs"
	"github.com/takashabe/bigquery-mcp/pkg/types"
)

type echoTool struct {
	got    map[string]interface{}
	err    error
	panics bool
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "Echo the message back" }

func (e *echoTool) Schema() *jsonschema.Schema {
	return types.ObjectSchema(map[string]*jsonschema.Schema{
		"message": types.StringProperty("Message to echo"),
		"count":   {Type: "integer"},
	}, "message")
}

func (e *echoTool) Execute(ctx context.Context, args map[string]interface{}) (*types.CallToolResult, error) {
	if e.panics {
		panic("boom")
	}
	e.got = args
	if e.err != nil {
		return nil, e.err
	}
	return types.TextResult(args["message"].(string)), nil
}

func newRouter(tools ...Tool) *Router {
	r := NewRouter(types.Implementation{Name: "bigquery-mcp", Version: "test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, tool := range tools {
		if err := r.RegisterTool(tool); err != nil {
			panic(err)
		}
	}
	return r
}

func TestDispatchInitialize(t *testing.T) {
	r := newRouter()
	got, err := r.Dispatch(context.Background(), MethodInitialize, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	res, ok := got.(types.InitializeResult)
	if !ok {
		t.Fatalf("Dispatch() = %T, want InitializeResult", got)
	}
	if res.ProtocolVersion != types.ProtocolVersion || res.ServerInfo.Name != "bigquery-mcp" {
		t.Errorf("InitializeResult = %+v", res)
	}
	if !res.Capabilities.Tools.List || !res.Capabilities.Tools.Call {
		t.Errorf("capabilities = %+v, want list and call", res.Capabilities)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	r := newRouter()
	for _, method := range []string{"", "resources/list", "tools/delete", "Initialize"} {
		t.Run(method, func(t *testing.T) {
			_, err := r.Dispatch(context.Background(), method, nil)
			if !errs.Is(err, errs.MethodNotFound) {
				t.Errorf("Dispatch(%q) error = %v, want method_not_found", method, err)
			}
		})
	}
}

func TestDispatchToolsList(t *testing.T) {
	r := newRouter(&echoTool{})
	got, err := r.Dispatch(context.Background(), MethodToolsList, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	res := got.(types.ListToolsResult)
	if len(res.Tools) != 1 || res.Tools[0].Name != "echo" {
		t.Fatalf("tools = %+v", res.Tools)
	}

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"additionalProperties":{"not":{}}`, `"description":"Message to echo"`, `"required":["message"]`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("listing = %s, want it to contain %s", b, want)
		}
	}
}

func TestRegisterToolRejectsBrokenSchema(t *testing.T) {
	r := NewRouter(types.Implementation{Name: "bigquery-mcp"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := r.RegisterTool(&brokenTool{}); err == nil {
		t.Fatal("RegisterTool() error = nil, want schema error")
	}
	if got := r.ListTools(); len(got.Tools) != 0 {
		t.Errorf("tools = %+v, want none", got.Tools)
	}
}

type brokenTool struct{ echoTool }

func (b *brokenTool) Schema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Types: []string{"object"}}
}

func TestDispatchToolsCall(t *testing.T) {
	tests := []struct {
		name      string
		params    string
		wantText  string
		wantError bool
	}{
		{name: "object arguments", params: `{"name":"echo","arguments":{"message":"hi"}}`, wantText: "hi"},
		{name: "string encoded arguments", params: `{"name":"echo","arguments":"{\"message\":\"hi\",\"count\":2}"}`, wantText: "hi"},
		{name: "unknown tool", params: `{"name":"nope","arguments":{}}`, wantText: "Tool not found: nope", wantError: true},
		{name: "undecodable string", params: `{"name":"echo","arguments":"not json"}`, wantText: invalidArgumentsMessage, wantError: true},
		{name: "array arguments", params: `{"name":"echo","arguments":[1,2]}`, wantText: invalidArgumentsMessage, wantError: true},
		{name: "missing required", params: `{"name":"echo","arguments":{}}`, wantText: `required: missing properties: ["message"]`, wantError: true},
		{name: "wrong type", params: `{"name":"echo","arguments":{"message":1}}`, wantText: `has type "integer", want "string"`, wantError: true},
		{name: "extra property", params: `{"name":"echo","arguments":{"message":"hi","extra":true}}`, wantText: "/additionalProperties", wantError: true},
		{name: "fractional integer", params: `{"name":"echo","arguments":{"message":"hi","count":1.5}}`, wantText: `has type "number", want "integer"`, wantError: true},
		{name: "whole float is an integer", params: `{"name":"echo","arguments":{"message":"hi","count":2.0}}`, wantText: "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&echoTool{})
			got, err := r.Dispatch(context.Background(), MethodToolsCall, json.RawMessage(tt.params))
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			res := got.(*types.CallToolResult)
			if res.IsError != tt.wantError {
				t.Errorf("IsError = %v, want %v", res.IsError, tt.wantError)
			}
			if len(res.Content) != 1 || !strings.Contains(res.Content[0].Text, tt.wantText) {
				t.Errorf("content = %+v, want text containing %q", res.Content, tt.wantText)
			}
		})
	}
}

func TestCallToolStringEquivalentToObject(t *testing.T) {
	tool := &echoTool{}
	r := newRouter(tool)

	r.CallTool(context.Background(), "echo", json.RawMessage(`{"message":"SELECT 1","count":3}`))
	fromObject := tool.got
	r.CallTool(context.Background(), "echo", json.RawMessage(`"{\"message\":\"SELECT 1\",\"count\":3}"`))
	fromString := tool.got

	if fromObject["message"] != fromString["message"] || fromObject["count"] != fromString["count"] {
		t.Errorf("string arguments decoded to %v, object arguments to %v", fromString, fromObject)
	}
}

func TestCallToolHandlerFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		r := newRouter(&echoTool{err: errors.New("warehouse unavailable")})
		res := r.CallTool(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
		if !res.IsError || res.Content[0].Text != "warehouse unavailable" {
			t.Errorf("CallTool() = %+v", res)
		}
	})

	t.Run("panic", func(t *testing.T) {
		r := newRouter(&echoTool{panics: true})
		res := r.CallTool(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
		if !res.IsError || !strings.Contains(res.Content[0].Text, "echo") {
			t.Errorf("CallTool() = %+v", res)
		}
	})
}

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{name: "absent", raw: "", wantLen: 0},
		{name: "null", raw: "null", wantLen: 0},
		{name: "empty string", raw: `""`, wantLen: 0},
		{name: "object", raw: `{"a":1}`, wantLen: 1},
		{name: "encoded object", raw: `"{\"a\":1,\"b\":2}"`, wantLen: 2},
		{name: "encoded array", raw: `"[1]"`, wantErr: true},
		{name: "number", raw: `42`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeArguments(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeArguments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errs.Is(err, errs.InvalidArguments) {
					t.Errorf("error kind = %v, want invalid_arguments", errs.KindOf(err))
				}
				return
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestBind(t *testing.T) {
	var dst struct {
		SQLQuery        string `json:"sql_query"`
		ConfirmationKey string `json:"confirmation_key"`
	}
	err := Bind(map[string]interface{}{"sql_query": "SELECT 1", "confirmation_key": "x"}, &dst)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if dst.SQLQuery != "SELECT 1" || dst.ConfirmationKey != "x" {
		t.Errorf("Bind() = %+v", dst)
	}
}
