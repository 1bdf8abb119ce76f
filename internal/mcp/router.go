package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"github.com/takashabe/bigquery-mcp/internal/errs"
	"github.com/takashabe/bigquery-mcp/pkg/types"
)

const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

type Tool interface {
	Name() string
	Description() string
	Schema() *jsonschema.Schema
	Execute(ctx context.Context, args map[string]interface{}) (*types.CallToolResult, error)
}

// Router dispatches JSON-RPC methods to the registered tools. Tools are
// registered at startup; the set is read-only afterwards.
type Router struct {
	info   types.Implementation
	tools  map[string]*registeredTool
	order  []string
	logger *slog.Logger
}

// registeredTool keeps the schema advertised in tools/list together with its
// resolved form, so listing and validation use the same instance.
type registeredTool struct {
	tool     Tool
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

func NewRouter(info types.Implementation, logger *slog.Logger) *Router {
	return &Router{
		info:   info,
		tools:  make(map[string]*registeredTool),
		logger: logger,
	}
}

// RegisterTool adds tool, replacing any tool with the same name. It fails when
// the tool's input schema cannot be resolved.
func (r *Router) RegisterTool(tool Tool) error {
	schema := tool.Schema()
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("invalid input schema for tool %s: %w", tool.Name(), err)
	}
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = &registeredTool{tool: tool, schema: schema, resolved: resolved}
	return nil
}

// Dispatch handles one method call. Unknown methods fail with an errs.MethodNotFound
// error; formatting the JSON-RPC error envelope is up to the caller.
func (r *Router) Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case MethodInitialize:
		return r.Initialize(), nil
	case MethodToolsList:
		return r.ListTools(), nil
	case MethodToolsCall:
		var p types.CallToolParams
		if len(params) > 0 && string(params) != "null" {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, errs.Wrap(errs.InvalidArguments, "Invalid params", err)
			}
		}
		return r.CallTool(ctx, p.Name, p.Arguments), nil
	default:
		return nil, errs.Newf(errs.MethodNotFound, "Method not found: %s", method)
	}
}

func (r *Router) Initialize() types.InitializeResult {
	return types.InitializeResult{
		ProtocolVersion: types.ProtocolVersion,
		ServerInfo:      r.info,
		Capabilities: types.ServerCapabilities{
			Tools: types.ToolsCapability{List: true, Call: true},
		},
	}
}

func (r *Router) ListTools() types.ListToolsResult {
	tools := make([]types.Tool, 0, len(r.order))
	for _, name := range r.order {
		rt := r.tools[name]
		tools = append(tools, types.Tool{
			Name:        rt.tool.Name(),
			Description: rt.tool.Description(),
			InputSchema: rt.schema,
		})
	}
	return types.ListToolsResult{Tools: tools}
}

// CallTool decodes and validates rawArgs, then runs the named tool. It never
// fails: unknown tools, bad arguments, handler errors and panics all come
// back as an error result.
func (r *Router) CallTool(ctx context.Context, name string, rawArgs json.RawMessage) (result *types.CallToolResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec, "stack", string(debug.Stack()))
			result = types.ErrorResult(fmt.Sprintf("Internal error while running tool %s", name))
		}
		r.logger.Info("tool call", "tool", name, "is_error", result.IsError, "duration", time.Since(start))
	}()

	rt, exists := r.tools[name]
	if !exists {
		return types.ErrorResult(errs.Newf(errs.UnknownTool, "Tool not found: %s", name).Error())
	}

	args, err := DecodeArguments(rawArgs)
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	if err := Validate(rt.resolved, args); err != nil {
		return types.ErrorResult(err.Error())
	}

	res, err := rt.tool.Execute(ctx, args)
	if err != nil {
		r.logger.Warn("tool execution error", "tool", name, "kind", errs.KindOf(err), "error", err)
		return types.ErrorResult(err.Error())
	}
	if res == nil {
		return types.ErrorResult(fmt.Sprintf("Tool %s returned no result", name))
	}
	return res
}
