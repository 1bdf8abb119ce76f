package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	router "github.com/takashabe/bigquery-mcp/internal/mcp"
	"github.com/takashabe/bigquery-mcp/pkg/types"
)

// initializeResult はルーターの初期化結果をSDKの結果として返すためのラッパー
type initializeResult struct {
	mcp.Meta        `json:"_meta,omitempty"`
	ProtocolVersion string                   `json:"protocolVersion"`
	ServerInfo      types.Implementation     `json:"serverInfo"`
	Capabilities    types.ServerCapabilities `json:"capabilities"`
}

// routeToRouter はinitialize, tools/list, tools/callをHTTPトランスポートと同じルーターで処理するミドルウェア
// pingなどその他のメソッドはSDKに渡す
func routeToRouter(r *router.Router) mcp.Middleware[*mcp.ServerSession] {
	return func(next mcp.MethodHandler[*mcp.ServerSession]) mcp.MethodHandler[*mcp.ServerSession] {
		return func(ctx context.Context, ss *mcp.ServerSession, method string, params mcp.Params) (mcp.Result, error) {
			switch method {
			case router.MethodInitialize:
				// セッションの初期化はSDKに任せ、結果だけ置き換える
				res, err := next(ctx, ss, method, params)
				if err != nil {
					return nil, err
				}
				return newInitializeResult(r.Initialize(), res), nil

			case router.MethodToolsList:
				return newListToolsResult(r.ListTools()), nil

			case router.MethodToolsCall:
				p, ok := params.(*mcp.CallToolParamsFor[json.RawMessage])
				if !ok {
					return nil, fmt.Errorf("unexpected params type %T for %s", params, method)
				}
				return newCallToolResult(r.CallTool(ctx, p.Name, p.Arguments)), nil

			default:
				return next(ctx, ss, method, params)
			}
		}
	}
}

// newInitializeResult はSDKが決めたプロトコルバージョンを保ったまま、ルーターの能力を通知する
func newInitializeResult(res types.InitializeResult, negotiated mcp.Result) *initializeResult {
	out := &initializeResult{
		ProtocolVersion: res.ProtocolVersion,
		ServerInfo:      res.ServerInfo,
		Capabilities:    res.Capabilities,
	}
	if sdk, ok := negotiated.(*mcp.InitializeResult); ok && sdk.ProtocolVersion != "" {
		out.ProtocolVersion = sdk.ProtocolVersion
	}
	return out
}

func newListToolsResult(res types.ListToolsResult) *mcp.ListToolsResult {
	out := &mcp.ListToolsResult{Tools: make([]*mcp.Tool, 0, len(res.Tools))}
	for _, tool := range res.Tools {
		out.Tools = append(out.Tools, &mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return out
}

// newCallToolResult はtypes.CallToolResultをSDKの結果に変換
func newCallToolResult(res *types.CallToolResult) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(res.Content))
	for _, c := range res.Content {
		content = append(content, &mcp.TextContent{Text: c.Text})
	}
	return &mcp.CallToolResult{
		Content: content,
		IsError: res.IsError,
	}
}
