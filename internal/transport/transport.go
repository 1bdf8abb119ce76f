package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	TypeStdio = "stdio"
	TypeHTTP  = "http"
)

// Dispatcher はJSON-RPCメソッドを処理するルーター
type Dispatcher interface {
	Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error)
}

// Transport はMCPサーバーの通信方式を抽象化するインターフェース
// stdio, HTTP などの異なる通信方式に対応可能
type Transport interface {
	// Connect はクライアントとの接続を確立し、ctxがキャンセルされるまでセッションを処理する
	Connect(ctx context.Context, server *mcp.Server, router Dispatcher) error
	// Close は接続を閉じる
	Close() error
	// Type は通信方式の種類を返す
	Type() string
}

// New は指定された種類のトランスポートを作成
func New(kind, addr string, logger *slog.Logger) (Transport, error) {
	switch kind {
	case TypeStdio, "":
		return NewStdioTransport(), nil
	case TypeHTTP:
		return NewHTTPTransport(addr, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, kind)
	}
}

// StdioTransport はstdin/stdoutを使用したMCP通信を実装
type StdioTransport struct {
	conn mcp.Transport
}

// NewStdioTransport は新しいStdioTransportを作成
func NewStdioTransport() *StdioTransport {
	return NewStdioTransportOver(mcp.NewStdioTransport())
}

// NewStdioTransportOver はstdin/stdoutの代わりに任意のSDKトランスポートを使う
func NewStdioTransportOver(conn mcp.Transport) *StdioTransport {
	return &StdioTransport{conn: conn}
}

// Connect は改行区切りのJSON-RPCセッションを処理する
// メソッドの処理はserverに設定されたミドルウェア経由でルーターに届く
func (t *StdioTransport) Connect(ctx context.Context, server *mcp.Server, _ Dispatcher) error {
	return server.Run(ctx, t.conn)
}

// Close は接続を閉じる（stdioの場合は特に処理なし）
func (t *StdioTransport) Close() error {
	return nil
}

// Type は通信方式の種類を返す
func (t *StdioTransport) Type() string {
	return TypeStdio
}
