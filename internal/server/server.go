package server

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/takashabe/bigquery-mcp/internal/errs"
	router "github.com/takashabe/bigquery-mcp/internal/mcp"
	"github.com/takashabe/bigquery-mcp/internal/tools"
	"github.com/takashabe/bigquery-mcp/internal/transport"
	"github.com/takashabe/bigquery-mcp/pkg/types"
)

// BigQueryMCPServer はBigQuery用のMCPサーバー
type BigQueryMCPServer struct {
	server    *mcp.Server
	router    *router.Router
	transport transport.Transport
	logger    *slog.Logger
}

// Config はサーバーの設定
type Config struct {
	ServerName    string
	ServerVersion string
	TransportType string
	HTTPAddr      string // HTTPトランスポートで使用
}

// Inspector はデータセット一覧とテーブルスキーマの取得元
type Inspector interface {
	tools.DatasetLister
	tools.SchemaGetter
}

// Dependencies はツールが使うコンポーネント
// すべてmainで一度だけ作成され、参照で共有される
type Dependencies struct {
	ProjectID string
	Inspector Inspector
	Reviewer  tools.Reviewer
	Executor  tools.QueryExecutor
}

// NewBigQueryMCPServer は新しいサーバーインスタンスを作成
func NewBigQueryMCPServer(config Config, deps Dependencies, logger *slog.Logger) (*BigQueryMCPServer, error) {
	// 適切なトランスポートを選択
	tp, err := transport.New(config.TransportType, config.HTTPAddr, logger)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, "invalid transport", err)
	}

	// MCPサーバーを作成
	impl := &mcp.Implementation{
		Name:    config.ServerName,
		Version: config.ServerVersion,
	}
	s := &BigQueryMCPServer{
		server: mcp.NewServer(impl, nil),
		router: router.NewRouter(types.Implementation{
			Name:    config.ServerName,
			Version: config.ServerVersion,
		}, logger),
		transport: tp,
		logger:    logger,
	}

	// ツールを登録
	if err := s.registerTools(deps); err != nil {
		return nil, err
	}

	// stdioでもHTTPと同じくすべてのメソッドをルーターで処理
	s.server.AddReceivingMiddleware(routeToRouter(s.router))

	return s, nil
}

// registerTools は利用可能なツールをルーターに登録
func (s *BigQueryMCPServer) registerTools(deps Dependencies) error {
	for _, tool := range []router.Tool{
		tools.NewListDatasetsTool(deps.Inspector, deps.ProjectID),
		tools.NewTableSchemaTool(deps.Inspector),
		tools.NewCreateQueryTool(deps.Reviewer, deps.ProjectID),
		tools.NewRunQueryTool(deps.Executor),
	} {
		if err := s.router.RegisterTool(tool); err != nil {
			return err
		}
	}
	return nil
}

// Router はJSON-RPCルーターを返す
func (s *BigQueryMCPServer) Router() *router.Router {
	return s.router
}

// Start はサーバーを開始
func (s *BigQueryMCPServer) Start(ctx context.Context) error {
	s.logger.Info("Starting BigQuery MCP Server", "transport", s.transport.Type())
	return s.transport.Connect(ctx, s.server, s.router)
}

// Stop はサーバーを停止
func (s *BigQueryMCPServer) Stop() error {
	return s.transport.Close()
}
