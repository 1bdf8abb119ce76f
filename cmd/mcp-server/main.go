package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/takashabe/bigquery-mcp/internal/audit"
	"github.com/takashabe/bigquery-mcp/internal/config"
	"github.com/takashabe/bigquery-mcp/internal/confirm"
	"github.com/takashabe/bigquery-mcp/internal/costguard"
	"github.com/takashabe/bigquery-mcp/internal/executor"
	"github.com/takashabe/bigquery-mcp/internal/review"
	"github.com/takashabe/bigquery-mcp/internal/schema"
	"github.com/takashabe/bigquery-mcp/internal/server"
	"github.com/takashabe/bigquery-mcp/internal/sqlgen"
	"github.com/takashabe/bigquery-mcp/internal/warehouse"
)

func main() {
	var (
		configPath    = pflag.String("config", "", "Path to a YAML config file")
		envFile       = pflag.String("env-file", ".env", "Path to a .env file (overridden by ENV_FILE_PATH)")
		transportType = pflag.String("transport", "", "Transport type: stdio or http")
		httpAddr      = pflag.String("addr", "", "HTTP address for the http transport")
		serverName    = pflag.String("name", "", "Server name")
		serverVersion = pflag.String("version", "", "Server version")
	)
	pflag.Parse()

	// stdoutはstdioトランスポートが使うため、ログはstderrに出力
	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// コンテキストとシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .envとSecrets Managerから環境変数を読み込んでから設定を構築
	config.LoadEnv(ctx, logger, *envFile)
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := logLevel.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		logger.Warn("invalid log level, using info", "level", cfg.Log.Level)
	}

	// フラグが指定された場合は設定を上書き
	if *transportType != "" {
		cfg.Server.Transport = *transportType
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *serverName != "" {
		cfg.Server.Name = *serverName
	}
	if *serverVersion != "" {
		cfg.Server.Version = *serverVersion
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}

// run はすべてのコンポーネントを一度だけ作成し、サーバーを起動する
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// BigQueryクライアントを初期化
	wh, err := warehouse.NewClient(ctx, warehouse.ClientOptions{
		ProjectID:     cfg.Warehouse.ProjectID,
		Location:      cfg.Warehouse.Location,
		Credentials:   cfg.Warehouse.Credentials,
		UseStorageAPI: cfg.Warehouse.UseStorageAPI,
	})
	if err != nil {
		return err
	}
	defer wh.Close()

	// Geminiクライアントを初期化
	gemini, err := sqlgen.NewGemini(ctx, cfg.Generation.APIKey, cfg.Generation.Model)
	if err != nil {
		return err
	}

	policy, err := newPolicy(cfg.Confirmation, logger)
	if err != nil {
		return err
	}

	sink, closeSink, err := newAuditSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	inspector := schema.NewInspector(wh, logger)
	synth := sqlgen.NewSynthesizer(gemini, sqlgen.Sampling{
		Temperature:     cfg.Generation.Temperature,
		TopK:            cfg.Generation.TopK,
		TopP:            cfg.Generation.TopP,
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
	}, cfg.Generation.Timeout, logger)
	guard := costguard.NewGuard(wh, cfg.Warehouse.PricePerTiB, logger)

	// サーバーを作成
	mcpServer, err := server.NewBigQueryMCPServer(server.Config{
		ServerName:    cfg.Server.Name,
		ServerVersion: cfg.Server.Version,
		TransportType: cfg.Server.Transport,
		HTTPAddr:      cfg.Server.HTTPAddr,
	}, server.Dependencies{
		ProjectID: cfg.Warehouse.ProjectID,
		Inspector: inspector,
		Reviewer:  review.NewPipeline(inspector, synth, guard, policy, logger),
		Executor:  executor.NewExecutor(wh, policy, sink, logger),
	}, logger)
	if err != nil {
		return err
	}

	// サーバー開始
	logger.Info("Starting BigQuery MCP Server...",
		"project", cfg.Warehouse.ProjectID,
		"transport", cfg.Server.Transport,
		"confirmation", cfg.Confirmation.Mode,
	)
	if cfg.Server.Transport == "http" {
		logger.Info("HTTP Address", "addr", cfg.Server.HTTPAddr)
	}

	startErr := mcpServer.Start(ctx)

	// クリーンアップ
	if err := mcpServer.Stop(); err != nil {
		logger.Warn("Error during server shutdown", "error", err)
	}
	if startErr != nil && ctx.Err() == nil {
		return startErr
	}
	return nil
}

func newPolicy(cfg config.ConfirmationConfig, logger *slog.Logger) (confirm.Policy, error) {
	if cfg.Mode == config.ConfirmationAdvisory {
		logger.Warn("confirmation keys are advisory: any non-empty key allows run_sql_query")
		return confirm.AdvisoryPolicy{}, nil
	}
	if cfg.Secret == "" {
		// 秘密鍵が未設定の場合は起動ごとに生成されるため、再起動で発行済みのキーは無効になる
		logger.Info("CONFIRMATION_SECRET is not set, using a per-process secret")
	}
	return confirm.NewTokenPolicy(cfg.Secret, cfg.TTL)
}

// newAuditSink は監査ログの出力先を作成
func newAuditSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (audit.Sink, func(), error) {
	if !cfg.Audit.Enabled {
		return audit.NewLoggerSink(logger), func() {}, nil
	}

	sink, err := audit.NewCloudLoggingSink(ctx, cfg.Warehouse.ProjectID, cfg.Audit.LogName, cfg.Warehouse.Credentials)
	if err != nil {
		return nil, nil, err
	}
	return sink, func() {
		if err := sink.Close(); err != nil {
			logger.Warn("failed to flush audit log", "error", err)
		}
	}, nil
}
