package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/takashabe/bigquery-mcp/internal/errs"
	"github.com/takashabe/bigquery-mcp/pkg/types"
)

const (
	endpointPath       = "/mcp"
	maxRequestBytes    = 1 << 20
	shutdownTimeout    = 10 * time.Second
	notificationPrefix = "notifications/"
)

// HTTPTransport はPOST /mcp でJSON-RPCリクエストを受け付けるHTTP通信を実装
type HTTPTransport struct {
	addr   string
	logger *slog.Logger

	mu  sync.Mutex
	srv *http.Server
}

// NewHTTPTransport は新しいHTTPTransportを作成
func NewHTTPTransport(addr string, logger *slog.Logger) *HTTPTransport {
	return &HTTPTransport{
		addr:   addr,
		logger: logger,
	}
}

// Connect はHTTPサーバーを起動し、ctxがキャンセルされたらグレースフルに停止する
func (t *HTTPTransport) Connect(ctx context.Context, _ *mcp.Server, router Dispatcher) error {
	mux := http.NewServeMux()
	mux.Handle(endpointPath, NewHandler(router, t.logger))

	srv := &http.Server{
		Addr:              t.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	t.mu.Lock()
	t.srv = srv
	t.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("HTTP transport listening", "addr", t.addr, "path", endpointPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close はHTTPサーバーを停止
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.srv == nil {
		return nil
	}
	return t.srv.Close()
}

// Type は通信方式の種類を返す
func (t *HTTPTransport) Type() string {
	return TypeHTTP
}

// Handler はJSON-RPCリクエストをルーターに渡し、エラーをJSON-RPCのエラー形式に変換する
type Handler struct {
	router Dispatcher
	logger *slog.Logger
}

func NewHandler(router Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{router: router, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.JSONRPCRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeError(w, nil, types.CodeParseError, "Parse error", err.Error())
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		h.writeError(w, req.ID, types.CodeInvalidRequest, "Invalid Request", nil)
		return
	}

	// 通知にはレスポンスを返さない
	if req.ID == nil || strings.HasPrefix(req.Method, notificationPrefix) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	result, err := h.router.Dispatch(r.Context(), req.Method, req.Params)
	if err != nil {
		h.logger.Warn("JSON-RPC request failed", "method", req.Method, "error", err)
		h.writeError(w, req.ID, code(err), err.Error(), nil)
		return
	}

	h.writeResponse(w, req.ID, result)
}

func code(err error) int {
	switch errs.KindOf(err) {
	case errs.MethodNotFound:
		return types.CodeMethodNotFound
	case errs.InvalidArguments, errs.UnknownTool:
		return types.CodeInvalidParams
	default:
		return types.CodeInternalError
	}
}

func (h *Handler) writeResponse(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := types.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := types.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &types.RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to write error response", "error", err)
	}
}
