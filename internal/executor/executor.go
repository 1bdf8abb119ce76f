// Package executor runs reviewed SQL against the warehouse for real and
// renders the result as a text table.
package executor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/takashabe/bigquery-mcp/internal/audit"
	"github.com/takashabe/bigquery-mcp/internal/confirm"
	"github.com/takashabe/bigquery-mcp/internal/errs"
	"github.com/takashabe/bigquery-mcp/internal/warehouse"
)

type QueryRunner interface {
	Query(ctx context.Context, sql string) (*warehouse.ResultSet, error)
}

type Executor struct {
	runner QueryRunner
	policy confirm.Policy
	audit  audit.Sink
	logger *slog.Logger
}

func NewExecutor(runner QueryRunner, policy confirm.Policy, sink audit.Sink, logger *slog.Logger) *Executor {
	return &Executor{
		runner: runner,
		policy: policy,
		audit:  sink,
		logger: logger,
	}
}

// Execute verifies the confirmation key for sql, runs it, and returns the
// normalized rows rendered as a fixed-width table.
func (e *Executor) Execute(ctx context.Context, sql, confirmationKey string) (string, error) {
	rec := audit.Record{RequestID: uuid.New().String(), SQL: sql}

	if strings.TrimSpace(sql) == "" {
		return "", errs.New(errs.InvalidArguments, "sql_query is required")
	}

	if err := e.policy.Verify(confirmationKey, sql); err != nil {
		rec.Outcome = audit.OutcomeRejected
		rec.Error = err.Error()
		e.audit.Record(ctx, rec)
		return "", err
	}

	start := time.Now()
	rs, err := e.runner.Query(ctx, sql)
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Outcome = audit.OutcomeFailed
		rec.Error = err.Error()
		e.audit.Record(ctx, rec)
		return "", errs.Wrap(errs.QueryRuntime, "BigQuery query failed", err)
	}

	rows := make([][]any, len(rs.Rows))
	for i, row := range rs.Rows {
		rows[i] = make([]any, len(row))
		for j, v := range row {
			rows[i][j] = Normalize(v)
		}
	}

	rec.Outcome = audit.OutcomeExecuted
	rec.Rows = len(rows)
	e.audit.Record(ctx, rec)
	e.logger.Info("query executed", "request_id", rec.RequestID, "rows", rec.Rows, "duration", rec.Duration)

	return RenderTable(rs.Columns, rows), nil
}
