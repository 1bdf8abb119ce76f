// Package costguard validates candidate SQL with a warehouse dry run and
// projects what running it would cost.
package costguard

import (
	"context"
	"log/slog"
	"math"

	"github.com/takashabe/bigquery-mcp/internal/warehouse"
)

type Status string

const (
	StatusValid   Status = "VALID"
	StatusInvalid Status = "INVALID"
	StatusError   Status = "ERROR"
)

const bytesPerTiB = 1 << 40

type DryRunner interface {
	DryRun(ctx context.Context, sql string) (*warehouse.DryRunResult, error)
}

// Estimate is the advisory outcome of one dry run. BytesProcessed and
// EstimatedCostUSD are meaningful only when Status is VALID.
type Estimate struct {
	Status           Status  `json:"status"`
	BytesProcessed   int64   `json:"bytes_processed"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	Message          string  `json:"message"`
	ErrorDetails     string  `json:"error_details,omitempty"`
}

func (e *Estimate) Valid() bool { return e.Status == StatusValid }

type Guard struct {
	runner      DryRunner
	pricePerTiB float64
	logger      *slog.Logger
}

func NewGuard(runner DryRunner, pricePerTiB float64, logger *slog.Logger) *Guard {
	return &Guard{runner: runner, pricePerTiB: pricePerTiB, logger: logger}
}

// CheckValidity dry-runs sql and classifies it. It never returns an error:
// rejections by the warehouse API are INVALID, every other failure is ERROR.
func (g *Guard) CheckValidity(ctx context.Context, sql string) *Estimate {
	res, err := g.runner.DryRun(ctx, sql)

	var est *Estimate
	switch {
	case err == nil && res != nil && res.TotalBytesProcessed >= 0:
		est = &Estimate{
			Status:           StatusValid,
			BytesProcessed:   res.TotalBytesProcessed,
			EstimatedCostUSD: Cost(res.TotalBytesProcessed, g.pricePerTiB),
			Message:          "This query is valid.",
		}
	case warehouse.IsAPIError(err):
		est = &Estimate{
			Status:       StatusInvalid,
			Message:      "The query cannot be executed.",
			ErrorDetails: err.Error(),
		}
	default:
		details := "dry run returned no usable byte estimate"
		if err != nil {
			details = err.Error()
		}
		est = &Estimate{
			Status:       StatusError,
			Message:      "An unexpected system error occurred.",
			ErrorDetails: details,
		}
	}

	g.logger.Info("dry run classified", "status", est.Status, "bytes", est.BytesProcessed, "cost_usd", est.EstimatedCostUSD)
	return est
}

// Cost converts processed bytes to USD at pricePerTiB, rounded to 6 decimals.
func Cost(bytes int64, pricePerTiB float64) float64 {
	cost := float64(bytes) / bytesPerTiB * pricePerTiB
	return math.Round(cost*1e6) / 1e6
}
